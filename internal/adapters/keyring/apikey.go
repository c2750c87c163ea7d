package keyring

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

const (
	DefaultService = "hashes-gui"
	DefaultUser    = "api-key"
)

// APIKeyVault keeps the API key in the OS keychain and everything else in the
// wrapped store. The wrapped store only ever sees an empty api key.
type APIKeyVault struct {
	inner   ports.PreferencesStore
	service string
	user    string
	logger  zerolog.Logger
}

var _ ports.PreferencesStore = (*APIKeyVault)(nil)

func NewAPIKeyVault(inner ports.PreferencesStore, service, user string, logger zerolog.Logger) *APIKeyVault {
	if service == "" {
		service = DefaultService
	}
	if user == "" {
		user = DefaultUser
	}
	return &APIKeyVault{
		inner:   inner,
		service: service,
		user:    user,
		logger:  logger.With().Str("component", "keyring").Str("service", service).Logger(),
	}
}

// Load overlays the keychain entry on the wrapped record. Without an entry
// the key found in the file, if any, is kept.
func (v *APIKeyVault) Load(ctx context.Context) domain.Preferences {
	p := v.inner.Load(ctx)

	key, err := gokeyring.Get(v.service, v.user)
	switch {
	case err == nil:
		p.APIKey = key
	case errors.Is(err, gokeyring.ErrNotFound):
		if p.APIKey != "" {
			v.logger.Info().Msg("api key still stored in preferences file; it moves to the keychain on next save")
		}
	default:
		v.logger.Warn().Err(err).Msg("cannot read api key from keychain")
	}
	return p
}

// Save writes the keychain entry, then the wrapped store. When the wrapped
// save fails the previous entry is put back so the next Load sees the prior
// record.
func (v *APIKeyVault) Save(ctx context.Context, prefs domain.Preferences) error {
	prev, err := v.current()
	if err != nil {
		return &ports.PersistenceError{Path: v.location(), Err: err}
	}
	if err := v.write(prefs.APIKey); err != nil {
		return &ports.PersistenceError{Path: v.location(), Err: err}
	}

	rest := prefs.Clone()
	rest.APIKey = ""
	if err := v.inner.Save(ctx, rest); err != nil {
		if rerr := v.write(prev); rerr != nil {
			v.logger.Error().Err(rerr).Msg("cannot restore previous keychain entry")
		}
		return err
	}
	return nil
}

// current returns the stored key, "" when there is no entry.
func (v *APIKeyVault) current() (string, error) {
	key, err := gokeyring.Get(v.service, v.user)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return "", nil
	}
	return key, err
}

// write stores key, or removes the entry when key is empty.
func (v *APIKeyVault) write(key string) error {
	if key == "" {
		if err := gokeyring.Delete(v.service, v.user); err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
			return err
		}
		return nil
	}
	return gokeyring.Set(v.service, v.user, key)
}

func (v *APIKeyVault) location() string {
	return "keychain:" + v.service + "/" + v.user
}
