package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"

	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

// DefaultFileName matches the file name the desktop shell has always used.
const DefaultFileName = "gui_settings.json"

// PreferencesFile stores the preferences record as an indented JSON object in
// a single local file.
type PreferencesFile struct {
	path   string
	logger zerolog.Logger
	// write replaces path with the content of r; swapped in tests.
	write func(path string, r io.Reader) error
}

var _ ports.PreferencesStore = (*PreferencesFile)(nil)

func NewPreferencesFile(path string, logger zerolog.Logger) *PreferencesFile {
	return &PreferencesFile{
		path:   path,
		logger: logger.With().Str("component", "preferences").Str("path", path).Logger(),
		write:  atomic.WriteFile,
	}
}

func (f *PreferencesFile) Path() string { return f.path }

func (f *PreferencesFile) Load(ctx context.Context) domain.Preferences {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f.logger.Debug().Msg("no preferences file, using defaults")
		} else {
			f.logger.Warn().Err(err).Msg("cannot read preferences file, using defaults")
		}
		return domain.DefaultPreferences()
	}

	var p domain.Preferences
	if err := json.Unmarshal(b, &p); err != nil {
		f.logger.Warn().Err(err).Msg("corrupt preferences file, using defaults")
		return domain.DefaultPreferences()
	}
	return p
}

func (f *PreferencesFile) Save(ctx context.Context, prefs domain.Preferences) error {
	if err := ctx.Err(); err != nil {
		return &ports.PersistenceError{Path: f.path, Err: err}
	}

	b, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return &ports.PersistenceError{Path: f.path, Err: err}
	}
	b = append(b, '\n')

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return &ports.PersistenceError{Path: f.path, Err: err}
	}
	if err := f.write(f.path, bytes.NewReader(b)); err != nil {
		f.logger.Error().Err(err).Msg("failed to save preferences")
		return &ports.PersistenceError{Path: f.path, Err: err}
	}
	f.logger.Debug().Int("bytes", len(b)).Msg("preferences saved")
	return nil
}
