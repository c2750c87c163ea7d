package app

import (
	"context"
	"strings"
	"sync"

	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

// PreferencesService owns the in-memory preferences record of the running
// instance. It is created once at startup and handed to whoever needs it.
type PreferencesService struct {
	store ports.PreferencesStore

	mu      sync.Mutex
	current domain.Preferences
}

// NewPreferencesService loads the stored record right away.
func NewPreferencesService(ctx context.Context, store ports.PreferencesStore) *PreferencesService {
	return &PreferencesService{store: store, current: store.Load(ctx)}
}

func (s *PreferencesService) Get(ctx context.Context) (domain.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone(), nil
}

// APIKey matches the getter signature expected by HashesClient.
func (s *PreferencesService) APIKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.APIKey, nil
}

// Put replaces the whole record and saves it. The in-memory record only
// changes once the save succeeded.
func (s *PreferencesService) Put(ctx context.Context, prefs domain.Preferences) (domain.Preferences, error) {
	next, err := domain.NewPreferences(strings.TrimSpace(prefs.APIKey), prefs.Values)
	if err != nil {
		return domain.Preferences{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, next)
}

// Patch merges values into the current record; a nil value removes its key.
func (s *PreferencesService) Patch(ctx context.Context, values map[string]any) (domain.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	for k, v := range values {
		if err := next.Set(k, v); err != nil {
			return domain.Preferences{}, err
		}
	}
	next.APIKey = strings.TrimSpace(next.APIKey)
	return s.commitLocked(ctx, next)
}

// SetAPIKey is the "Save Key" action. An empty key clears the stored one.
func (s *PreferencesService) SetAPIKey(ctx context.Context, key string) (domain.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	next.APIKey = strings.TrimSpace(key)
	return s.commitLocked(ctx, next)
}

// Reload discards in-memory changes and reads the store again.
func (s *PreferencesService) Reload(ctx context.Context) domain.Preferences {
	p := s.store.Load(ctx)
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
	return p.Clone()
}

func (s *PreferencesService) commitLocked(ctx context.Context, next domain.Preferences) (domain.Preferences, error) {
	if next.Values == nil {
		next.Values = map[string]any{}
	}
	if err := s.store.Save(ctx, next); err != nil {
		return domain.Preferences{}, err
	}
	s.current = next
	return next.Clone(), nil
}
