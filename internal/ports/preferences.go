package ports

import (
	"context"

	"github.com/scriptducks/hashes-gui/internal/domain"
)

// PreferencesStore persists the preferences record.
//
// Load never fails: a missing, unreadable or malformed source yields
// domain.DefaultPreferences(). Save either replaces the stored record as a
// whole or returns a *PersistenceError and leaves the previous one in place.
type PreferencesStore interface {
	Load(ctx context.Context) domain.Preferences
	Save(ctx context.Context, prefs domain.Preferences) error
}
