// Package settings persists the app's bootstrap flags as key/value rows.
// Every write is last-write-wins; no invariants are enforced across keys.
package settings

import (
	"errors"
	"time"

	"chickremind/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Well-known keys written by the bootstrap and the orbit subsystem.
const (
	KeyAppMode         = "app.mode"
	KeyOrbitURL        = "orbit.url"
	KeyOrbitExpiry     = "orbit.expiry"
	KeyLastStableURL   = "orbit.last_stable_url"
	KeyOrbitCookies    = "orbit.cookies"
	KeyNotifyConsent   = "consent.notifications"
	KeyTrackingConsent = "consent.tracking"
	KeyDeviceID        = "attribution.device_id"
	KeyFirstLaunchAt   = "attribution.first_launch_at"
)

// ErrNotFound is returned when a setting key has never been written.
var ErrNotFound = errors.New("setting not found")

// Store reads and writes AppSetting rows.
type Store struct {
	db *gorm.DB
}

// New creates a settings store backed by db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the stored value for key, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	var row model.AppSetting
	if err := s.db.First(&row, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return row.Value, nil
}

// GetDefault returns the stored value for key, or def when unset.
func (s *Store) GetDefault(key, def string) string {
	value, err := s.Get(key)
	if err != nil {
		return def
	}
	return value
}

// Set writes value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	row := model.AppSetting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// SetTime stores t under key in RFC3339 form.
func (s *Store) SetTime(key string, t time.Time) error {
	return s.Set(key, t.UTC().Format(time.RFC3339))
}

// GetTime parses the stored RFC3339 value for key.
func (s *Store) GetTime(key string) (time.Time, error) {
	value, err := s.Get(key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// SetBool stores a boolean flag under key.
func (s *Store) SetBool(key string, v bool) error {
	if v {
		return s.Set(key, "true")
	}
	return s.Set(key, "false")
}

// GetBool returns the stored flag, or false when unset or unparsable.
func (s *Store) GetBool(key string) bool {
	return s.GetDefault(key, "false") == "true"
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Delete(&model.AppSetting{}, "key = ?", key).Error
}
