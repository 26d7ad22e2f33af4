// Package push tracks device push tokens and the consent attached to them.
package push

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"chickremind/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrEmptyToken is returned when a registration carries no token.
	ErrEmptyToken = errors.New("push token is empty")
	// ErrNotFound is returned when revoking an unknown token.
	ErrNotFound = errors.New("push token not found")
)

// Registry stores DeviceToken rows.
type Registry struct {
	db *gorm.DB
}

// New creates a registry backed by db.
func New(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Registration carries the fields a device submits when it registers.
type Registration struct {
	Token           string `json:"token"`
	Platform        string `json:"platform"`
	NotifyConsent   bool   `json:"notify_consent"`
	TrackingConsent bool   `json:"tracking_consent"`
}

// Register stores a token. Re-registering an existing token updates its
// consent flags and clears any previous revocation.
func (r *Registry) Register(reg Registration) (*model.DeviceToken, error) {
	token := strings.TrimSpace(reg.Token)
	if token == "" {
		return nil, ErrEmptyToken
	}

	row := model.DeviceToken{
		Token:           token,
		Platform:        reg.Platform,
		NotifyConsent:   reg.NotifyConsent,
		TrackingConsent: reg.TrackingConsent,
		UpdatedAt:       time.Now(),
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"platform", "notify_consent", "tracking_consent", "revoked", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("register token: %w", err)
	}

	var stored model.DeviceToken
	if err := r.db.First(&stored, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// Revoke marks a token revoked so it no longer receives notifications.
func (r *Registry) Revoke(token string) error {
	result := r.db.Model(&model.DeviceToken{}).
		Where("token = ?", strings.TrimSpace(token)).
		Update("revoked", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveTokens returns tokens that are not revoked and whose owner consented
// to notifications.
func (r *Registry) ActiveTokens() ([]model.DeviceToken, error) {
	var tokens []model.DeviceToken
	err := r.db.
		Where("revoked = ? AND notify_consent = ?", false, true).
		Order("created_at ASC").
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}
