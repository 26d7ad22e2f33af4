package model

import "time"

// Category classifies what kind of chicken care a reminder covers.
type Category string

const (
	CategoryFeeding     Category = "feeding"
	CategoryCleaning    Category = "cleaning"
	CategoryVaccination Category = "vaccination"
	CategoryHealth      Category = "health"
)

// Categories lists every valid reminder category.
func Categories() []Category {
	return []Category{CategoryFeeding, CategoryCleaning, CategoryVaccination, CategoryHealth}
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryFeeding, CategoryCleaning, CategoryVaccination, CategoryHealth:
		return true
	}
	return false
}

// Repeat is the cadence at which a reminder recurs.
type Repeat string

const (
	RepeatNone   Repeat = "none"
	RepeatDaily  Repeat = "daily"
	RepeatWeekly Repeat = "weekly"
)

// ValidRepeat reports whether r is a known cadence.
func ValidRepeat(r Repeat) bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly:
		return true
	}
	return false
}

// Reminder represents a saved chicken-care task.
type Reminder struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Category  Category  `gorm:"index;size:32;not null" json:"category"`
	DueAt     time.Time `gorm:"index;not null" json:"due_at"`
	Repeat    Repeat    `gorm:"size:16;not null;default:none" json:"repeat"`
	Notes     string    `gorm:"type:text" json:"notes,omitempty"`
	Done      bool      `gorm:"index;not null;default:false" json:"done"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AppSetting stores small persistent key/value flags. It is intentionally
// generic so the bootstrap does not grow a new table for every flag;
// writes are last-write-wins.
type AppSetting struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DeviceToken is a registered push token with the owner's consent flags.
type DeviceToken struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Token           string    `gorm:"uniqueIndex;size:512;not null" json:"token"`
	Platform        string    `gorm:"size:32" json:"platform"`
	NotifyConsent   bool      `gorm:"not null;default:false" json:"notify_consent"`
	TrackingConsent bool      `gorm:"not null;default:false" json:"tracking_consent"`
	Revoked         bool      `gorm:"index;not null;default:false" json:"revoked"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
