// Package reminder implements CRUD for chicken-care reminders.
package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"chickremind/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a reminder ID does not exist.
	ErrNotFound = errors.New("reminder not found")
	// ErrInvalid is returned when a reminder fails validation.
	ErrInvalid = errors.New("invalid reminder")
)

// Service persists and validates reminders.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates a reminder service backed by db.
func New(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Input carries the caller-supplied reminder fields.
type Input struct {
	Title    string         `json:"title"`
	Category model.Category `json:"category"`
	DueAt    time.Time      `json:"due_at"`
	Repeat   model.Repeat   `json:"repeat"`
	Notes    string         `json:"notes"`
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if !model.ValidCategory(in.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalid, in.Category)
	}
	if in.Repeat != "" && !model.ValidRepeat(in.Repeat) {
		return fmt.Errorf("%w: unknown repeat cadence %q", ErrInvalid, in.Repeat)
	}
	if in.DueAt.IsZero() {
		return fmt.Errorf("%w: due time is required", ErrInvalid)
	}
	return nil
}

// Create validates and stores a new reminder.
func (s *Service) Create(in Input) (*model.Reminder, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	repeat := in.Repeat
	if repeat == "" {
		repeat = model.RepeatNone
	}
	rem := &model.Reminder{
		Title:    strings.TrimSpace(in.Title),
		Category: in.Category,
		DueAt:    in.DueAt,
		Repeat:   repeat,
		Notes:    in.Notes,
	}
	if err := s.db.Create(rem).Error; err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	return rem, nil
}

// Get returns a reminder by ID.
func (s *Service) Get(id uint) (*model.Reminder, error) {
	var rem model.Reminder
	if err := s.db.First(&rem, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rem, nil
}

// Filter narrows List results. Zero values mean "no filter".
type Filter struct {
	Category    model.Category
	PendingOnly bool
}

// List returns reminders ordered by due time.
func (s *Service) List(f Filter) ([]model.Reminder, error) {
	query := s.db.Order("due_at ASC, id ASC")
	if f.Category != "" {
		if !model.ValidCategory(f.Category) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalid, f.Category)
		}
		query = query.Where("category = ?", f.Category)
	}
	if f.PendingOnly {
		query = query.Where("done = ?", false)
	}

	var reminders []model.Reminder
	if err := query.Find(&reminders).Error; err != nil {
		return nil, err
	}
	return reminders, nil
}

// Update replaces the editable fields of an existing reminder.
func (s *Service) Update(id uint, in Input) (*model.Reminder, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	rem, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	rem.Title = strings.TrimSpace(in.Title)
	rem.Category = in.Category
	rem.DueAt = in.DueAt
	if in.Repeat != "" {
		rem.Repeat = in.Repeat
	}
	rem.Notes = in.Notes
	if err := s.db.Save(rem).Error; err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	return rem, nil
}

// Complete marks a one-shot reminder done; a repeating reminder instead
// rolls forward to its next occurrence past now.
func (s *Service) Complete(id uint) (*model.Reminder, error) {
	rem, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if rem.Repeat == model.RepeatNone {
		rem.Done = true
	} else {
		rem.DueAt = NextOccurrence(rem.DueAt, rem.Repeat, s.now())
	}

	if err := s.db.Save(rem).Error; err != nil {
		return nil, fmt.Errorf("complete reminder: %w", err)
	}
	return rem, nil
}

// Delete removes a reminder by ID.
func (s *Service) Delete(id uint) error {
	result := s.db.Delete(&model.Reminder{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// NextOccurrence advances due by the repeat cadence until it is past now.
// A non-repeating cadence returns due unchanged.
func NextOccurrence(due time.Time, repeat model.Repeat, now time.Time) time.Time {
	var step time.Duration
	switch repeat {
	case model.RepeatDaily:
		step = 24 * time.Hour
	case model.RepeatWeekly:
		step = 7 * 24 * time.Hour
	default:
		return due
	}

	next := due.Add(step)
	for !next.After(now) {
		next = next.Add(step)
	}
	return next
}
