// Package scheduler dispatches due reminders on a cron cadence.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"chickremind/internal/model"
	"chickremind/internal/push"
	"chickremind/internal/reminder"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Summarizer produces a one-line notification text for a reminder.
type Summarizer interface {
	SummarizeReminder(ctx context.Context, content string) (string, error)
}

// Sender delivers the rendered notification.
type Sender interface {
	SendWhatsAppMessage(to, body string) error
}

// Scheduler polls for due reminders and dispatches them.
type Scheduler struct {
	db         *gorm.DB
	summarizer Summarizer
	sender     Sender
	devices    *push.Registry
	recipient  string
	cron       *cron.Cron
	logger     *log.Logger
	now        func() time.Time
}

// New creates a scheduler. sender and devices may be nil, in which case
// dispatches are logged only.
func New(db *gorm.DB, summarizer Summarizer, sender Sender, devices *push.Registry, recipient string, tz *time.Location, logger *log.Logger) *Scheduler {
	return &Scheduler{
		db:         db,
		summarizer: summarizer,
		sender:     sender,
		devices:    devices,
		recipient:  recipient,
		cron:       cron.New(cron.WithLocation(tz)),
		logger:     logger,
		now:        time.Now,
	}
}

// Start registers the dispatch job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("* * * * *", func() {
		s.DispatchDue(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// DispatchDue finds pending reminders whose due time has passed, rolls each
// row forward before delivery so a crash cannot double-send, then notifies.
func (s *Scheduler) DispatchDue(ctx context.Context) {
	var due []model.Reminder
	err := s.db.
		Where("done = ? AND due_at <= ?", false, s.now()).
		Order("due_at ASC").
		Find(&due).Error
	if err != nil {
		s.logger.Printf("scheduler: fetch due reminders: %v", err)
		return
	}

	for _, rem := range due {
		if err := s.advance(&rem); err != nil {
			s.logger.Printf("scheduler: advance reminder %d: %v", rem.ID, err)
			continue
		}
		s.notify(ctx, rem)
	}
}

// advance marks a one-shot reminder done or rolls a repeating one forward.
func (s *Scheduler) advance(rem *model.Reminder) error {
	if rem.Repeat == model.RepeatNone {
		return s.db.Model(rem).Update("done", true).Error
	}
	next := reminder.NextOccurrence(rem.DueAt, rem.Repeat, s.now())
	return s.db.Model(rem).Update("due_at", next).Error
}

func (s *Scheduler) notify(ctx context.Context, rem model.Reminder) {
	body := s.renderMessage(ctx, rem)
	s.logger.Printf("scheduler: due [%s] %s", rem.Category, body)

	if s.devices != nil {
		tokens, err := s.devices.ActiveTokens()
		if err != nil {
			s.logger.Printf("scheduler: fetch device tokens: %v", err)
		} else if len(tokens) > 0 {
			s.logger.Printf("scheduler: queueing push for %d device(s)", len(tokens))
		}
	}

	if s.sender == nil || s.recipient == "" {
		return
	}
	if err := s.sender.SendWhatsAppMessage(s.recipient, body); err != nil {
		s.logger.Printf("scheduler: send reminder %d: %v", rem.ID, err)
	}
}

// renderMessage prefers a model-generated one-liner and falls back to the
// raw title when summarisation fails.
func (s *Scheduler) renderMessage(ctx context.Context, rem model.Reminder) string {
	content := rem.Title
	if strings.TrimSpace(rem.Notes) != "" {
		content = rem.Title + ": " + rem.Notes
	}

	if s.summarizer != nil {
		if summary, err := s.summarizer.SummarizeReminder(ctx, content); err == nil && summary != "" {
			content = summary
		} else if err != nil {
			s.logger.Printf("scheduler: summarise reminder %d: %v", rem.ID, err)
		}
	}

	return fmt.Sprintf("Reminder: %s (%s)", content, rem.Category)
}
