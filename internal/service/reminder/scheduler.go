package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/romanzh1/mood-diary/internal/models"
	"github.com/romanzh1/mood-diary/pkg/utils"
	"go.uber.org/zap"
)

const (
	DefaultHorizon = 14
	DefaultDelay   = 150 * time.Millisecond
	DefaultText    = "🌙 Как прошёл сегодняшний день? Оцените настроение от -5 до +5, это займёт минуту."

	ModeWebhook = "webhook"
	ModeCron    = "cron"
)

var ErrInvalidTime = errors.New("invalid reminder time")

// Dispatcher hands one reminder to the external delivery backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, reminder models.ScheduledReminder) error
}

type Request struct {
	ChatID   int64
	Time     string // "HH:MM"
	Timezone string
}

// Candidates returns today+i at timeOfDay for i in [0, horizon), keeping only instants
// strictly after now. Instants are built in now's location.
func Candidates(now time.Time, timeOfDay string, horizon int) ([]time.Time, error) {
	hour, minute, err := utils.ParseClock(timeOfDay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}

	today := utils.StartOfDay(now)
	result := make([]time.Time, 0, horizon)
	for i := range horizon {
		at := utils.AtClock(today.AddDate(0, 0, i), hour, minute)
		if !at.After(now) {
			continue
		}
		result = append(result, at)
	}

	return result, nil
}

type Option func(*Scheduler)

func WithHorizon(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.horizon = days
		}
	}
}

func WithDelay(delay time.Duration) Option {
	return func(s *Scheduler) {
		if delay >= 0 {
			s.delay = delay
		}
	}
}

func WithText(text string) Option {
	return func(s *Scheduler) {
		if text != "" {
			s.text = text
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler approximates a daily reminder by registering a batch of one-shot
// instants with a webhook that has no notion of recurrence.
type Scheduler struct {
	dispatcher Dispatcher
	horizon    int
	delay      time.Duration
	text       string
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewScheduler(dispatcher Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		dispatcher: dispatcher,
		horizon:    DefaultHorizon,
		delay:      DefaultDelay,
		text:       DefaultText,
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetupReminder dispatches one request per candidate, one at a time. Dispatch failures
// are counted and logged but never returned; only a malformed time is an error.
// The timezone is forwarded as-is and does not shift the computed instants.
func (s *Scheduler) SetupReminder(ctx context.Context, req Request) (*models.ReminderReport, error) {
	candidates, err := Candidates(s.now(), req.Time, s.horizon)
	if err != nil {
		return nil, fmt.Errorf("build reminder candidates (chat_id: %d, time: %s): %w", req.ChatID, req.Time, err)
	}

	report := &models.ReminderReport{
		BatchID: uuid.NewString(),
		Mode:    ModeWebhook,
	}

	for i, at := range candidates {
		if i > 0 && s.delay > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				zap.S().Warn("reminder batch interrupted", zap.Error(err), zap.Int64("chat_id", req.ChatID),
					zap.String("batch_id", report.BatchID), zap.Int("remaining", len(candidates)-i))
				report.Failed += len(candidates) - i
				break
			}
		}

		reminder := models.ScheduledReminder{
			ChatID:   req.ChatID,
			At:       at,
			Text:     s.text,
			Timezone: req.Timezone,
		}

		if err := s.dispatcher.Dispatch(ctx, reminder); err != nil {
			report.Failed++
			zap.S().Warn("dispatch reminder", zap.Error(err), zap.Int64("chat_id", req.ChatID),
				zap.String("batch_id", report.BatchID), zap.Time("at", at))
			continue
		}
		report.Scheduled++
	}

	zap.S().Info("reminder batch finished", zap.Int64("chat_id", req.ChatID), zap.String("batch_id", report.BatchID),
		zap.Int("scheduled", report.Scheduled), zap.Int("failed", report.Failed))

	return report, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
