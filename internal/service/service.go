package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/romanzh1/mood-diary/internal/models"
	"github.com/romanzh1/mood-diary/internal/service/export"
	"github.com/romanzh1/mood-diary/internal/service/mood"
	"github.com/romanzh1/mood-diary/internal/service/reminder"
	"github.com/romanzh1/mood-diary/pkg/utils"
	"go.uber.org/zap"
)

var ErrInvalidTimezone = errors.New("invalid timezone")

var _ models.Service = (*Service)(nil)

// ReminderRegistrar is satisfied by both the webhook batch scheduler and the recurring cron mode.
type ReminderRegistrar interface {
	SetupReminder(ctx context.Context, req reminder.Request) (*models.ReminderReport, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReminderTimeout bounds one scheduling pass. Zero leaves it unbounded.
func WithReminderTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.reminderTimeout = d
	}
}

type Service struct {
	repo            models.Repository
	store           *mood.Store
	reminders       ReminderRegistrar
	location        *time.Location
	now             func() time.Time
	reminderTimeout time.Duration
}

// NewService wires the facade. reminders may be nil, in which case saving settings
// never schedules anything.
func NewService(repo models.Repository, reminders ReminderRegistrar, location *time.Location, opts ...Option) *Service {
	if location == nil {
		location = time.Local
	}

	s := &Service{
		repo:      repo,
		reminders: reminders,
		location:  location,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = mood.NewStore(repo, s.now)

	return s
}

func (s *Service) RegisterUser(ctx context.Context, identity models.Identity) error {
	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		user := &models.User{
			TelegramID: identity.UserID,
			FirstName:  identity.FirstName,
			Platform:   identity.Platform,
			CreatedAt:  s.now(),
		}
		return tx.UpsertUser(ctx, user)
	})
	if err != nil {
		return fmt.Errorf("register user (telegram_id: %d): %w", identity.UserID, err)
	}

	return nil
}

// Now is the current time in the user's timezone, or in the default location when
// the user never picked one.
func (s *Service) Now(ctx context.Context, telegramID int64) time.Time {
	now := s.now().In(s.location)

	settings, err := s.store.GetUserSettings(ctx, telegramID)
	if err != nil {
		zap.S().Warn("read settings for timezone", zap.Error(err), zap.Int64("telegram_id", telegramID))
		return now
	}

	return now.In(utils.LoadLocationOr(settings.Timezone, s.location))
}

func (s *Service) GetEntry(ctx context.Context, telegramID int64, date time.Time) (*models.MoodEntry, error) {
	return s.store.GetEntry(ctx, telegramID, date)
}

// SaveEntry clamps the score, trims the note and stamps the save time.
func (s *Service) SaveEntry(ctx context.Context, telegramID int64, date time.Time, score int, note string) (*models.MoodEntry, error) {
	entry := models.MoodEntry{
		Score:     models.ClampScore(score),
		Note:      models.TruncateNote(note),
		Timestamp: s.now().UnixMilli(),
	}

	if err := s.store.SaveEntry(ctx, telegramID, date, entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

func (s *Service) GetTodayEntry(ctx context.Context, telegramID int64) (*models.MoodEntry, error) {
	return s.store.GetEntry(ctx, telegramID, s.Now(ctx, telegramID))
}

func (s *Service) SaveTodayEntry(ctx context.Context, telegramID int64, score int, note string) (*models.MoodEntry, error) {
	return s.SaveEntry(ctx, telegramID, s.Now(ctx, telegramID), score, note)
}

func (s *Service) GetAllEntries(ctx context.Context, telegramID int64) (models.MonthBucket, error) {
	return s.store.GetAllEntriesAt(ctx, telegramID, s.Now(ctx, telegramID)), nil
}

func (s *Service) GetSettings(ctx context.Context, telegramID int64) (*models.UserSettings, error) {
	return s.store.GetUserSettings(ctx, telegramID)
}

// SaveSettings persists the settings as onboarded and then schedules reminders.
// An empty timezone keeps the one already stored.
// Reminder problems are reported and logged but never fail the save.
func (s *Service) SaveSettings(ctx context.Context, telegramID int64, reminderTime, timezone string) (*models.UserSettings, *models.ReminderReport, error) {
	normalized, err := utils.NormalizeClock(reminderTime)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", reminder.ErrInvalidTime, err)
	}

	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, timezone)
		}
	} else {
		current, err := s.store.GetUserSettings(ctx, telegramID)
		if err != nil {
			return nil, nil, err
		}
		timezone = current.Timezone
	}

	settings := models.UserSettings{
		ReminderTime: normalized,
		Onboarded:    true,
		Timezone:     timezone,
	}
	if err := s.store.SaveUserSettings(ctx, telegramID, settings); err != nil {
		return nil, nil, err
	}

	scheduleCtx := context.WithoutCancel(ctx)
	if s.reminderTimeout > 0 {
		var cancel context.CancelFunc
		scheduleCtx, cancel = context.WithTimeout(scheduleCtx, s.reminderTimeout)
		defer cancel()
	}
	report := s.scheduleReminder(scheduleCtx, telegramID, settings)

	return &settings, report, nil
}

func (s *Service) scheduleReminder(ctx context.Context, telegramID int64, settings models.UserSettings) *models.ReminderReport {
	if s.reminders == nil {
		zap.S().Warn("reminder backend not configured, skipping", zap.Int64("telegram_id", telegramID))
		return &models.ReminderReport{Skipped: true}
	}

	report, err := s.reminders.SetupReminder(ctx, reminder.Request{
		ChatID:   telegramID,
		Time:     settings.ReminderTime,
		Timezone: settings.Timezone,
	})
	if err != nil {
		zap.S().Error("setup reminder", zap.Error(err), zap.Int64("telegram_id", telegramID))
		return &models.ReminderReport{Skipped: true}
	}

	return report
}

func (s *Service) BuildExport(ctx context.Context, telegramID int64) (string, error) {
	entries, err := s.GetAllEntries(ctx, telegramID)
	if err != nil {
		return "", err
	}

	text, err := export.Generate(entries)
	if err != nil {
		return "", fmt.Errorf("build export (telegram_id: %d): %w", telegramID, err)
	}

	return text, nil
}

// StartupRecurring re-registers reminders for every onboarded user. It is meant for
// the in-process cron mode, whose jobs do not survive a restart.
func (s *Service) StartupRecurring(ctx context.Context) (int, error) {
	if s.reminders == nil {
		return 0, nil
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	registered := 0
	for _, user := range users {
		settings, err := s.store.GetUserSettings(ctx, user.TelegramID)
		if err != nil {
			zap.S().Warn("read settings on startup", zap.Error(err), zap.Int64("telegram_id", user.TelegramID))
			continue
		}
		if !settings.Onboarded {
			continue
		}

		report := s.scheduleReminder(ctx, user.TelegramID, *settings)
		if !report.Skipped {
			registered++
		}
	}

	zap.S().Info("reminders restored", zap.Int("users", len(users)), zap.Int("registered", registered))

	return registered, nil
}
