package models

import (
	"context"
	"time"
)

// Repository is the host persistence capability: a per-user string key-value store
// with Telegram CloudStorage semantics, plus a small registry of known users.
type Repository interface {
	GetItem(ctx context.Context, telegramID int64, key string) (string, bool, error)
	SetItem(ctx context.Context, telegramID int64, key, value string) error
	GetItems(ctx context.Context, telegramID int64, keys []string) (map[string]string, error)

	UpsertUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, telegramID int64) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	RunInTx(ctx context.Context, fn func(Repository) error) error
}

type Service interface {
	RegisterUser(ctx context.Context, identity Identity) error
	Now(ctx context.Context, telegramID int64) time.Time

	GetEntry(ctx context.Context, telegramID int64, date time.Time) (*MoodEntry, error)
	SaveEntry(ctx context.Context, telegramID int64, date time.Time, score int, note string) (*MoodEntry, error)
	GetTodayEntry(ctx context.Context, telegramID int64) (*MoodEntry, error)
	SaveTodayEntry(ctx context.Context, telegramID int64, score int, note string) (*MoodEntry, error)
	GetAllEntries(ctx context.Context, telegramID int64) (MonthBucket, error)

	GetSettings(ctx context.Context, telegramID int64) (*UserSettings, error)
	SaveSettings(ctx context.Context, telegramID int64, reminderTime, timezone string) (*UserSettings, *ReminderReport, error)

	BuildExport(ctx context.Context, telegramID int64) (string, error)
}

// ReminderReport summarises one scheduling pass.
type ReminderReport struct {
	BatchID   string
	Mode      string
	Scheduled int
	Failed    int
	Skipped   bool
}
