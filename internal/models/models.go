package models

import (
	"errors"
	"time"
	"unicode/utf8"
)

var ErrUserNotFound = errors.New("user not found")

const (
	MinScore = -5
	MaxScore = 5

	// MaxNoteLength is a soft cap applied by input layers, the store keeps whatever it is given.
	MaxNoteLength = 500

	DefaultReminderTime = "20:00"
)

// MoodEntry is the single record a user keeps for a calendar day.
type MoodEntry struct {
	Score     int    `json:"score"`
	Note      string `json:"note"`
	Timestamp int64  `json:"timestamp"` // epoch ms
}

// MonthBucket maps YYYY-MM-DD to the entry of that day. All keys share one year/month.
type MonthBucket map[string]MoodEntry

type UserSettings struct {
	ReminderTime string `json:"reminderTime"` // "HH:MM"
	Onboarded    bool   `json:"onboarded"`
	Timezone     string `json:"timezone,omitempty"`
}

func DefaultUserSettings() UserSettings {
	return UserSettings{
		ReminderTime: DefaultReminderTime,
		Onboarded:    false,
	}
}

// ScheduledReminder is computed on every settings save and handed straight to a dispatcher.
type ScheduledReminder struct {
	ChatID   int64
	At       time.Time
	Text     string
	Timezone string
}

type User struct {
	TelegramID int64     `db:"telegram_id"`
	FirstName  string    `db:"first_name"`
	Platform   Platform  `db:"platform"`
	CreatedAt  time.Time `db:"created_at"`
}

// Identity is what the host (Telegram) tells us about the current user.
type Identity struct {
	UserID    int64
	FirstName string
	Platform  Platform
}

type Platform string

const (
	PlatformAndroid  Platform = "android"
	PlatformIOS      Platform = "ios"
	PlatformMacOS    Platform = "macos"
	PlatformTDesktop Platform = "tdesktop"
	PlatformWeb      Platform = "web"
	PlatformWebA     Platform = "weba"
	PlatformWebK     Platform = "webk"
	PlatformUnknown  Platform = "unknown"
)

func ParsePlatform(value string) Platform {
	switch p := Platform(value); p {
	case PlatformAndroid, PlatformIOS, PlatformMacOS, PlatformTDesktop, PlatformWeb, PlatformWebA, PlatformWebK:
		return p
	default:
		return PlatformUnknown
	}
}

// IsDesktop reports whether the client should get the desktop chart layout.
func (p Platform) IsDesktop() bool {
	switch p {
	case PlatformMacOS, PlatformTDesktop, PlatformWeb, PlatformWebA, PlatformWebK:
		return true
	}
	return false
}

func ClampScore(score int) int {
	return max(MinScore, min(MaxScore, score))
}

func TruncateNote(note string) string {
	if utf8.RuneCountInString(note) <= MaxNoteLength {
		return note
	}
	runes := []rune(note)
	return string(runes[:MaxNoteLength])
}
