package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/romanzh1/mood-diary/pkg/utils"
)

const SettingsKey = "user_settings"

// ErrMalformed is wrapped by Error when a stored value is not valid JSON for the target type.
var ErrMalformed = errors.New("malformed stored value")

// CloudStorage is the host key-value capability the adapter sits on.
type CloudStorage interface {
	GetItem(ctx context.Context, telegramID int64, key string) (string, bool, error)
	SetItem(ctx context.Context, telegramID int64, key, value string) error
}

// Error is returned for abnormal storage outcomes. An absent key is never an Error.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s (key: %s): %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MonthKey returns the bucket key for the month containing date, e.g. mood_2025_03.
func MonthKey(date time.Time) string {
	return fmt.Sprintf("mood_%d_%02d", date.Year(), int(date.Month()))
}

// RecentMonthKeys returns the keys of the month containing now and the months before it,
// newest first. Months are stepped from the first day so the 31st never skips a month.
func RecentMonthKeys(now time.Time, months int) []string {
	first := utils.StartOfMonth(now)

	keys := make([]string, 0, months)
	for i := range months {
		keys = append(keys, MonthKey(first.AddDate(0, -i, 0)))
	}
	return keys
}

type Adapter struct {
	cloud CloudStorage
}

func NewAdapter(cloud CloudStorage) *Adapter {
	return &Adapter{cloud: cloud}
}

// ReadJSON loads key into dst. found is false (with a nil error) when the key does not exist.
func (a *Adapter) ReadJSON(ctx context.Context, telegramID int64, key string, dst any) (bool, error) {
	raw, ok, err := a.cloud.GetItem(ctx, telegramID, key)
	if err != nil {
		return false, &Error{Op: "read", Key: key, Err: err}
	}

	if !ok || raw == "" {
		return false, nil
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, &Error{Op: "read", Key: key, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	return true, nil
}

func (a *Adapter) WriteJSON(ctx context.Context, telegramID int64, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &Error{Op: "write", Key: key, Err: err}
	}

	if err := a.cloud.SetItem(ctx, telegramID, key, string(raw)); err != nil {
		return &Error{Op: "write", Key: key, Err: err}
	}

	return nil
}
