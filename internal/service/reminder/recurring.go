package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/romanzh1/mood-diary/internal/models"
	"github.com/romanzh1/mood-diary/pkg/utils"
	"go.uber.org/zap"
)

// Sender delivers a reminder message to a chat right now.
type Sender interface {
	SendReminder(ctx context.Context, chatID int64, text string) error
}

// Recurring keeps one daily cron entry per chat and sends the reminder itself.
// Saving settings again replaces the entry, so there are never duplicates.
type Recurring struct {
	mu       sync.Mutex
	cron     *rcron.Cron
	entries  map[int64]rcron.EntryID
	sender   Sender
	text     string
	location *time.Location
}

func NewRecurring(sender Sender, text string, location *time.Location) *Recurring {
	if text == "" {
		text = DefaultText
	}
	if location == nil {
		location = time.Local
	}

	return &Recurring{
		cron:     rcron.New(rcron.WithLocation(location)),
		entries:  make(map[int64]rcron.EntryID),
		sender:   sender,
		text:     text,
		location: location,
	}
}

func (r *Recurring) Start() {
	r.cron.Start()
	zap.S().Info("recurring reminders started", zap.Int("jobs", r.Len()))
}

func (r *Recurring) Stop() {
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		zap.S().Warn("recurring reminders stop timeout")
	}
}

func (r *Recurring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CronSpec builds a daily spec in the given zone, e.g. "CRON_TZ=Europe/Moscow 30 9 * * *".
func CronSpec(timeOfDay, timezone string) (string, error) {
	hour, minute, err := utils.ParseClock(timeOfDay)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}

	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if timezone == "" {
		return spec, nil
	}

	if _, err := time.LoadLocation(timezone); err != nil {
		return "", fmt.Errorf("load timezone (timezone: %s): %w", timezone, err)
	}
	return fmt.Sprintf("CRON_TZ=%s %s", timezone, spec), nil
}

func (r *Recurring) SetupReminder(ctx context.Context, req Request) (*models.ReminderReport, error) {
	spec, err := CronSpec(req.Time, req.Timezone)
	if err != nil {
		if req.Timezone == "" {
			return nil, fmt.Errorf("build cron spec (chat_id: %d, time: %s): %w", req.ChatID, req.Time, err)
		}
		zap.S().Warn("unknown timezone, using default", zap.Error(err), zap.Int64("chat_id", req.ChatID))
		if spec, err = CronSpec(req.Time, ""); err != nil {
			return nil, fmt.Errorf("build cron spec (chat_id: %d, time: %s): %w", req.ChatID, req.Time, err)
		}
	}

	chatID := req.ChatID
	text := r.text

	r.mu.Lock()
	defer r.mu.Unlock()

	if entryID, ok := r.entries[chatID]; ok {
		r.cron.Remove(entryID)
		delete(r.entries, chatID)
	}

	entryID, err := r.cron.AddFunc(spec, func() {
		if err := r.sender.SendReminder(context.Background(), chatID, text); err != nil {
			zap.S().Error("send recurring reminder", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("register cron job (chat_id: %d, spec: %s): %w", chatID, spec, err)
	}
	r.entries[chatID] = entryID

	zap.S().Info("recurring reminder registered", zap.Int64("chat_id", chatID), zap.String("spec", spec))

	return &models.ReminderReport{Mode: ModeCron, Scheduled: 1}, nil
}

// Schedule exposes the parsed schedule for chatID, used to compute upcoming runs without starting the cron.
func (r *Recurring) Schedule(chatID int64) rcron.Schedule {
	r.mu.Lock()
	entryID, ok := r.entries[chatID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.cron.Entry(entryID).Schedule
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, chatID int64, text string) error

func (f SenderFunc) SendReminder(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}
