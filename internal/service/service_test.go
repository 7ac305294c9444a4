package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/romanzh1/mood-diary/internal/models"
	"github.com/romanzh1/mood-diary/internal/service/export"
	"github.com/romanzh1/mood-diary/internal/service/reminder"
	"github.com/romanzh1/mood-diary/internal/storage"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	mu       sync.Mutex
	requests []reminder.Request
	err      error
	ctxErr   error
	deadline bool
}

func (f *fakeRegistrar) SetupReminder(ctx context.Context, req reminder.Request) (*models.ReminderReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	f.ctxErr = ctx.Err()
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return &models.ReminderReport{Mode: reminder.ModeWebhook, Scheduled: 14}, nil
}

var fixedNow = time.Date(2025, 3, 10, 21, 30, 0, 0, time.UTC)

func newTestService(registrar ReminderRegistrar) (*Service, *storage.Memory) {
	mem := storage.NewMemory()
	moscow, _ := time.LoadLocation("Europe/Moscow")
	svc := NewService(mem, registrar, moscow, WithClock(func() time.Time { return fixedNow }))
	return svc, mem
}

func TestRegisterUser(t *testing.T) {
	svc, mem := newTestService(nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterUser(ctx, models.Identity{UserID: 7, FirstName: "Anna", Platform: models.PlatformIOS}))
	require.NoError(t, svc.RegisterUser(ctx, models.Identity{UserID: 7, FirstName: "Anya", Platform: models.PlatformTDesktop}))

	user, err := mem.GetUser(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Anya", user.FirstName)
	require.Equal(t, models.PlatformTDesktop, user.Platform)
	require.Equal(t, fixedNow, user.CreatedAt)
}

func TestSaveEntryClampsAndStamps(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	entry, err := svc.SaveEntry(ctx, 1, date, 9, strings.Repeat("я", 600))
	require.NoError(t, err)
	require.Equal(t, models.MaxScore, entry.Score)
	require.Len(t, []rune(entry.Note), models.MaxNoteLength)
	require.Equal(t, fixedNow.UnixMilli(), entry.Timestamp)

	got, err := svc.GetEntry(ctx, 1, date)
	require.NoError(t, err)
	require.Equal(t, entry, got)

	entry, err = svc.SaveEntry(ctx, 1, date, -11, "")
	require.NoError(t, err)
	require.Equal(t, models.MinScore, entry.Score)
}

func TestTodayFollowsUserTimezone(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	// 21:30 UTC is already the next day in Moscow but not in New York.
	_, err := svc.SaveTodayEntry(ctx, 1, 2, "moscow")
	require.NoError(t, err)
	got, err := svc.GetEntry(ctx, 1, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)

	_, _, err = svc.SaveSettings(ctx, 2, "20:00", "America/New_York")
	require.NoError(t, err)
	_, err = svc.SaveTodayEntry(ctx, 2, -1, "ny")
	require.NoError(t, err)
	got, err = svc.GetEntry(ctx, 2, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "ny", got.Note)

	today, err := svc.GetTodayEntry(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, got, today)
}

func TestSaveSettingsSchedules(t *testing.T) {
	registrar := &fakeRegistrar{}
	svc, _ := newTestService(registrar)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	settings, report, err := svc.SaveSettings(ctx, 5, "9:05", "Asia/Yekaterinburg")
	require.NoError(t, err)
	require.Equal(t, models.UserSettings{ReminderTime: "09:05", Onboarded: true, Timezone: "Asia/Yekaterinburg"}, *settings)
	require.Equal(t, 14, report.Scheduled)

	require.Equal(t, []reminder.Request{{ChatID: 5, Time: "09:05", Timezone: "Asia/Yekaterinburg"}}, registrar.requests)
	require.NoError(t, registrar.ctxErr, "scheduling must outlive the caller's context")

	stored, err := svc.GetSettings(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, settings, stored)
}

func TestSaveSettingsKeepsStoredTimezone(t *testing.T) {
	svc, _ := newTestService(&fakeRegistrar{})
	ctx := context.Background()

	_, _, err := svc.SaveSettings(ctx, 5, "20:00", "Asia/Tokyo")
	require.NoError(t, err)

	settings, _, err := svc.SaveSettings(ctx, 5, "07:30", "")
	require.NoError(t, err)
	require.Equal(t, models.UserSettings{ReminderTime: "07:30", Onboarded: true, Timezone: "Asia/Tokyo"}, *settings)

	stored, err := svc.GetSettings(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "Asia/Tokyo", stored.Timezone)
}

// stuckRegistrar waits for its context like a hung webhook would.
type stuckRegistrar struct{}

func (stuckRegistrar) SetupReminder(ctx context.Context, req reminder.Request) (*models.ReminderReport, error) {
	<-ctx.Done()
	return &models.ReminderReport{Mode: reminder.ModeWebhook, Failed: 14}, nil
}

func TestSaveSettingsBoundsScheduling(t *testing.T) {
	registrar := &fakeRegistrar{}
	moscow, _ := time.LoadLocation("Europe/Moscow")
	svc := NewService(storage.NewMemory(), registrar, moscow, WithClock(func() time.Time { return fixedNow }), WithReminderTimeout(time.Minute))

	_, _, err := svc.SaveSettings(context.Background(), 5, "20:00", "")
	require.NoError(t, err)
	require.True(t, registrar.deadline)
	require.NoError(t, registrar.ctxErr)

	svc = NewService(storage.NewMemory(), stuckRegistrar{}, moscow, WithReminderTimeout(50*time.Millisecond))
	start := time.Now()
	_, report, err := svc.SaveSettings(context.Background(), 5, "20:00", "")
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 14, report.Failed)
}

func TestSaveSettingsReminderFailureKeepsSave(t *testing.T) {
	registrar := &fakeRegistrar{err: errors.New("boom")}
	svc, _ := newTestService(registrar)
	ctx := context.Background()

	_, report, err := svc.SaveSettings(ctx, 5, "20:00", "")
	require.NoError(t, err)
	require.True(t, report.Skipped)

	stored, err := svc.GetSettings(ctx, 5)
	require.NoError(t, err)
	require.True(t, stored.Onboarded)
}

func TestSaveSettingsWithoutBackend(t *testing.T) {
	svc, _ := newTestService(nil)

	_, report, err := svc.SaveSettings(context.Background(), 5, "20:00", "")
	require.NoError(t, err)
	require.True(t, report.Skipped)
}

func TestSaveSettingsRejectsInput(t *testing.T) {
	registrar := &fakeRegistrar{}
	svc, _ := newTestService(registrar)
	ctx := context.Background()

	_, _, err := svc.SaveSettings(ctx, 5, "25:00", "")
	require.ErrorIs(t, err, reminder.ErrInvalidTime)

	_, _, err = svc.SaveSettings(ctx, 5, "20:00", "Mars/Olympus")
	require.ErrorIs(t, err, ErrInvalidTimezone)

	require.Empty(t, registrar.requests)

	settings, err := svc.GetSettings(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, models.DefaultUserSettings(), *settings)
}

func TestBuildExport(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	text, err := svc.BuildExport(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, export.Preamble+"\n\n[]", text)

	_, err = svc.SaveEntry(ctx, 1, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), 3, "date")
	require.NoError(t, err)

	text, err = svc.BuildExport(ctx, 1)
	require.NoError(t, err)
	require.Contains(t, text, `"date": "2025-02-14"`)
	require.Contains(t, text, `"note": "date"`)
}

func TestStartupRecurring(t *testing.T) {
	registrar := &fakeRegistrar{}
	svc, _ := newTestService(registrar)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, svc.RegisterUser(ctx, models.Identity{UserID: id}))
	}
	_, _, err := svc.SaveSettings(ctx, 1, "08:00", "")
	require.NoError(t, err)
	_, _, err = svc.SaveSettings(ctx, 3, "22:15", "Europe/Moscow")
	require.NoError(t, err)
	registrar.requests = nil

	registered, err := svc.StartupRecurring(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, registered)
	require.Equal(t, []reminder.Request{
		{ChatID: 1, Time: "08:00"},
		{ChatID: 3, Time: "22:15", Timezone: "Europe/Moscow"},
	}, registrar.requests)
}
