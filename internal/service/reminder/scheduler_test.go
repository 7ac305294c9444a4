package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/romanzh1/mood-diary/internal/models"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	calls  []models.ScheduledReminder
	failAt map[int]bool // 1-based call numbers that fail
}

func (d *recordingDispatcher) Dispatch(_ context.Context, reminder models.ScheduledReminder) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, reminder)
	if d.failAt[len(d.calls)] {
		return errors.New("webhook unreachable")
	}
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestScheduler(d Dispatcher, now time.Time) *Scheduler {
	s := NewScheduler(d, WithClock(func() time.Time { return now }))
	s.sleep = noSleep
	return s
}

func TestCandidatesIncludeTodayWhenStillAhead(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	got, err := Candidates(now, "09:30", 14)
	require.NoError(t, err)
	require.Len(t, got, 14)
	require.Equal(t, time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), got[0])
	require.Equal(t, time.Date(2025, 3, 23, 9, 30, 0, 0, time.UTC), got[13])
}

func TestCandidatesSkipTodayWhenPassed(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	got, err := Candidates(now, "09:30", 14)
	require.NoError(t, err)
	require.Len(t, got, 13)
	require.Equal(t, time.Date(2025, 3, 11, 9, 30, 0, 0, time.UTC), got[0])
}

func TestCandidatesExactlyNowIsNotFuture(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	got, err := Candidates(now, "09:30", 14)
	require.NoError(t, err)
	require.Len(t, got, 13)
}

func TestCandidatesZeroSecondsAcrossMonthEnd(t *testing.T) {
	now := time.Date(2025, 1, 30, 21, 15, 42, 5000, time.UTC)

	got, err := Candidates(now, "21:00", 3)
	require.NoError(t, err)
	require.Equal(t, []time.Time{
		time.Date(2025, 1, 31, 21, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 1, 21, 0, 0, 0, time.UTC),
	}, got)
}

func TestCandidatesRejectMalformedTime(t *testing.T) {
	for _, value := range []string{"", "25:00", "9:5", "ab:cd", "12:60", "12-30"} {
		_, err := Candidates(time.Now(), value, 14)
		require.ErrorIs(t, err, ErrInvalidTime, value)
	}
}

func TestSetupReminderDispatchesEveryCandidate(t *testing.T) {
	d := &recordingDispatcher{}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	report, err := newTestScheduler(d, now).SetupReminder(context.Background(), Request{ChatID: 42, Time: "09:30", Timezone: "Europe/Moscow"})
	require.NoError(t, err)
	require.Equal(t, 14, report.Scheduled)
	require.Zero(t, report.Failed)
	require.Equal(t, ModeWebhook, report.Mode)
	require.NotEmpty(t, report.BatchID)

	require.Len(t, d.calls, 14)
	for i, call := range d.calls {
		require.Equal(t, int64(42), call.ChatID)
		require.Equal(t, DefaultText, call.Text)
		require.Equal(t, "Europe/Moscow", call.Timezone)
		// the label is informational, instants stay in the clock's location
		require.Equal(t, time.UTC, call.At.Location())
		if i > 0 {
			require.True(t, call.At.After(d.calls[i-1].At))
		}
	}
}

func TestSetupReminderIsolatesFailures(t *testing.T) {
	d := &recordingDispatcher{failAt: map[int]bool{5: true}}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	report, err := newTestScheduler(d, now).SetupReminder(context.Background(), Request{ChatID: 1, Time: "09:30"})
	require.NoError(t, err)
	require.Len(t, d.calls, 14)
	require.Equal(t, 13, report.Scheduled)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, time.Date(2025, 3, 23, 9, 30, 0, 0, time.UTC), d.calls[13].At)
}

func TestSetupReminderAllFailuresStillNoError(t *testing.T) {
	fail := map[int]bool{}
	for i := 1; i <= 14; i++ {
		fail[i] = true
	}
	d := &recordingDispatcher{failAt: fail}

	report, err := newTestScheduler(d, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)).
		SetupReminder(context.Background(), Request{ChatID: 1, Time: "09:30"})
	require.NoError(t, err)
	require.Equal(t, 14, report.Failed)
	require.Zero(t, report.Scheduled)
}

func TestSetupReminderMalformedTime(t *testing.T) {
	d := &recordingDispatcher{}

	_, err := newTestScheduler(d, time.Now()).SetupReminder(context.Background(), Request{ChatID: 1, Time: "late"})
	require.ErrorIs(t, err, ErrInvalidTime)
	require.Empty(t, d.calls)
}

func TestSetupReminderWaitsBetweenRequests(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewScheduler(d,
		WithClock(func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }),
		WithHorizon(4),
		WithDelay(200*time.Millisecond),
		WithText("ping"),
	)

	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	report, err := s.SetupReminder(context.Background(), Request{ChatID: 1, Time: "10:00"})
	require.NoError(t, err)
	require.Equal(t, 4, report.Scheduled)
	require.Equal(t, []time.Duration{200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond}, waits)
	require.Equal(t, "ping", d.calls[0].Text)
}

func TestSetupReminderStopsOnCancelledContext(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewScheduler(d,
		WithClock(func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }),
		WithDelay(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := s.SetupReminder(ctx, Request{ChatID: 1, Time: "10:00"})
	require.NoError(t, err)
	require.Len(t, d.calls, 1)
	require.Equal(t, 13, report.Failed)
}
