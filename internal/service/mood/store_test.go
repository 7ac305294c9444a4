package mood

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/romanzh1/mood-diary/internal/models"
	"github.com/romanzh1/mood-diary/internal/storage"
	"github.com/stretchr/testify/require"
)

// flakyCloud fails reads for the listed keys and otherwise delegates to memory.
type flakyCloud struct {
	*storage.Memory
	failKeys map[string]bool
}

func (f *flakyCloud) GetItem(ctx context.Context, telegramID int64, key string) (string, bool, error) {
	if f.failKeys[key] {
		return "", false, errors.New("host unavailable")
	}
	return f.Memory.GetItem(ctx, telegramID, key)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

func TestSaveAndGetEntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory(), fixedClock(day(2025, 3, 10)))

	entry := models.MoodEntry{Score: 3, Note: "good walk", Timestamp: 1741600000000}
	require.NoError(t, store.SaveEntry(ctx, 1, day(2025, 3, 9), entry))

	got, err := store.GetEntry(ctx, 1, day(2025, 3, 9))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, entry, *got)
}

func TestGetEntryMissingDay(t *testing.T) {
	store := NewStore(storage.NewMemory(), nil)

	got, err := store.GetEntry(context.Background(), 1, day(2025, 3, 9))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSaveEntryKeepsOtherDaysInBucket(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory(), nil)

	first := models.MoodEntry{Score: -1, Note: "d1", Timestamp: 1}
	second := models.MoodEntry{Score: 4, Note: "d2", Timestamp: 2}
	require.NoError(t, store.SaveEntry(ctx, 1, day(2025, 3, 1), first))
	require.NoError(t, store.SaveEntry(ctx, 1, day(2025, 3, 2), second))

	// overwrite d1, d2 must stay untouched
	require.NoError(t, store.SaveEntry(ctx, 1, day(2025, 3, 1), models.MoodEntry{Score: 0, Timestamp: 3}))

	got, err := store.GetEntry(ctx, 1, day(2025, 3, 2))
	require.NoError(t, err)
	require.Equal(t, second, *got)

	got, err = store.GetEntry(ctx, 1, day(2025, 3, 1))
	require.NoError(t, err)
	require.Equal(t, 0, got.Score)
}

func TestSaveEntryDoesNotRejectOutOfRangeScore(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory(), nil)

	require.NoError(t, store.SaveEntry(ctx, 1, day(2025, 3, 1), models.MoodEntry{Score: 9}))

	got, err := store.GetEntry(ctx, 1, day(2025, 3, 1))
	require.NoError(t, err)
	require.Equal(t, 9, got.Score)
}

func TestConcurrentSavesInSameMonthAreNotLost(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory(), nil)

	var wg sync.WaitGroup
	for d := 1; d <= 28; d++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, store.SaveEntry(ctx, 1, day(2025, 2, d), models.MoodEntry{Score: d % 5}))
		}()
	}
	wg.Wait()

	all := store.GetAllEntriesAt(ctx, 1, day(2025, 2, 28))
	require.Len(t, all, 28)
	require.Empty(t, store.locks.locks)
}

func TestGetAllEntriesWindow(t *testing.T) {
	ctx := context.Background()
	now := day(2025, 3, 15)
	store := NewStore(storage.NewMemory(), fixedClock(now))

	// current month, 11 months back (April 2024) and 12 months back (March 2024)
	require.NoError(t, store.SaveEntry(ctx, 1, day(2025, 3, 1), models.MoodEntry{Score: 1}))
	require.NoError(t, store.SaveEntry(ctx, 1, day(2024, 4, 30), models.MoodEntry{Score: 2}))
	require.NoError(t, store.SaveEntry(ctx, 1, day(2024, 3, 31), models.MoodEntry{Score: 3}))
	require.NoError(t, store.SaveEntry(ctx, 2, day(2025, 3, 2), models.MoodEntry{Score: 4}))

	all := store.GetAllEntries(ctx, 1)
	require.Equal(t, models.MonthBucket{
		"2025-03-01": {Score: 1},
		"2024-04-30": {Score: 2},
	}, all)
}

func TestGetAllEntriesToleratesFailingMonth(t *testing.T) {
	ctx := context.Background()
	cloud := &flakyCloud{Memory: storage.NewMemory(), failKeys: map[string]bool{"mood_2025_02": true}}
	store := NewStore(cloud, fixedClock(day(2025, 3, 15)))

	require.NoError(t, store.SaveEntry(ctx, 1, day(2025, 3, 1), models.MoodEntry{Score: 1}))
	require.NoError(t, cloud.Memory.SetItem(ctx, 1, "mood_2025_02", `{"2025-02-01":{"score":-3,"note":"","timestamp":0}}`))
	require.NoError(t, cloud.Memory.SetItem(ctx, 1, "mood_2025_01", `not json`))
	require.NoError(t, store.SaveEntry(ctx, 1, day(2024, 12, 5), models.MoodEntry{Score: 5}))

	all := store.GetAllEntries(ctx, 1)
	require.Equal(t, models.MonthBucket{
		"2025-03-01": {Score: 1},
		"2024-12-05": {Score: 5},
	}, all)
}

func TestGetAllEntriesEmpty(t *testing.T) {
	store := NewStore(storage.NewMemory(), nil)
	all := store.GetAllEntries(context.Background(), 1)
	require.NotNil(t, all)
	require.Empty(t, all)
}

func TestGetEntryPropagatesStorageErrors(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.SetItem(ctx, 1, "mood_2025_03", "[1,2"))
	store := NewStore(mem, nil)

	_, err := store.GetEntry(ctx, 1, day(2025, 3, 1))
	require.ErrorIs(t, err, storage.ErrMalformed)

	err = store.SaveEntry(ctx, 1, day(2025, 3, 1), models.MoodEntry{})
	require.ErrorIs(t, err, storage.ErrMalformed)
}

func TestUserSettingsDefaultsWithoutWriting(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	store := NewStore(mem, nil)

	settings, err := store.GetUserSettings(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.UserSettings{ReminderTime: "20:00", Onboarded: false}, *settings)

	_, found, err := mem.GetItem(ctx, 1, storage.SettingsKey)
	require.NoError(t, err)
	require.False(t, found)
}

func TestUserSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory(), nil)

	saved := models.UserSettings{ReminderTime: "09:30", Onboarded: true, Timezone: "Europe/Moscow"}
	require.NoError(t, store.SaveUserSettings(ctx, 1, saved))

	settings, err := store.GetUserSettings(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, saved, *settings)
}

func TestUserSettingsCorruptRecord(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.SetItem(ctx, 1, storage.SettingsKey, "oops"))

	_, err := NewStore(mem, nil).GetUserSettings(ctx, 1)
	require.ErrorIs(t, err, storage.ErrMalformed)
}

func TestTodayHelpersUseClock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	store := NewStore(storage.NewMemory(), fixedClock(now))

	require.NoError(t, store.SaveTodayEntry(ctx, 1, models.MoodEntry{Score: -4}))

	got, err := store.GetEntry(ctx, 1, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, -4, got.Score)

	today, err := store.GetTodayEntry(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, got, today)
}

func TestKeyedMutexSerialises(t *testing.T) {
	k := newKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(fmt.Sprintf("key-%d", i%2))
			defer unlock()
			if i%2 == 0 {
				counter++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 25, counter)
	require.Empty(t, k.locks)
}
