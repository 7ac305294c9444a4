package mood

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/romanzh1/mood-diary/internal/models"
	"github.com/romanzh1/mood-diary/internal/storage"
	"github.com/romanzh1/mood-diary/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HistoryMonths is the trailing window read by GetAllEntries, current month included.
// Entries older than that are not returned.
const HistoryMonths = 12

type Store struct {
	adapter *storage.Adapter
	now     func() time.Time
	locks   *keyedMutex
}

func NewStore(cloud storage.CloudStorage, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}

	return &Store{
		adapter: storage.NewAdapter(cloud),
		now:     now,
		locks:   newKeyedMutex(),
	}
}

func (s *Store) readBucket(ctx context.Context, telegramID int64, key string) (models.MonthBucket, error) {
	bucket := models.MonthBucket{}
	if _, err := s.adapter.ReadJSON(ctx, telegramID, key, &bucket); err != nil {
		return nil, err
	}
	if bucket == nil {
		bucket = models.MonthBucket{}
	}
	return bucket, nil
}

// GetEntry returns nil without an error when the day has no entry.
func (s *Store) GetEntry(ctx context.Context, telegramID int64, date time.Time) (*models.MoodEntry, error) {
	key := storage.MonthKey(date)

	bucket, err := s.readBucket(ctx, telegramID, key)
	if err != nil {
		return nil, fmt.Errorf("get entry (telegram_id: %d, date: %s): %w", telegramID, utils.DateKey(date), err)
	}

	entry, ok := bucket[utils.DateKey(date)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// SaveEntry overwrites the entry for date. Saves into the same bucket are serialised
// so two writes within one month never drop each other.
func (s *Store) SaveEntry(ctx context.Context, telegramID int64, date time.Time, entry models.MoodEntry) error {
	key := storage.MonthKey(date)
	dateKey := utils.DateKey(date)

	unlock := s.locks.Lock(fmt.Sprintf("%d/%s", telegramID, key))
	defer unlock()

	bucket, err := s.readBucket(ctx, telegramID, key)
	if err != nil {
		return fmt.Errorf("save entry (telegram_id: %d, date: %s): %w", telegramID, dateKey, err)
	}

	bucket[dateKey] = entry

	if err := s.adapter.WriteJSON(ctx, telegramID, key, bucket); err != nil {
		return fmt.Errorf("save entry (telegram_id: %d, date: %s): %w", telegramID, dateKey, err)
	}

	return nil
}

func (s *Store) GetTodayEntry(ctx context.Context, telegramID int64) (*models.MoodEntry, error) {
	return s.GetEntry(ctx, telegramID, s.now())
}

func (s *Store) SaveTodayEntry(ctx context.Context, telegramID int64, entry models.MoodEntry) error {
	return s.SaveEntry(ctx, telegramID, s.now(), entry)
}

// GetAllEntries merges the last HistoryMonths buckets. A month that fails to load is
// logged and treated as empty, so the result may be partial but never an error.
func (s *Store) GetAllEntries(ctx context.Context, telegramID int64) models.MonthBucket {
	return s.GetAllEntriesAt(ctx, telegramID, s.now())
}

func (s *Store) GetAllEntriesAt(ctx context.Context, telegramID int64, now time.Time) models.MonthBucket {
	keys := storage.RecentMonthKeys(now, HistoryMonths)
	buckets := make([]models.MonthBucket, len(keys))

	var g errgroup.Group
	for i, key := range keys {
		g.Go(func() error {
			bucket, err := s.readBucket(ctx, telegramID, key)
			if err != nil {
				zap.S().Warn("skip unreadable month", zap.Error(err), zap.Int64("telegram_id", telegramID), zap.String("key", key))
				return nil
			}
			buckets[i] = bucket
			return nil
		})
	}
	_ = g.Wait()

	all := models.MonthBucket{}
	for _, bucket := range buckets {
		maps.Copy(all, bucket)
	}
	return all
}

// GetUserSettings returns defaults for a user who never saved settings. Nothing is written.
func (s *Store) GetUserSettings(ctx context.Context, telegramID int64) (*models.UserSettings, error) {
	settings := models.DefaultUserSettings()

	found, err := s.adapter.ReadJSON(ctx, telegramID, storage.SettingsKey, &settings)
	if err != nil {
		return nil, fmt.Errorf("get user settings (telegram_id: %d): %w", telegramID, err)
	}
	if !found {
		settings = models.DefaultUserSettings()
	}

	return &settings, nil
}

func (s *Store) SaveUserSettings(ctx context.Context, telegramID int64, settings models.UserSettings) error {
	if err := s.adapter.WriteJSON(ctx, telegramID, storage.SettingsKey, settings); err != nil {
		return fmt.Errorf("save user settings (telegram_id: %d): %w", telegramID, err)
	}
	return nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
