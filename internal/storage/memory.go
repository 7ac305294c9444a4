package storage

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/romanzh1/mood-diary/internal/models"
)

var keyRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateKey applies Telegram CloudStorage key rules.
func ValidateKey(key string) error {
	if !keyRegex.MatchString(key) {
		return fmt.Errorf("invalid storage key (key: %q)", key)
	}
	return nil
}

// Memory is an in-process models.Repository. Data is lost on restart.
type Memory struct {
	mu    sync.RWMutex
	items map[int64]map[string]string
	users map[int64]models.User
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[int64]map[string]string),
		users: make(map[int64]models.User),
	}
}

func (m *Memory) GetItem(ctx context.Context, telegramID int64, key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.items[telegramID][key]
	return value, ok, nil
}

func (m *Memory) SetItem(ctx context.Context, telegramID int64, key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.items[telegramID] == nil {
		m.items[telegramID] = make(map[string]string)
	}
	m.items[telegramID][key] = value
	return nil
}

func (m *Memory) GetItems(ctx context.Context, telegramID int64, keys []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return nil, err
		}
		if value, ok := m.items[telegramID][key]; ok {
			result[key] = value
		}
	}
	return result, nil
}

func (m *Memory) UpsertUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.users[user.TelegramID]; ok {
		user.CreatedAt = existing.CreatedAt
	}
	m.users[user.TelegramID] = *user
	return nil
}

func (m *Memory) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[telegramID]
	if !ok {
		return nil, fmt.Errorf("get user (telegram_id: %d): %w", telegramID, models.ErrUserNotFound)
	}
	return &user, nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, user := range m.users {
		u := user
		users = append(users, &u)
	}
	slices.SortFunc(users, func(a, b *models.User) int {
		return cmp.Compare(a.TelegramID, b.TelegramID)
	})
	return users, nil
}

// RunInTx runs fn directly; single calls are already atomic under the mutex.
func (m *Memory) RunInTx(ctx context.Context, fn func(models.Repository) error) error {
	return fn(m)
}
