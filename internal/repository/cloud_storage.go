package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/romanzh1/mood-diary/internal/storage"
)

func (r *Postgres) GetItem(ctx context.Context, telegramID int64, key string) (string, bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", false, err
	}

	query := r.psql.Select("value").
		From("cloud_storage").
		Where(squirrel.Eq{"telegram_id": telegramID, "key": key})

	stmt, args, err := query.ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build SQL query (telegram_id: %d, key: %s): %w", telegramID, key, err)
	}

	var value string
	if err := r.GetContext(ctx, &value, stmt, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get item (telegram_id: %d, key: %s): %w", telegramID, key, err)
	}

	return value, true, nil
}

func (r *Postgres) SetItem(ctx context.Context, telegramID int64, key, value string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	query := r.psql.Insert("cloud_storage").
		Columns("telegram_id", "key", "value", "updated_at").
		Values(telegramID, key, value, squirrel.Expr("NOW()")).
		Suffix("ON CONFLICT (telegram_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at")

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d, key: %s): %w", telegramID, key, err)
	}

	if _, err := r.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("set item (telegram_id: %d, key: %s): %w", telegramID, key, err)
	}
	return nil
}

// GetItems returns only the keys that exist.
func (r *Postgres) GetItems(ctx context.Context, telegramID int64, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	for _, key := range keys {
		if err := storage.ValidateKey(key); err != nil {
			return nil, err
		}
	}

	query := r.psql.Select("key", "value").
		From("cloud_storage").
		Where(squirrel.Eq{"telegram_id": telegramID, "key": keys})

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SQL query (telegram_id: %d): %w", telegramID, err)
	}

	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := r.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("get items (telegram_id: %d, keys: %d): %w", telegramID, len(keys), err)
	}

	for _, row := range rows {
		result[row.Key] = row.Value
	}
	return result, nil
}
