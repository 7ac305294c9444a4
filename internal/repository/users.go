package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/romanzh1/mood-diary/internal/models"
)

// UpsertUser keeps created_at of an existing row and refreshes the rest.
func (r *Postgres) UpsertUser(ctx context.Context, user *models.User) error {
	query := r.psql.Insert("users").
		Columns("telegram_id", "first_name", "platform", "created_at").
		Values(user.TelegramID, user.FirstName, string(user.Platform), user.CreatedAt).
		Suffix("ON CONFLICT (telegram_id) DO UPDATE SET first_name = EXCLUDED.first_name, platform = EXCLUDED.platform")

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d): %w", user.TelegramID, err)
	}

	if _, err = r.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert user (telegram_id: %d, first_name: %s): %w", user.TelegramID, user.FirstName, err)
	}
	return nil
}

func (r *Postgres) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	query := r.psql.Select("telegram_id", "first_name", "platform", "created_at").
		From("users").
		Where("telegram_id = ?", telegramID)

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SQL query (telegram_id: %d): %w", telegramID, err)
	}

	var user models.User
	if err := r.GetContext(ctx, &user, stmt, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get user (telegram_id: %d): %w", telegramID, models.ErrUserNotFound)
		}
		return nil, fmt.Errorf("get user (telegram_id: %d): %w", telegramID, err)
	}

	return &user, nil
}

func (r *Postgres) ListUsers(ctx context.Context) ([]*models.User, error) {
	query := r.psql.Select("telegram_id", "first_name", "platform", "created_at").
		From("users").
		OrderBy("telegram_id")

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SQL query: %w", err)
	}

	var users []*models.User
	if err := r.SelectContext(ctx, &users, stmt, args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return users, nil
}
