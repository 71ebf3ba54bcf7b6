package users

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// UpsertFromTelegram регистрирует контакт. Имя обновляем, остальное не трогаем.
func (r *Repo) UpsertFromTelegram(ctx context.Context, telegramID int64, username string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (telegram_id, username)
		VALUES ($1,$2)
		ON CONFLICT (telegram_id) DO UPDATE SET username = EXCLUDED.username
	`, telegramID, username)
	return err
}
