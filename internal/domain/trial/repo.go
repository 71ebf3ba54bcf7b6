package trial

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo хранит постоянный список тех, кто уже брал пробный период.
// Записи никогда не удаляются: право на пробный период одноразовое,
// независимо от судьбы самой учётной записи.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) HasUsed(ctx context.Context, telegramID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM trial_usage WHERE telegram_id = $1)`,
		telegramID,
	).Scan(&exists)
	return exists, err
}

// MarkUsed идемпотентен: повторная пометка ничего не меняет.
func (r *Repo) MarkUsed(ctx context.Context, telegramID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO trial_usage (telegram_id) VALUES ($1)
		ON CONFLICT (telegram_id) DO NOTHING
	`, telegramID)
	return err
}
