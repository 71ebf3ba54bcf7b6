package accounts

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Get(ctx context.Context, login string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT login, telegram_id, password, expires_at, is_trial, created_at, updated_at
		FROM accounts WHERE login = $1
	`, login)

	var a Account
	if err := row.Scan(&a.Login, &a.TelegramID, &a.Password, &a.ExpiresAt, &a.IsTrial, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// Upsert полностью перезаписывает запись по логину.
func (r *Repo) Upsert(ctx context.Context, a Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (login, telegram_id, password, expires_at, is_trial)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (login) DO UPDATE SET
			telegram_id = EXCLUDED.telegram_id,
			password    = EXCLUDED.password,
			expires_at  = EXCLUDED.expires_at,
			is_trial    = EXCLUDED.is_trial,
			updated_at  = now()
	`, a.Login, a.TelegramID, a.Password, a.ExpiresAt, a.IsTrial)
	return err
}

// Delete возвращает false, если записи не было.
func (r *Repo) Delete(ctx context.Context, login string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE login = $1`, login)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT login, telegram_id, password, expires_at, is_trial, created_at, updated_at
		FROM accounts ORDER BY expires_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Login, &a.TelegramID, &a.Password, &a.ExpiresAt, &a.IsTrial, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
