package claims

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAlreadyDecided — заявку уже подтвердили или отклонили.
// Повторное подтверждение не должно продлевать подписку ещё раз.
var ErrAlreadyDecided = errors.New("claims: already decided")

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Create(ctx context.Context, telegramID int64, username string, amount int, channel Channel) (*Claim, error) {
	id := uuid.NewString()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO claims (id, telegram_id, username, amount, channel)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, telegram_id, username, amount, channel, status, created_at, decided_at
	`, id, telegramID, username, amount, channel)
	return scanClaim(row)
}

func (r *Repo) Get(ctx context.Context, id string) (*Claim, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, telegram_id, username, amount, channel, status, created_at, decided_at
		FROM claims WHERE id = $1
	`, id)
	c, err := scanClaim(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// Decide переводит заявку из pending в итоговый статус ровно один раз.
func (r *Repo) Decide(ctx context.Context, id string, status Status) (*Claim, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE claims SET status = $2, decided_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING id, telegram_id, username, amount, channel, status, created_at, decided_at
	`, id, status)
	c, err := scanClaim(row)
	if err == pgx.ErrNoRows {
		return nil, ErrAlreadyDecided
	}
	return c, err
}

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	if err := row.Scan(&c.ID, &c.TelegramID, &c.Username, &c.Amount, &c.Channel, &c.Status, &c.CreatedAt, &c.DecidedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
