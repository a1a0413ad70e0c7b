package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const sql = `
INSERT INTO users (id, username, auto_approve, registered_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
  username     = EXCLUDED.username,
  auto_approve = EXCLUDED.auto_approve;`
	_, err := execSQL(ctx, r.pool, tx, sql, u.ID, u.Username, u.AutoApprove, u.RegisteredAt)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	const sql = `SELECT id, username, auto_approve, registered_at FROM users WHERE id = $1;`
	row, err := queryRow(ctx, r.pool, tx, sql, id)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.AutoApprove, &u.RegisteredAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (r *PostgresUserRepo) AutoApprove(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	const sql = `SELECT auto_approve FROM users WHERE id = $1;`
	row, err := queryRow(ctx, r.pool, tx, sql, userID)
	if err != nil {
		return false, err
	}
	var flag bool
	if err := row.Scan(&flag); err != nil {
		if err == pgx.ErrNoRows {
			return false, domain.ErrNotFound
		}
		return false, fmt.Errorf("auto-approve flag: %w", err)
	}
	return flag, nil
}
