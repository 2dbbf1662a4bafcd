package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/dbx"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/timex"
)

const (
	insertQuery = `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`
	findQuery = `
		SELECT user_id, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	deleteQuery = `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
	`
	deleteByUserQuery = `
		DELETE FROM refresh_tokens
		WHERE user_id = $1
	`
	deleteExpiredQuery = `
		DELETE FROM refresh_tokens
		WHERE user_id = $1 AND expires_at <= $2
	`
)

// PostgresRepository works over dbx.DBTX, so the same code runs on *sql.DB
// and inside a transaction.
type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: timex.Now}
}

func (r *PostgresRepository) Create(ctx context.Context, userID int64, token string, validity time.Duration) error {
	expires := r.now().Add(validity)
	if _, err := r.db.ExecContext(ctx, insertQuery, HashToken(token), userID, expires); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt := &models.RefreshToken{TokenHash: HashToken(token)}

	err := r.db.QueryRowContext(ctx, findQuery, rt.TokenHash).Scan(&rt.UserID, &rt.ExpiresAt, &rt.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, common.ErrorNotFound
	case err != nil:
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rt, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	return r.exec(ctx, deleteQuery, HashToken(token))
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return r.exec(ctx, deleteByUserQuery, userID)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteExpiredQuery, userID, r.now())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
