package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/dbx"
	"github.com/dmitrijs2005/openblind/internal/server/models"
)

const (
	userColumns = `id, email, COALESCE(email_index, ''), password_hash, role, active, created_at, updated_at`

	insertQuery = `
		INSERT INTO users (email, email_index, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, active, created_at, updated_at`
	byIDQuery         = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	byEmailIndexQuery = `SELECT ` + userColumns + ` FROM users WHERE email_index = $1`

	// Accounts without a blind index, or whose email is not envelope-shaped.
	pendingEmailQuery = `SELECT ` + userColumns + ` FROM users
		WHERE email_index IS NULL OR email_index = '' OR email NOT LIKE '%:%'
		ORDER BY id`

	listQuery    = `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`
	listAllQuery = `SELECT ` + userColumns + ` FROM users ORDER BY id`
	countQuery   = `SELECT COUNT(*) FROM users`

	setPasswordQuery = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	setActiveQuery   = `UPDATE users SET active = $2, updated_at = now() WHERE id = $1`
	setEmailQuery    = `UPDATE users SET email = $2, email_index = $3, updated_at = now() WHERE id = $1`
	setRoleQuery     = `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`
)

type PostgresRepository struct {
	db dbx.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*models.User, error) {
	u := &models.User{}
	if err := s.Scan(&u.ID, &u.Email, &u.EmailIndex, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func dbError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrorNotFound
	case dbx.IsUniqueViolation(err):
		return common.ErrorAlreadyExists
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

// Create inserts user and fills in the generated columns on the same value.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	err := r.db.QueryRowContext(ctx, insertQuery, user.Email, user.EmailIndex, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.Active, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, dbError(err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByEmailIndex(ctx context.Context, index string) (*models.User, error) {
	return r.one(ctx, byEmailIndexQuery, index)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.one(ctx, byIDQuery, id)
}

func (r *PostgresRepository) one(ctx context.Context, query string, arg any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, dbError(err)
	}
	return u, nil
}

func (r *PostgresRepository) ListForEmailMigration(ctx context.Context) ([]*models.User, error) {
	return r.many(ctx, pendingEmailQuery)
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 {
		return r.many(ctx, listAllQuery)
	}
	return r.many(ctx, listQuery, limit, max(offset, 0))
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&n); err != nil {
		return 0, dbError(err)
	}
	return n, nil
}

func (r *PostgresRepository) many(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, dbError(err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.update(ctx, setPasswordQuery, id, hash)
}

func (r *PostgresRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.update(ctx, setActiveQuery, id, active)
}

func (r *PostgresRepository) UpdateRole(ctx context.Context, id int64, role string) error {
	return r.update(ctx, setRoleQuery, id, role)
}

func (r *PostgresRepository) UpdateEmail(ctx context.Context, id int64, email, index string) error {
	return r.update(ctx, setEmailQuery, id, email, index)
}

// update runs a single-row UPDATE; zero affected rows is ErrorNotFound.
func (r *PostgresRepository) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
