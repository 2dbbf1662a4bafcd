// Package users declares the account store and its PostgreSQL
// implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/openblind/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmailIndex(ctx context.Context, index string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	SetActive(ctx context.Context, id int64, active bool) error
	UpdateRole(ctx context.Context, id int64, role string) error

	// List returns accounts ordered by id. A non-positive limit returns all
	// of them and ignores offset.
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)

	// ListForEmailMigration returns accounts whose email is still plaintext
	// or that have no blind index yet.
	ListForEmailMigration(ctx context.Context) ([]*models.User, error)
	UpdateEmail(ctx context.Context, id int64, email, index string) error
}
