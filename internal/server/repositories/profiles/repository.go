// Package profiles declares the record store for personal profiles and
// provides MongoDB and in-memory implementations.
//
// Stores are dumb: they persist whatever values they are given. Encryption
// happens above them, in the profiles service and its codec.
package profiles

import (
	"context"
	"time"

	"github.com/dmitrijs2005/openblind/internal/server/models"
)

// Filter selects profiles by equality and existence on plain fields.
// Zero values mean "any".
type Filter struct {
	UserID int64

	// Version matches encryptionVersion == Version.
	Version string

	// ExcludeVersion matches encryptionVersion != ExcludeVersion, including
	// records without the field. Ignored when Version is set.
	ExcludeVersion string

	// Limit caps the number of records returned by Load.
	Limit int64
}

// Fields is a partial update keyed by the models.Field* names. Values are
// string for sensitive fields and encryptionVersion, *time.Time for
// birthDate, models.Preferences for preferences, time.Time for timestamps.
type Fields map[string]any

// Repository is the record store adapter used by the profiles service and
// the migration jobs.
type Repository interface {
	// Load returns the profiles matching f, oldest first.
	Load(ctx context.Context, f Filter) ([]*models.Profile, error)

	// FindByUserID returns common.ErrorNotFound when the user has no profile.
	FindByUserID(ctx context.Context, userID int64) (*models.Profile, error)

	// Save inserts a new profile and returns it with its ID set.
	// A second profile for the same user yields common.ErrorAlreadyExists.
	Save(ctx context.Context, p *models.Profile) (*models.Profile, error)

	// UpdateFields applies fields to the profile with the given id only if its
	// stored lastProfileUpdate still equals expected (a zero expected matches
	// records that never had one). A mismatch yields common.ErrVersionConflict,
	// a missing record common.ErrorNotFound.
	UpdateFields(ctx context.Context, id string, fields Fields, expected time.Time) error

	// Count returns the number of profiles matching f. Limit is ignored.
	Count(ctx context.Context, f Filter) (int64, error)

	// DeleteByUserID removes the user's profile. common.ErrorNotFound when
	// there is nothing to delete.
	DeleteByUserID(ctx context.Context, userID int64) error
}
