// Package refreshtokens stores refresh-token sessions in PostgreSQL. Tokens
// are looked up by their SHA-256 so a database dump cannot be replayed.
package refreshtokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dmitrijs2005/openblind/internal/server/models"
)

type Repository interface {
	// Create stores token for userID, valid for validity from now.
	Create(ctx context.Context, userID int64, token string, validity time.Duration) error

	// Find returns the session of token or common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete revokes token. Unknown tokens are not an error.
	Delete(ctx context.Context, token string) error

	// DeleteByUser revokes every session of userID.
	DeleteByUser(ctx context.Context, userID int64) error

	// DeleteExpired drops the expired sessions of userID and reports how many
	// were removed.
	DeleteExpired(ctx context.Context, userID int64) (int64, error)
}

// HashToken is the lookup key stored in place of the token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
