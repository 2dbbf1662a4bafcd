package models

import "time"

// RefreshToken is a stored session. Only the SHA-256 of the opaque token
// is persisted; the plaintext lives with the client.
type RefreshToken struct {
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
