// Package models defines server-side data models persisted by the stores.
package models

import "time"

// User is an account row. Email holds an envelope; EmailIndex is the blind
// index used for lookups, empty for rows not yet migrated.
type User struct {
	ID           int64
	Email        string
	EmailIndex   string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
