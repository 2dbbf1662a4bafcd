// Package profiles implements personal profiles whose identifying fields
// are encrypted at rest, together with the batch jobs that migrate and
// verify legacy plaintext records.
package profiles

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/openblind/internal/server/models"
)

// Cipher is the part of cryptox.Engine the profiles layer depends on.
type Cipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, value string) (string, error)
	IsEncrypted(value string) bool
}

// ProfileData is a profile with every sensitive field decrypted. It is the
// shape handed to API callers.
type ProfileData struct {
	ID                string             `json:"id"`
	UserID            int64              `json:"userId"`
	GivenName         string             `json:"givenName"`
	FamilyName        string             `json:"familyName"`
	Phone             string             `json:"phone,omitempty"`
	ProfileImageURL   string             `json:"profileImageUrl,omitempty"`
	BirthDate         *time.Time         `json:"birthDate,omitempty"`
	Preferences       models.Preferences `json:"preferences"`
	EncryptionVersion string             `json:"encryptionVersion,omitempty"`
	LastProfileUpdate time.Time          `json:"lastProfileUpdate"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// Codec maps sensitive field values between their plaintext and stored
// forms. Every write and read of a sensitive field goes through it.
type Codec struct {
	cipher Cipher
}

func NewCodec(c Cipher) *Codec {
	return &Codec{cipher: c}
}

// EncodeField trims v and encrypts it. Empty values stay empty and values
// that already have the envelope shape are stored as they are, so a field
// is never encrypted twice.
func (c *Codec) EncodeField(ctx context.Context, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || c.cipher.IsEncrypted(v) {
		return v, nil
	}
	return c.cipher.Encrypt(ctx, v)
}

// DecodeField decrypts v. Legacy plaintext is returned unchanged.
func (c *Codec) DecodeField(ctx context.Context, v string) (string, error) {
	return c.cipher.Decrypt(ctx, v)
}

// IsSealed reports whether a stored value is either empty or an envelope.
func (c *Codec) IsSealed(v string) bool {
	return v == "" || c.cipher.IsEncrypted(v)
}

// Decode returns the plaintext view of a stored profile.
func (c *Codec) Decode(ctx context.Context, p *models.Profile) (*ProfileData, error) {
	d := &ProfileData{
		ID:                p.ID,
		UserID:            p.UserID,
		BirthDate:         p.BirthDate,
		Preferences:       p.Preferences,
		EncryptionVersion: p.EncryptionVersion,
		LastProfileUpdate: p.LastProfileUpdate,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}

	var err error
	if d.GivenName, err = c.DecodeField(ctx, p.GivenName); err != nil {
		return nil, err
	}
	if d.FamilyName, err = c.DecodeField(ctx, p.FamilyName); err != nil {
		return nil, err
	}
	if d.Phone, err = c.DecodeField(ctx, p.Phone); err != nil {
		return nil, err
	}
	if d.ProfileImageURL, err = c.DecodeField(ctx, p.ProfileImageURL); err != nil {
		return nil, err
	}

	return d, nil
}
