package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	repo "github.com/dmitrijs2005/openblind/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/openblind/internal/timex"
)

// upsertAttempts bounds the find/update cycle when concurrent writers keep
// invalidating the compare-and-swap token.
const upsertAttempts = 3

// Service creates, updates and reads encrypted profiles.
type Service struct {
	repo   repo.Repository
	codec  *Codec
	logger logging.Logger
	now    func() time.Time
}

func NewService(r repo.Repository, c Cipher, l logging.Logger) *Service {
	return &Service{
		repo:   r,
		codec:  NewCodec(c),
		logger: l.With("module", "profiles"),
		now:    timex.Now,
	}
}

// nextUpdate returns a timestamp strictly after prev so every successful
// write changes the compare-and-swap token.
func (s *Service) nextUpdate(prev time.Time) time.Time {
	now := timex.Truncate(s.now())
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}

// CreateEncrypted builds a new profile for userID from patch, encrypts its
// sensitive fields and persists it tagged with the current encryption
// version. Given and family name are required.
func (s *Service) CreateEncrypted(ctx context.Context, userID int64, patch Patch) (*models.Profile, error) {
	if userID <= 0 {
		return nil, invalid("userId is required")
	}

	now := timex.Truncate(s.now())
	p := &models.Profile{
		UserID:            userID,
		Preferences:       models.DefaultPreferences(),
		EncryptionVersion: common.EncryptionVersion,
		LastProfileUpdate: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	plain, err := s.applyPatch(p, patch.Editable())
	if err != nil {
		return nil, err
	}
	if plain[models.FieldGivenName] == "" || plain[models.FieldFamilyName] == "" {
		return nil, invalid("givenName and familyName are required")
	}

	sealed, err := s.seal(ctx, p, plain)
	if err != nil {
		return nil, err
	}
	if !sealed {
		p.EncryptionVersion = ""
	}

	saved, err := s.repo.Save(ctx, p)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "profile created", "user_id", userID, "encrypted", sealed)
	return saved, nil
}

// FindByUserID returns the stored profile, or common.ErrorNotFound.
func (s *Service) FindByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	return s.repo.FindByUserID(ctx, userID)
}

// UpdateSafely applies the editable part of patch to p and writes it back
// with a compare-and-swap on p.LastProfileUpdate. All sensitive fields are
// re-run through the codec, so leftover legacy plaintext is encrypted as a
// side effect. A concurrent change yields common.ErrVersionConflict.
func (s *Service) UpdateSafely(ctx context.Context, p *models.Profile, patch Patch) (*models.Profile, error) {
	next := p.Clone()

	plain, err := s.applyPatch(next, patch.Editable())
	if err != nil {
		return nil, err
	}
	for _, f := range []string{models.FieldGivenName, models.FieldFamilyName} {
		if v, ok := plain[f]; ok && v == "" {
			return nil, invalid("%s must not be empty", f)
		}
	}

	sealed, err := s.seal(ctx, next, plain)
	if err != nil {
		return nil, err
	}

	next.LastProfileUpdate = s.nextUpdate(p.LastProfileUpdate)
	next.UpdatedAt = next.LastProfileUpdate

	fields := repo.Fields{
		models.FieldBirthDate:         next.BirthDate,
		models.FieldPreferences:       next.Preferences,
		models.FieldLastProfileUpdate: next.LastProfileUpdate,
		models.FieldUpdatedAt:         next.UpdatedAt,
	}
	for _, f := range models.SensitiveFields {
		fields[f] = next.Sensitive(f)
	}
	if sealed {
		next.EncryptionVersion = common.EncryptionVersion
		fields[models.FieldEncryptionVersion] = next.EncryptionVersion
	} else {
		s.logger.Warn(ctx, "profile left untagged, some fields are not encrypted", "profile_id", p.ID)
	}

	if err := s.repo.UpdateFields(ctx, p.ID, fields, p.LastProfileUpdate); err != nil {
		return nil, err
	}

	return next, nil
}

// Upsert is the profile edit flow: update the user's profile if it exists,
// create it otherwise, retrying when a concurrent writer wins the race.
func (s *Service) Upsert(ctx context.Context, userID int64, patch Patch) (*ProfileData, error) {
	var lastErr error

	for attempt := 0; attempt < upsertAttempts; attempt++ {
		p, err := s.repo.FindByUserID(ctx, userID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			p, err = s.CreateEncrypted(ctx, userID, patch)
			if errors.Is(err, common.ErrorAlreadyExists) {
				lastErr = err
				continue
			}
		case err != nil:
			return nil, err
		default:
			p, err = s.UpdateSafely(ctx, p, patch)
			if errors.Is(err, common.ErrVersionConflict) {
				lastErr = err
				continue
			}
		}
		if err != nil {
			return nil, err
		}
		return s.GetDecryptedData(ctx, p)
	}

	s.logger.Warn(ctx, "profile upsert gave up", "user_id", userID, "error", lastErr)
	return nil, common.ErrVersionConflict
}

// GetDecryptedData returns the plaintext view of p.
func (s *Service) GetDecryptedData(ctx context.Context, p *models.Profile) (*ProfileData, error) {
	return s.codec.Decode(ctx, p)
}

// SearchByName loads every profile, decrypts the names and returns those
// whose "given family" contains term, case-insensitively. This is a full
// scan; encrypted fields cannot be matched by the store.
func (s *Service) SearchByName(ctx context.Context, term string) ([]*ProfileData, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, invalid("search term is empty")
	}

	all, err := s.repo.Load(ctx, repo.Filter{})
	if err != nil {
		return nil, err
	}

	var out []*ProfileData
	for _, p := range all {
		d, err := s.codec.Decode(ctx, p)
		if err != nil {
			s.logger.Warn(ctx, "search skipped undecryptable profile", "profile_id", p.ID, "error", err)
			continue
		}
		name := strings.ToLower(d.GivenName + " " + d.FamilyName)
		if strings.Contains(name, term) {
			out = append(out, d)
		}
	}

	return out, nil
}

// DeleteByUserID removes the user's profile.
func (s *Service) DeleteByUserID(ctx context.Context, userID int64) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// applyPatch copies patch onto p. Sensitive values are not written to p;
// they are returned trimmed, keyed by field, for seal to encode.
func (s *Service) applyPatch(p *models.Profile, patch Patch) (map[string]string, error) {
	plain := make(map[string]string)

	for k, v := range patch {
		switch k {
		case models.FieldGivenName, models.FieldFamilyName, models.FieldPhone, models.FieldProfileImageURL:
			str, err := stringValue(k, v)
			if err != nil {
				return nil, err
			}
			plain[k] = str
		case models.FieldBirthDate:
			bd, err := birthDateValue(v)
			if err != nil {
				return nil, err
			}
			p.BirthDate = bd
		case models.FieldPreferences:
			prefs, err := preferencesValue(p.Preferences, v)
			if err != nil {
				return nil, err
			}
			p.Preferences = prefs
		}
	}

	return plain, nil
}

// seal encodes every sensitive field of p, taking new plaintext from plain
// and re-encoding stored values otherwise. It reports whether all of them
// ended up sealed; with a fail-open cipher a broken engine leaves
// plaintext behind and the caller must not tag the record.
func (s *Service) seal(ctx context.Context, p *models.Profile, plain map[string]string) (bool, error) {
	sealed := true

	for _, f := range models.SensitiveFields {
		v, ok := plain[f]
		if !ok {
			v = p.Sensitive(f)
		}

		enc, err := s.codec.EncodeField(ctx, v)
		if err != nil {
			return false, fmt.Errorf("encode %s: %w", f, err)
		}
		if !s.codec.IsSealed(enc) {
			sealed = false
		}
		p.SetSensitive(f, enc)
	}

	return sealed, nil
}
