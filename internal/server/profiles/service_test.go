package profiles

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/cryptox"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	repo "github.com/dmitrijs2005/openblind/internal/server/repositories/profiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEncrypted_StoresCiphertext(t *testing.T) {
	r := repo.NewMemoryRepository()
	s := newService(t, r)
	ctx := context.Background()

	created, err := s.CreateEncrypted(ctx, 1, Patch{
		models.FieldGivenName:  "Juan Carlos",
		models.FieldFamilyName: "Perez",
		models.FieldPhone:      "+593991234567",
	})
	require.NoError(t, err)
	assert.Equal(t, common.EncryptionVersion, created.EncryptionVersion)
	assert.False(t, created.LastProfileUpdate.IsZero())

	raw, err := r.FindByUserID(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, "Juan Carlos", raw.GivenName)
	assert.True(t, cryptox.IsEncrypted(raw.GivenName))
	assert.True(t, cryptox.IsEncrypted(raw.FamilyName))
	assert.True(t, cryptox.IsEncrypted(raw.Phone))
	assert.Equal(t, "", raw.ProfileImageURL)
	assert.Equal(t, models.DefaultPreferences(), raw.Preferences)

	d, err := s.GetDecryptedData(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "Juan Carlos", d.GivenName)
	assert.Equal(t, "Perez", d.FamilyName)
	assert.Equal(t, "+593991234567", d.Phone)
}

func TestCreateEncrypted_Validation(t *testing.T) {
	s := newService(t, repo.NewMemoryRepository())
	ctx := context.Background()

	tests := []struct {
		name   string
		userID int64
		patch  Patch
	}{
		{"no user", 0, Patch{models.FieldGivenName: "A", models.FieldFamilyName: "B"}},
		{"no given name", 1, Patch{models.FieldFamilyName: "B"}},
		{"blank family name", 1, Patch{models.FieldGivenName: "A", models.FieldFamilyName: "   "}},
		{"name not a string", 1, Patch{models.FieldGivenName: 42, models.FieldFamilyName: "B"}},
		{"bad birth date", 1, Patch{models.FieldGivenName: "A", models.FieldFamilyName: "B", models.FieldBirthDate: "yesterday"}},
		{"voice speed out of range", 1, Patch{
			models.FieldGivenName:   "A",
			models.FieldFamilyName:  "B",
			models.FieldPreferences: map[string]any{"voiceSpeed": 3.5},
		}},
		{"unknown language", 1, Patch{
			models.FieldGivenName:   "A",
			models.FieldFamilyName:  "B",
			models.FieldPreferences: map[string]any{"language": "fr"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateEncrypted(ctx, tt.userID, tt.patch)
			assert.ErrorIs(t, err, common.ErrorValidation)
		})
	}
}

func TestCreateEncrypted_Duplicate(t *testing.T) {
	s := newService(t, repo.NewMemoryRepository())
	mustCreate(t, s, 1, "Ana", "Diaz")

	_, err := s.CreateEncrypted(context.Background(), 1, Patch{models.FieldGivenName: "X", models.FieldFamilyName: "Y"})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestUpdateSafely_IgnoresNonEditableFields(t *testing.T) {
	r := repo.NewMemoryRepository()
	s := newService(t, r)
	ctx := context.Background()

	p := mustCreate(t, s, 1, "Juan", "Perez")

	updated, err := s.UpdateSafely(ctx, p, Patch{
		"userId":                      int64(999),
		models.FieldEncryptionVersion: "v0",
		"role":                        "admin",
		models.FieldGivenName:         "Ana",
		models.FieldLastProfileUpdate: time.Time{},
		models.FieldBirthDate:         "1990-04-12",
		models.FieldPreferences:       map[string]any{"theme": "high-contrast", "voiceSpeed": 1.5},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.UserID)
	assert.True(t, updated.LastProfileUpdate.After(p.LastProfileUpdate))

	_, err = r.FindByUserID(ctx, 999)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	raw, err := r.FindByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, common.EncryptionVersion, raw.EncryptionVersion)

	d, err := s.GetDecryptedData(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "Ana", d.GivenName)
	assert.Equal(t, "Perez", d.FamilyName)
	require.NotNil(t, d.BirthDate)
	assert.Equal(t, time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC), *d.BirthDate)
	assert.Equal(t, "high-contrast", d.Preferences.Theme)
	assert.Equal(t, 1.5, d.Preferences.VoiceSpeed)
	assert.Equal(t, "es", d.Preferences.Language)
}

func TestUpdateSafely_EncryptsLeftoverLegacyFields(t *testing.T) {
	r := repo.NewMemoryRepository()
	s := newService(t, r)
	ctx := context.Background()

	legacy := seedLegacy(r, 5, "Maria", "Lopez")

	_, err := s.UpdateSafely(ctx, legacy, Patch{models.FieldGivenName: "Mariana"})
	require.NoError(t, err)

	raw, err := r.FindByUserID(ctx, 5)
	require.NoError(t, err)
	for _, f := range models.SensitiveFields {
		v := raw.Sensitive(f)
		assert.True(t, v == "" || cryptox.IsEncrypted(v), "field %s stored as %q", f, v)
	}
	assert.Equal(t, common.EncryptionVersion, raw.EncryptionVersion)

	d, err := s.GetDecryptedData(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "Mariana", d.GivenName)
	assert.Equal(t, "Lopez", d.FamilyName)
	assert.Equal(t, "0991234567", d.Phone)
}

func TestUpdateSafely_RejectsEmptyName(t *testing.T) {
	s := newService(t, repo.NewMemoryRepository())
	p := mustCreate(t, s, 1, "Juan", "Perez")

	_, err := s.UpdateSafely(context.Background(), p, Patch{models.FieldFamilyName: ""})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestUpdateSafely_StaleRecordConflicts(t *testing.T) {
	s := newService(t, repo.NewMemoryRepository())
	ctx := context.Background()

	p := mustCreate(t, s, 1, "Juan", "Perez")

	_, err := s.UpdateSafely(ctx, p, Patch{models.FieldPhone: "111"})
	require.NoError(t, err)

	// p still carries the old token
	_, err = s.UpdateSafely(ctx, p, Patch{models.FieldPhone: "222"})
	assert.ErrorIs(t, err, common.ErrVersionConflict)
}

func TestUpdateSafely_SameMillisecondStillAdvancesToken(t *testing.T) {
	s := newService(t, repo.NewMemoryRepository())
	frozen := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }
	ctx := context.Background()

	p := mustCreate(t, s, 1, "Juan", "Perez")
	u1, err := s.UpdateSafely(ctx, p, Patch{models.FieldPhone: "1"})
	require.NoError(t, err)
	u2, err := s.UpdateSafely(ctx, u1, Patch{models.FieldPhone: "2"})
	require.NoError(t, err)

	assert.True(t, u1.LastProfileUpdate.After(p.LastProfileUpdate))
	assert.True(t, u2.LastProfileUpdate.After(u1.LastProfileUpdate))
}

func TestUpdateSafely_FailOpenFallbackLeavesRecordUntagged(t *testing.T) {
	r := repo.NewMemoryRepository()
	s := NewService(r, passthroughCipher{}, logging.NewNop())
	ctx := context.Background()

	legacy := seedLegacy(r, 1, "Maria", "Lopez")
	_, err := s.UpdateSafely(ctx, legacy, Patch{models.FieldPhone: "123"})
	require.NoError(t, err)

	raw, err := r.FindByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "", raw.EncryptionVersion)
	assert.Equal(t, "123", raw.Phone)
}

func TestUpsert_CreatesThenUpdates(t *testing.T) {
	r := repo.NewMemoryRepository()
	s := newService(t, r)
	ctx := context.Background()

	d, err := s.Upsert(ctx, 7, Patch{models.FieldGivenName: "Ana", models.FieldFamilyName: "Diaz"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", d.GivenName)

	d, err = s.Upsert(ctx, 7, Patch{models.FieldFamilyName: "Diaz Ruiz"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", d.GivenName)
	assert.Equal(t, "Diaz Ruiz", d.FamilyName)

	n, err := r.Count(ctx, repo.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpsert_RetriesOnConflict(t *testing.T) {
	mem := repo.NewMemoryRepository()
	rr := &racingRepo{MemoryRepository: mem}
	s := newService(t, rr)
	ctx := context.Background()

	p := mustCreate(t, s, 1, "Juan", "Perez")

	rr.race = func() {
		moved := p.Clone()
		moved.LastProfileUpdate = p.LastProfileUpdate.Add(time.Second)
		mem.Put(moved)
	}

	d, err := s.Upsert(ctx, 1, Patch{models.FieldGivenName: "Juana"})
	require.NoError(t, err)
	assert.Equal(t, "Juana", d.GivenName)
	assert.Equal(t, "Perez", d.FamilyName)
}

func TestSearchByName(t *testing.T) {
	r := repo.NewMemoryRepository()
	s := newService(t, r)
	ctx := context.Background()

	mustCreate(t, s, 1, "Juan Carlos", "Perez")
	mustCreate(t, s, 2, "Ana", "Carlosama")
	mustCreate(t, s, 3, "Lucia", "Mendez")
	seedLegacy(r, 4, "Carla", "Vega")

	tests := []struct {
		term string
		want []int64
	}{
		{"carlos", []int64{1, 2}},
		{"  JUAN carlos ", []int64{1}},
		{"perez", []int64{1}},
		{"carla", []int64{4}},
		{"nobody", nil},
	}

	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got, err := s.SearchByName(ctx, tt.term)
			require.NoError(t, err)

			var ids []int64
			for _, d := range got {
				ids = append(ids, d.UserID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	_, err := s.SearchByName(ctx, " ")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestDeleteByUserID(t *testing.T) {
	s := newService(t, repo.NewMemoryRepository())
	ctx := context.Background()
	mustCreate(t, s, 1, "Juan", "Perez")

	require.NoError(t, s.DeleteByUserID(ctx, 1))
	_, err := s.FindByUserID(ctx, 1)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
