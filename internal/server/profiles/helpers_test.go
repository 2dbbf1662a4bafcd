package profiles

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/openblind/internal/cryptox"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	repo "github.com/dmitrijs2005/openblind/internal/server/repositories/profiles"
	"github.com/stretchr/testify/require"
)

var (
	testEngine     *cryptox.Engine
	testEngineOnce sync.Once
)

func engine(t *testing.T) *cryptox.Engine {
	t.Helper()
	testEngineOnce.Do(func() {
		e, err := cryptox.NewEngine("profiles-test-key", cryptox.AlgorithmAES256GCM)
		if err != nil {
			panic(err)
		}
		testEngine = e
	})
	return testEngine
}

// passthroughCipher behaves like a fail-open engine whose cipher is broken:
// every operation hands the input back.
type passthroughCipher struct{}

func (passthroughCipher) Encrypt(_ context.Context, s string) (string, error) { return s, nil }
func (passthroughCipher) Decrypt(_ context.Context, s string) (string, error) { return s, nil }
func (passthroughCipher) IsEncrypted(s string) bool                          { return cryptox.IsEncrypted(s) }

// racingRepo runs race once, right before the first UpdateFields call,
// to simulate a concurrent writer.
type racingRepo struct {
	*repo.MemoryRepository
	once sync.Once
	race func()
}

func (r *racingRepo) UpdateFields(ctx context.Context, id string, f repo.Fields, expected time.Time) error {
	r.once.Do(r.race)
	return r.MemoryRepository.UpdateFields(ctx, id, f, expected)
}

// failingRepo fails UpdateFields for one record id.
type failingRepo struct {
	*repo.MemoryRepository
	failID string
	err    error
}

func (r *failingRepo) UpdateFields(ctx context.Context, id string, f repo.Fields, expected time.Time) error {
	if id == r.failID {
		return r.err
	}
	return r.MemoryRepository.UpdateFields(ctx, id, f, expected)
}

func newService(t *testing.T, r repo.Repository) *Service {
	t.Helper()
	return NewService(r, engine(t), logging.NewNop())
}

func seedLegacy(r *repo.MemoryRepository, userID int64, given, family string) *models.Profile {
	return r.Put(&models.Profile{
		UserID:     userID,
		GivenName:  given,
		FamilyName: family,
		Phone:      "0991234567",
	})
}

func mustCreate(t *testing.T, s *Service, userID int64, given, family string) *models.Profile {
	t.Helper()
	p, err := s.CreateEncrypted(context.Background(), userID, Patch{
		models.FieldGivenName:  given,
		models.FieldFamilyName: family,
	})
	require.NoError(t, err)
	return p
}
