package profiles

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/timex"
	"github.com/google/uuid"
)

// MemoryRepository keeps profiles in process memory. It honours the same
// uniqueness and compare-and-swap rules as the MongoDB store and is used by
// tests and by the server when no MongoDB URI is configured.
type MemoryRepository struct {
	mu    sync.RWMutex
	order []string
	items map[string]*models.Profile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*models.Profile)}
}

func (r *MemoryRepository) Load(ctx context.Context, f Filter) ([]*models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Profile
	for _, id := range r.order {
		p := r.items[id]
		if !matches(p, f) {
			continue
		}
		out = append(out, p.Clone())
		if f.Limit > 0 && int64(len(out)) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if p := r.items[id]; p.UserID == userID {
			return p.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) Save(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.UserID == p.UserID {
			return nil, common.ErrorAlreadyExists
		}
	}

	stored := p.Clone()
	stored.ID = uuid.NewString()
	stored.LastProfileUpdate = timex.Truncate(stored.LastProfileUpdate)

	r.items[stored.ID] = stored
	r.order = append(r.order, stored.ID)

	return stored.Clone(), nil
}

func (r *MemoryRepository) UpdateFields(ctx context.Context, id string, fields Fields, expected time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return common.ErrorNotFound
	}
	if !p.LastProfileUpdate.Equal(expected) {
		return common.ErrVersionConflict
	}

	next := p.Clone()
	if err := applyFields(next, fields); err != nil {
		return err
	}
	r.items[id] = next

	return nil
}

func (r *MemoryRepository) Count(ctx context.Context, f Filter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, p := range r.items {
		if matches(p, f) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteByUserID(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, id := range r.order {
		if r.items[id].UserID == userID {
			delete(r.items, id)
			r.order = append(r.order[:i], r.order[i+1:]...)
			return nil
		}
	}
	return common.ErrorNotFound
}

// Put stores p verbatim, bypassing Save. Used to seed legacy records.
func (r *MemoryRepository) Put(p *models.Profile) *models.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := p.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if _, exists := r.items[stored.ID]; !exists {
		r.order = append(r.order, stored.ID)
	}
	r.items[stored.ID] = stored

	return stored.Clone()
}

func matches(p *models.Profile, f Filter) bool {
	if f.UserID != 0 && p.UserID != f.UserID {
		return false
	}
	if f.Version != "" {
		return p.EncryptionVersion == f.Version
	}
	if f.ExcludeVersion != "" && p.EncryptionVersion == f.ExcludeVersion {
		return false
	}
	return true
}

func applyFields(p *models.Profile, fields Fields) error {
	for k, v := range fields {
		switch k {
		case models.FieldGivenName, models.FieldFamilyName, models.FieldPhone, models.FieldProfileImageURL:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("field %s: want string, got %T", k, v)
			}
			p.SetSensitive(k, s)
		case models.FieldEncryptionVersion:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("field %s: want string, got %T", k, v)
			}
			p.EncryptionVersion = s
		case models.FieldBirthDate:
			bd, ok := v.(*time.Time)
			if !ok {
				return fmt.Errorf("field %s: want *time.Time, got %T", k, v)
			}
			p.BirthDate = bd
		case models.FieldPreferences:
			pr, ok := v.(models.Preferences)
			if !ok {
				return fmt.Errorf("field %s: want Preferences, got %T", k, v)
			}
			p.Preferences = pr
		case models.FieldLastProfileUpdate, models.FieldUpdatedAt:
			ts, ok := v.(time.Time)
			if !ok {
				return fmt.Errorf("field %s: want time.Time, got %T", k, v)
			}
			if k == models.FieldLastProfileUpdate {
				p.LastProfileUpdate = timex.Truncate(ts)
			} else {
				p.UpdatedAt = ts
			}
		default:
			return fmt.Errorf("field %s: not updatable", k)
		}
	}
	return nil
}
