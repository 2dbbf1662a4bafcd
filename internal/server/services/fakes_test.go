package services

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/cryptox"
	"github.com/dmitrijs2005/openblind/internal/dbx"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/config"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	refreshtokensrepo "github.com/dmitrijs2005/openblind/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/openblind/internal/server/repositories/users"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	hashPassword = func(p string) (string, error) {
		h, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.MinCost)
		return string(h), err
	}
	os.Exit(m.Run())
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newEngine(t *testing.T) *cryptox.Engine {
	t.Helper()
	e, err := cryptox.NewEngine("services-test-key", cryptox.AlgorithmAES256GCM)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// --- users ---

type fakeUsersRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.User

	getErr         error
	listErr        error
	updateEmailErr map[int64]error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{rows: map[int64]*models.User{}, updateEmailErr: map[int64]error{}}
}

func (f *fakeUsersRepo) put(u models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	f.rows[u.ID] = &u
	return &u
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.EmailIndex == u.EmailIndex {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.nextID++
	stored := *u
	stored.ID = f.nextID
	stored.Active = true
	stored.CreatedAt = time.Now()
	f.rows[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeUsersRepo) GetByEmailIndex(ctx context.Context, index string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, r := range f.rows {
		if r.EmailIndex != "" && r.EmailIndex == index {
			out := *r
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *r
	return &out, nil
}

func (f *fakeUsersRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.PasswordHash = hash
	return nil
}

func (f *fakeUsersRepo) SetActive(ctx context.Context, id int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.Active = active
	return nil
}

func (f *fakeUsersRepo) UpdateRole(ctx context.Context, id int64, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.Role = role
	return nil
}

func (f *fakeUsersRepo) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var all []*models.User
	for id := int64(1); id <= f.nextID; id++ {
		if r, ok := f.rows[id]; ok {
			c := *r
			all = append(all, &c)
		}
	}
	if limit <= 0 {
		return all, nil
	}
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (f *fakeUsersRepo) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows)), nil
}

func (f *fakeUsersRepo) ListForEmailMigration(ctx context.Context) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for id := int64(1); id <= f.nextID; id++ {
		r, ok := f.rows[id]
		if !ok {
			continue
		}
		if r.EmailIndex == "" || !cryptox.IsEncrypted(r.Email) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeUsersRepo) UpdateEmail(ctx context.Context, id int64, email, index string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateEmailErr[id]; err != nil {
		return err
	}
	r, ok := f.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.Email = email
	r.EmailIndex = index
	return nil
}

// --- refresh tokens ---

type fakeRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken

	findErr   error
	delErr    error
	createErr error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID int64, token string, validity time.Duration) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = &models.RefreshToken{UserID: userID, TokenHash: token, ExpiresAt: time.Now().Add(validity)}
	return nil
}

func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *t
	return &out, nil
}

func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
	return nil
}

func (f *fakeRefreshRepo) DeleteByUser(ctx context.Context, userID int64) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, t := range f.tokens {
		if t.UserID == userID {
			delete(f.tokens, k)
		}
	}
	return nil
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, t := range f.tokens {
		if t.UserID == userID && t.Expired(time.Now()) {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRefreshRepo) countFor(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

// --- manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }

type fakeProfiles struct {
	rows    map[int64]*models.Profile
	findErr error

	deleted []int64
	err     error
}

func (f *fakeProfiles) add(userID int64, given, family string) {
	if f.rows == nil {
		f.rows = map[int64]*models.Profile{}
	}
	f.rows[userID] = &models.Profile{ID: fmt.Sprintf("p%d", userID), UserID: userID, GivenName: given, FamilyName: family}
}

func (f *fakeProfiles) FindByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	p, ok := f.rows[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

// GetDecryptedData passes names through; fixtures store them in the clear.
func (f *fakeProfiles) GetDecryptedData(ctx context.Context, p *models.Profile) (*profiles.ProfileData, error) {
	return &profiles.ProfileData{ID: p.ID, UserID: p.UserID, GivenName: p.GivenName, FamilyName: p.FamilyName}, nil
}

func (f *fakeProfiles) DeleteByUserID(ctx context.Context, userID int64) error {
	f.deleted = append(f.deleted, userID)
	return f.err
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type fixture struct {
	svc      *UserService
	users    *fakeUsersRepo
	tokens   *fakeRefreshRepo
	profiles *fakeProfiles
	engine   *cryptox.Engine
	mock     sqlmock.Sqlmock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	f := &fixture{
		users:    newFakeUsersRepo(),
		tokens:   newFakeRefreshRepo(),
		profiles: &fakeProfiles{},
		engine:   newEngine(t),
		mock:     mock,
	}
	cfg := &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
	f.svc = NewUserService(db, &fakeRepoManager{u: f.users, r: f.tokens}, f.engine, f.profiles, logging.NewNop(), cfg)
	return f
}
