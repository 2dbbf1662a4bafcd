package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/cryptox"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/metrics"
	"github.com/dmitrijs2005/openblind/internal/server/auth"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	repo "github.com/dmitrijs2005/openblind/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/openblind/internal/server/services"
	"github.com/dmitrijs2005/openblind/internal/server/storage"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("http-test-secret")

type fakeAccounts struct {
	mu sync.Mutex

	registerErr error
	loginErr    error
	refreshErr  error
	deleteErr   error
	changeErr   error

	registered []string
	deleted    [][2]int64
	changed    []int64
	loggedOut  []string

	listed    []listCall
	updates   []services.AdminUpdate
	updateErr error
}

type listCall struct {
	page, limit int
	search      string
}

func (f *fakeAccounts) Register(ctx context.Context, email, password string) (*services.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registered = append(f.registered, email)
	return &services.Account{ID: int64(len(f.registered)), Email: email, Role: common.RoleUser, Active: true}, nil
}

func (f *fakeAccounts) Login(ctx context.Context, email, password string) (*services.TokenPair, *services.Account, error) {
	if f.loginErr != nil {
		return nil, nil, f.loginErr
	}
	return &services.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
		&services.Account{ID: 1, Email: email, Role: common.RoleUser, Active: true}, nil
}

func (f *fakeAccounts) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &services.TokenPair{AccessToken: "access2", RefreshToken: "refresh2"}, nil
}

func (f *fakeAccounts) Logout(ctx context.Context, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = append(f.loggedOut, refreshToken)
	return nil
}

func (f *fakeAccounts) GetAccount(ctx context.Context, userID int64) (*services.Account, error) {
	return &services.Account{ID: userID, Email: "me@example.com", Role: common.RoleUser, Active: true}, nil
}

func (f *fakeAccounts) GetAccountWithProfile(ctx context.Context, userID int64) (*services.AccountWithProfile, error) {
	if userID == 404 {
		return nil, common.ErrorNotFound
	}
	return &services.AccountWithProfile{
		Account: services.Account{ID: userID, Email: "user@example.com", Role: common.RoleUser, Active: true},
		Profile: &profiles.ProfileData{UserID: userID, GivenName: "Rosa", FamilyName: "Mora"},
	}, nil
}

func (f *fakeAccounts) ListAccounts(ctx context.Context, page, limit int, search string) (*services.AccountPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, listCall{page: page, limit: limit, search: search})
	return &services.AccountPage{
		Users: []*services.AccountWithProfile{{
			Account: services.Account{ID: 1, Email: "ana@example.com", Role: common.RoleUser, Active: true},
		}},
		Page: max(page, 1), Limit: 10, Total: 1, TotalPages: 1,
	}, nil
}

func (f *fakeAccounts) AdminUpdate(ctx context.Context, actorID, targetID int64, u services.AdminUpdate) (*services.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, u)
	acc := &services.Account{ID: targetID, Email: "ana@example.com", Role: common.RoleUser, Active: true}
	if u.Email != nil {
		acc.Email = *u.Email
	}
	if u.Role != nil {
		acc.Role = *u.Role
	}
	return acc, nil
}

func (f *fakeAccounts) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.changeErr != nil {
		return f.changeErr
	}
	f.changed = append(f.changed, userID)
	return nil
}

func (f *fakeAccounts) DeleteUser(ctx context.Context, actorID, targetID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if actorID == targetID {
		return common.ErrorForbidden
	}
	f.deleted = append(f.deleted, [2]int64{actorID, targetID})
	return nil
}

func (f *fakeAccounts) MigrateEmails(ctx context.Context) (services.EmailMigrationResult, error) {
	return services.EmailMigrationResult{MigratedCount: 2}, nil
}

type fakeImages struct {
	mu      sync.Mutex
	uploads int
}

func (f *fakeImages) PresignUpload(ctx context.Context, userID int64, contentType string) (*storage.Upload, error) {
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	if contentType != "image/png" {
		return nil, common.ErrorValidation
	}
	return &storage.Upload{
		Key:         "profiles/1/a.png",
		UploadURL:   "http://minio/signed",
		ObjectURL:   "http://minio/profile-images/profiles/1/a.png",
		ContentType: contentType,
	}, nil
}

func (f *fakeImages) PresignDownload(ctx context.Context, key string) (string, error) {
	return "http://minio/get/" + key, nil
}

func (f *fakeImages) KeyFromURL(url string) (string, bool) {
	return strings.CutPrefix(url, "http://minio/profile-images/")
}

type env struct {
	api      *API
	handler  http.Handler
	accounts *fakeAccounts
	images   *fakeImages
	repo     *repo.MemoryRepository
	profiles *profiles.Service
	metrics  *metrics.Metrics
}

func newEnv(t *testing.T, mutate ...func(*Options)) *env {
	t.Helper()

	engine, err := cryptox.NewEngine("http-test-key", cryptox.AlgorithmAES256GCM)
	require.NoError(t, err)

	r := repo.NewMemoryRepository()
	ps := profiles.NewService(r, engine, logging.NewNop())
	jobs := profiles.NewMigrator(r, engine, logging.NewNop())
	acc := &fakeAccounts{}
	m := metrics.New()

	opts := Options{JWTSecret: testSecret, AllowedOrigins: []string{"http://localhost:4200"}}
	for _, fn := range mutate {
		fn(&opts)
	}

	images := &fakeImages{}
	api := New(acc, ps, jobs, images, m, logging.NewNop(), opts)
	return &env{api: api, handler: api.Routes(), accounts: acc, images: images, repo: r, profiles: ps, metrics: m}
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (e *env) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func decodeData[T any](t *testing.T, e envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(e.Data, &v))
	return v
}
