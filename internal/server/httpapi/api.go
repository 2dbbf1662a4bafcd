// Package httpapi is the public JSON API: authentication, the caller's own
// profile, admin account management and the admin encryption endpoints.
// Routing uses chi.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/metrics"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	"github.com/dmitrijs2005/openblind/internal/server/services"
	"github.com/dmitrijs2005/openblind/internal/server/storage"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

const maxBodyBytes = 1 << 20

// Accounts is implemented by services.UserService.
type Accounts interface {
	Register(ctx context.Context, email, password string) (*services.Account, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, *services.Account, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	GetAccount(ctx context.Context, userID int64) (*services.Account, error)
	GetAccountWithProfile(ctx context.Context, userID int64) (*services.AccountWithProfile, error)
	ListAccounts(ctx context.Context, page, limit int, search string) (*services.AccountPage, error)
	AdminUpdate(ctx context.Context, actorID, targetID int64, u services.AdminUpdate) (*services.Account, error)
	ChangePassword(ctx context.Context, userID int64, current, next string) error
	DeleteUser(ctx context.Context, actorID, targetID int64) error
	MigrateEmails(ctx context.Context) (services.EmailMigrationResult, error)
}

// Profiles is implemented by profiles.Service.
type Profiles interface {
	FindByUserID(ctx context.Context, userID int64) (*models.Profile, error)
	GetDecryptedData(ctx context.Context, p *models.Profile) (*profiles.ProfileData, error)
	Upsert(ctx context.Context, userID int64, patch profiles.Patch) (*profiles.ProfileData, error)
	SearchByName(ctx context.Context, term string) ([]*profiles.ProfileData, error)
}

// Jobs is implemented by profiles.Migrator.
type Jobs interface {
	MigrateEncryption(ctx context.Context) (profiles.MigrationResult, error)
	VerifyEncryption(ctx context.Context) (profiles.VerificationResult, error)
	GetEncryptionStats(ctx context.Context) (profiles.EncryptionStats, error)
}

// Images is implemented by storage.ImageStore.
type Images interface {
	PresignUpload(ctx context.Context, userID int64, contentType string) (*storage.Upload, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	KeyFromURL(url string) (string, bool)
}

type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string

	// AuthRateLimit requests per AuthRateWindow per client IP on /api/auth.
	// Zero disables the limiter.
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

type API struct {
	accounts Accounts
	profiles Profiles
	jobs     Jobs
	images   Images
	metrics  *metrics.Metrics
	logger   logging.Logger
	opts     Options
}

// New builds the API. images and m may be nil: the image endpoint then
// answers 503 and /metrics is not mounted.
func New(a Accounts, p Profiles, j Jobs, images Images, m *metrics.Metrics, l logging.Logger, opts Options) *API {
	return &API{
		accounts: a,
		profiles: p,
		jobs:     j,
		images:   images,
		metrics:  m,
		logger:   l.With("module", "httpapi"),
		opts:     opts,
	}
}

// Routes returns the root handler.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(a.recoverer)
	r.Use(a.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.fail(w, r, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.fail(w, r, http.StatusMethodNotAllowed, CodeNotFound, "method not allowed")
	})

	r.Get("/health", a.health)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route("/api/auth", func(r chi.Router) {
		if a.opts.AuthRateLimit > 0 {
			r.Use(httprate.Limit(a.opts.AuthRateLimit, a.opts.AuthRateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					a.fail(w, r, http.StatusTooManyRequests, CodeRateLimited, "too many requests, try again later")
				}),
			))
		}
		r.Post("/register", a.register)
		r.Post("/login", a.login)
		r.Post("/refresh", a.refresh)
		r.Post("/logout", a.logout)
		r.With(a.authenticate).Get("/me", a.getProfile)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Use(a.authenticate)

		r.Get("/profile", a.getProfile)
		r.Put("/profile", a.updateProfile)
		r.Post("/profile/image", a.profileImage)
		r.Put("/change-password", a.changePassword)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAdmin)

			r.Get("/", a.listUsers)
			r.Get("/search", a.search)
			r.Get("/{id}", a.getUser)
			r.Put("/{id}", a.updateUser)
			r.Delete("/{id}", a.deleteUser)
			r.Post("/migrate-encryption", a.migrateEncryption)
			r.Get("/verify-encryption", a.verifyEncryption)
			r.Get("/encryption-stats", a.encryptionStats)
			r.Post("/migrate-emails", a.migrateEmails)
		})
	})

	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	a.ok(w, r, http.StatusOK, "", map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}
