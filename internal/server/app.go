// Package server wires the OpenBlind server together: configuration, the
// field cipher, the account database, the profile store, and the HTTP and
// admin gRPC endpoints. It also handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/openblind/internal/cryptox"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/metrics"
	"github.com/dmitrijs2005/openblind/internal/server/config"
	"github.com/dmitrijs2005/openblind/internal/server/httpapi"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	profilesrepo "github.com/dmitrijs2005/openblind/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/openblind/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/openblind/internal/server/services"
	"github.com/dmitrijs2005/openblind/internal/server/storage"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/openblind/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

// Auth endpoints accept this many requests per client IP per minute.
const authRateLimit = 20

type App struct {
	config   *config.Config
	logger   logging.Logger
	metrics  *metrics.Metrics
	db       *sql.DB
	closers  []func(context.Context) error
	users    *services.UserService
	profiles *profiles.Service
	migrator *profiles.Migrator
	images   *storage.ImageStore
}

// NewCipher builds the field cipher from config and runs its self-test.
// Any error is a configuration error and must stop the process.
func NewCipher(c *config.Config, l logging.Logger, onFallback func(op string)) (*cryptox.Engine, error) {
	mode, err := cryptox.ParseFailMode(c.EncryptionFailMode)
	if err != nil {
		return nil, err
	}

	opts := []cryptox.Option{cryptox.WithFailMode(mode), cryptox.WithLogger(l)}
	if onFallback != nil {
		opts = append(opts, cryptox.WithFallbackHook(onFallback))
	}

	engine, err := cryptox.NewEngine(c.EncryptionKey, c.EncryptionAlgorithm, opts...)
	if err != nil {
		return nil, err
	}
	if err := engine.SelfTest(); err != nil {
		return nil, err
	}
	return engine, nil
}

// OpenProfileRepository connects to MongoDB, or returns the in-memory store
// when no URI is configured. The returned closer releases the connection.
func OpenProfileRepository(ctx context.Context, c *config.Config, l logging.Logger) (profilesrepo.Repository, func(context.Context) error, error) {
	if c.MongoURI == "" {
		l.Warn(ctx, "no MongoDB URI configured, profiles are kept in memory")
		return profilesrepo.NewMemoryRepository(), func(context.Context) error { return nil }, nil
	}

	cli, err := profilesrepo.NewMongoClient(ctx, c.MongoURI)
	if err != nil {
		return nil, nil, err
	}

	r, err := profilesrepo.NewMongoRepository(ctx, cli.Database(c.MongoDatabase))
	if err != nil {
		_ = cli.Disconnect(ctx)
		return nil, nil, err
	}

	return r, cli.Disconnect, nil
}

// NewMigrator builds the batch-job runner with the configured tuning.
func NewMigrator(r profilesrepo.Repository, engine *cryptox.Engine, c *config.Config, l logging.Logger, m *metrics.Metrics) *profiles.Migrator {
	opts := []profiles.MigratorOption{
		profiles.WithWorkers(c.MigrationWorkers),
		profiles.WithSampleSize(c.VerifySampleSize),
	}
	if m != nil {
		opts = append(opts, profiles.WithResultHook(m.MigrationRecord))
	}
	return profiles.NewMigrator(r, engine, l, opts...)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	m := metrics.New()

	engine, err := NewCipher(c, logger, m.CipherFallback)
	if err != nil {
		return nil, fmt.Errorf("cipher init error: %w", err)
	}

	app := &App{config: c, logger: logger, metrics: m}

	profileRepo, closeProfiles, err := OpenProfileRepository(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("profile store init error: %w", err)
	}
	app.closers = append(app.closers, closeProfiles)

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, func(context.Context) error { return db.Close() })

	rm := repomanager.NewPostgresManager(logger)
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("db migrations: %w", err)
	}

	app.profiles = profiles.NewService(profileRepo, engine, logger)
	app.migrator = NewMigrator(profileRepo, engine, c, logger, m)
	app.users = services.NewUserService(db, rm, engine, app.profiles, logger, c)

	if c.S3Bucket != "" {
		app.images = storage.NewImageStore(storage.Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
	}

	logger.Info(ctx, "cipher ready", "algorithm", c.EncryptionAlgorithm, "fail_mode", engine.Mode())

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) httpHandler() http.Handler {
	var images httpapi.Images
	if app.images != nil {
		images = app.images
	}

	api := httpapi.New(app.users, app.profiles, app.migrator, images, app.metrics, app.logger, httpapi.Options{
		JWTSecret:      []byte(app.config.SecretKey),
		AllowedOrigins: []string{app.config.FrontendURL},
		AuthRateLimit:  authRateLimit,
		AuthRateWindow: time.Minute,
	})
	return api.Routes()
}

func (app *App) startHTTPServer(ctx context.Context) error {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.httpHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (app *App) startGRPCServer(ctx context.Context) error {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.migrator, app.users, app.config.SecretKey)
	return s.Run(ctx)
}

// Run serves HTTP and gRPC until a signal arrives or either server fails,
// then shuts both down and releases the stores.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.startHTTPServer(gctx) })
	g.Go(func() error { return app.startGRPCServer(gctx) })

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "server stopped with error", "error", err)
	}

	app.Close(context.Background())
	app.logger.Info(ctx, "App stopped")
	return err
}

// Close releases database and profile-store connections in reverse order.
func (app *App) Close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](ctx); err != nil {
			app.logger.Warn(ctx, "close failed", "error", err)
		}
	}
	app.closers = nil
}
