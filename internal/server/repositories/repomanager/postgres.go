// Package repomanager hands out PostgreSQL repositories bound to either a
// connection pool or a transaction, and owns the account schema.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/openblind/internal/dbx"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/migrations"
	"github.com/dmitrijs2005/openblind/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/openblind/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// RepositoryManager lets services pick the executor per call, so the same
// repository code runs inside dbx.WithTx or directly on the pool.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}

type migrateFunc func(ctx context.Context, db *sql.DB) ([]*goose.MigrationResult, error)

type PostgresManager struct {
	logger  logging.Logger
	migrate migrateFunc
}

var _ RepositoryManager = (*PostgresManager)(nil)

func NewPostgresManager(l logging.Logger) *PostgresManager {
	return &PostgresManager{logger: l, migrate: upEmbedded}
}

func (m *PostgresManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

// RunMigrations applies every pending embedded migration and logs each one.
// An up-to-date schema is not an error.
func (m *PostgresManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	applied, err := m.migrate(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, r := range applied {
		if r == nil || r.Source == nil {
			continue
		}
		m.logger.Info(ctx, "schema migration applied",
			"version", r.Source.Version,
			"file", r.Source.Path,
			"took", r.Duration.String())
	}
	if len(applied) == 0 {
		m.logger.Debug(ctx, "schema is up to date")
	}
	return nil
}

func upEmbedded(ctx context.Context, db *sql.DB) ([]*goose.MigrationResult, error) {
	p, err := goose.NewProvider(goose.DialectPostgres, db, migrations.Migrations)
	if err != nil {
		return nil, err
	}
	return p.Up(ctx)
}

// OpenPostgres opens a pgx-backed pool for dsn and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}
