package profiles

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	repo "github.com/dmitrijs2005/openblind/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/openblind/internal/timex"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultVerifySampleSize = 100
	DefaultMigrationWorkers = 4
)

// Verification statuses of a single record.
const (
	StatusEncrypted   = "encrypted"
	StatusUnencrypted = "unencrypted"
	StatusMixed       = "mixed"
)

// Migration outcomes reported to the result hook.
const (
	ResultMigrated = "migrated"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
)

type MigrationResult struct {
	MigratedCount int `json:"migratedCount"`
	ErrorCount    int `json:"errorCount"`
	// SkippedCount counts records rewritten by a live update while the job
	// was running. They already went through the codec.
	SkippedCount int `json:"skippedCount"`
}

type VerificationDetail struct {
	ProfileID       string   `json:"profileId"`
	UserID          int64    `json:"userId"`
	Status          string   `json:"status"`
	EncryptedFields []string `json:"encryptedFields,omitempty"`
	PlaintextFields []string `json:"plaintextFields,omitempty"`
	Valid           bool     `json:"valid"`
	Error           string   `json:"error,omitempty"`
}

type VerificationResult struct {
	Sampled      int                  `json:"sampled"`
	ValidCount   int                  `json:"validCount"`
	InvalidCount int                  `json:"invalidCount"`
	Details      []VerificationDetail `json:"details"`
}

type EncryptionStats struct {
	Total           int64   `json:"total"`
	Encrypted       int64   `json:"encrypted"`
	Unencrypted     int64   `json:"unencrypted"`
	CoveragePercent float64 `json:"coveragePercent"`
}

// Migrator runs the batch jobs that move a live dataset from plaintext to
// ciphertext. All jobs are safe to re-run.
type Migrator struct {
	repo       repo.Repository
	cipher     Cipher
	logger     logging.Logger
	now        func() time.Time
	workers    int
	sampleSize int64
	onResult   func(result string)
}

type MigratorOption func(*Migrator)

func WithWorkers(n int) MigratorOption {
	return func(m *Migrator) {
		if n > 0 {
			m.workers = n
		}
	}
}

func WithSampleSize(n int) MigratorOption {
	return func(m *Migrator) {
		if n > 0 {
			m.sampleSize = int64(n)
		}
	}
}

// WithResultHook registers fn to be called with one of the Result*
// constants for every record the migration touches.
func WithResultHook(fn func(result string)) MigratorOption {
	return func(m *Migrator) { m.onResult = fn }
}

func NewMigrator(r repo.Repository, c Cipher, l logging.Logger, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		repo:       r,
		cipher:     c,
		logger:     l.With("module", "profile_migrator"),
		now:        timex.Now,
		workers:    DefaultMigrationWorkers,
		sampleSize: DefaultVerifySampleSize,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Migrator) report(result string) {
	if m.onResult != nil {
		m.onResult(result)
	}
}

// MigrateEncryption encrypts every plaintext sensitive field of records not
// yet tagged with the current encryption version and tags them. Each record
// is written with a compare-and-swap; per-record failures are counted and
// the batch continues.
func (m *Migrator) MigrateEncryption(ctx context.Context) (MigrationResult, error) {
	records, err := m.repo.Load(ctx, repo.Filter{ExcludeVersion: common.EncryptionVersion})
	if err != nil {
		return MigrationResult{}, fmt.Errorf("load profiles: %w", err)
	}

	m.logger.Info(ctx, "profile migration started", "candidates", len(records))

	var migrated, failed, skipped atomic.Int64

	var g errgroup.Group
	g.SetLimit(m.workers)

	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := m.migrateOne(ctx, rec)
			switch {
			case err == nil:
				migrated.Add(1)
				m.report(ResultMigrated)
			case errors.Is(err, common.ErrVersionConflict):
				skipped.Add(1)
				m.report(ResultSkipped)
				m.logger.Info(ctx, "profile changed during migration, skipped", "profile_id", rec.ID)
			default:
				failed.Add(1)
				m.report(ResultFailed)
				m.logger.Error(ctx, "profile migration failed", "profile_id", rec.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := MigrationResult{
		MigratedCount: int(migrated.Load()),
		ErrorCount:    int(failed.Load()),
		SkippedCount:  int(skipped.Load()),
	}

	m.logger.Info(ctx, "profile migration finished",
		"migrated", res.MigratedCount, "errors", res.ErrorCount, "skipped", res.SkippedCount)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (m *Migrator) migrateOne(ctx context.Context, rec *models.Profile) error {
	fields := repo.Fields{}

	for _, f := range models.SensitiveFields {
		raw := rec.Sensitive(f)
		if raw == "" || m.cipher.IsEncrypted(raw) {
			continue
		}

		enc, err := m.cipher.Encrypt(ctx, raw)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", f, err)
		}
		if !m.cipher.IsEncrypted(enc) {
			return fmt.Errorf("%w: %s left in plaintext", common.ErrTransformFailure, f)
		}
		fields[f] = enc
	}

	now := timex.Truncate(m.now())
	if !now.After(rec.LastProfileUpdate) {
		now = rec.LastProfileUpdate.Add(time.Millisecond)
	}

	fields[models.FieldEncryptionVersion] = common.EncryptionVersion
	fields[models.FieldLastProfileUpdate] = now
	fields[models.FieldUpdatedAt] = now

	return m.repo.UpdateFields(ctx, rec.ID, fields, rec.LastProfileUpdate)
}

// VerifyEncryption inspects a bounded sample of records, classifies how
// their sensitive fields are stored and checks that the names decrypt to
// something non-empty.
func (m *Migrator) VerifyEncryption(ctx context.Context) (VerificationResult, error) {
	sample, err := m.repo.Load(ctx, repo.Filter{Limit: m.sampleSize})
	if err != nil {
		return VerificationResult{}, fmt.Errorf("load profiles: %w", err)
	}

	res := VerificationResult{Sampled: len(sample), Details: make([]VerificationDetail, 0, len(sample))}

	for _, rec := range sample {
		d := m.verifyOne(ctx, rec)
		if d.Valid {
			res.ValidCount++
		} else {
			res.InvalidCount++
		}
		res.Details = append(res.Details, d)
	}

	m.logger.Info(ctx, "profile verification finished",
		"sampled", res.Sampled, "valid", res.ValidCount, "invalid", res.InvalidCount)

	return res, nil
}

func (m *Migrator) verifyOne(ctx context.Context, rec *models.Profile) VerificationDetail {
	d := VerificationDetail{ProfileID: rec.ID, UserID: rec.UserID}

	for _, f := range models.SensitiveFields {
		raw := rec.Sensitive(f)
		switch {
		case raw == "":
		case m.cipher.IsEncrypted(raw):
			d.EncryptedFields = append(d.EncryptedFields, f)
		default:
			d.PlaintextFields = append(d.PlaintextFields, f)
		}
	}

	switch {
	case len(d.PlaintextFields) == 0 && len(d.EncryptedFields) > 0:
		d.Status = StatusEncrypted
	case len(d.EncryptedFields) == 0:
		d.Status = StatusUnencrypted
	default:
		d.Status = StatusMixed
	}

	given, err := m.cipher.Decrypt(ctx, rec.GivenName)
	if err != nil {
		d.Error = err.Error()
		return d
	}
	family, err := m.cipher.Decrypt(ctx, rec.FamilyName)
	if err != nil {
		d.Error = err.Error()
		return d
	}

	switch {
	case given == "" || family == "":
		d.Error = "decrypted name is empty"
	case m.cipher.IsEncrypted(given) || m.cipher.IsEncrypted(family):
		// a fail-open engine hands back the envelope it could not open
		d.Error = "name could not be decrypted"
	default:
		d.Valid = true
	}

	return d
}

// GetEncryptionStats reports how much of the dataset is tagged with the
// current encryption version. An empty dataset counts as fully covered.
func (m *Migrator) GetEncryptionStats(ctx context.Context) (EncryptionStats, error) {
	total, err := m.repo.Count(ctx, repo.Filter{})
	if err != nil {
		return EncryptionStats{}, fmt.Errorf("count profiles: %w", err)
	}
	encrypted, err := m.repo.Count(ctx, repo.Filter{Version: common.EncryptionVersion})
	if err != nil {
		return EncryptionStats{}, fmt.Errorf("count profiles: %w", err)
	}

	st := EncryptionStats{
		Total:           total,
		Encrypted:       encrypted,
		Unencrypted:     total - encrypted,
		CoveragePercent: 100,
	}
	if total > 0 {
		st.CoveragePercent = math.Round(float64(encrypted)/float64(total)*10000) / 100
	}

	return st, nil
}
