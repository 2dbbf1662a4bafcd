// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, issuing/refreshing JWTs
// plus server-stored refresh tokens, and the account-email migration.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/cryptox"
	"github.com/dmitrijs2005/openblind/internal/dbx"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/auth"
	"github.com/dmitrijs2005/openblind/internal/server/config"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	"github.com/dmitrijs2005/openblind/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/openblind/internal/server/repositories/users"
	"github.com/dmitrijs2005/openblind/internal/timex"
)

// MinPasswordLength is the shortest password Register and ChangePassword accept.
const MinPasswordLength = 6

// seams for tests; bcrypt at production cost is slow
var (
	hashPassword   = cryptox.HashPassword
	verifyPassword = cryptox.VerifyPassword
)

// EmailCipher is the part of cryptox.Engine used for account emails.
type EmailCipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, value string) (string, error)
	IsEncrypted(value string) bool
	BlindIndex(value string) string
}

// ProfileStore is the part of profiles.Service used to attach profiles to
// accounts and to cascade deletes.
type ProfileStore interface {
	FindByUserID(ctx context.Context, userID int64) (*models.Profile, error)
	GetDecryptedData(ctx context.Context, p *models.Profile) (*profiles.ProfileData, error)
	DeleteByUserID(ctx context.Context, userID int64) error
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Account is the caller-facing view of a user with the email decrypted.
type Account struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

type EmailMigrationResult struct {
	MigratedCount int `json:"migratedCount"`
	ErrorCount    int `json:"errorCount"`
}

// UserService provides account and session operations.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	cipher                       EmailCipher
	profiles                     ProfileStore
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, c EmailCipher, p ProfileStore, l logging.Logger, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		cipher:                       c,
		profiles:                     p,
		logger:                       l.With("module", "users"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account with role user. The email is stored as an
// envelope next to its blind index; the password as a bcrypt hash.
func (s *UserService) Register(ctx context.Context, email, password string) (*Account, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must have at least %d characters", common.ErrorValidation, MinPasswordLength)
	}

	repo := s.repomanager.Users(s.db)
	index := s.cipher.BlindIndex(email)

	if _, err := repo.GetByEmailIndex(ctx, index); err == nil {
		return nil, common.ErrorAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	sealed, err := s.cipher.Encrypt(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("error encrypting email: %w", err)
	}
	if !s.cipher.IsEncrypted(sealed) {
		s.logger.Warn(ctx, "account email stored unencrypted, run the email migration")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	u, err := repo.Create(ctx, &models.User{
		Email:        sealed,
		EmailIndex:   index,
		PasswordHash: hash,
		Role:         common.RoleUser,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", u.ID)

	return &Account{ID: u.ID, Email: email, Role: u.Role, Active: u.Active, CreatedAt: u.CreatedAt}, nil
}

// Login checks the credentials and, on success, returns a new TokenPair and
// the account. Unknown emails, wrong passwords and deactivated accounts
// all yield common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, *Account, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmailIndex(ctx, s.cipher.BlindIndex(normalizeEmail(email)))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, common.ErrorInternal
	}

	if !user.Active || !verifyPassword(password, user.PasswordHash) {
		return nil, nil, common.ErrorUnauthorized
	}

	pair, err := s.generateTokenPair(ctx, user.ID, user.Role, s.db)
	if err != nil {
		return nil, nil, err
	}

	account, err := s.toAccount(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return pair, account, nil
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expired(timex.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	if !user.Active {
		return nil, common.ErrorUnauthorized
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.RefreshTokens(tx)
		if err := repoTx.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, user.ID, user.Role, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes refreshToken.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken); err != nil {
		return fmt.Errorf("error deleting refresh token: %w", err)
	}
	return nil
}

// GetAccount returns the account with its email decrypted.
func (s *UserService) GetAccount(ctx context.Context, userID int64) (*Account, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.toAccount(ctx, user)
}

// ChangePassword verifies current, stores the hash of next and revokes
// every refresh token of the account.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < MinPasswordLength {
		return fmt.Errorf("%w: password must have at least %d characters", common.ErrorValidation, MinPasswordLength)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !verifyPassword(current, user.PasswordHash) {
		return common.ErrorUnauthorized
	}

	hash, err := hashPassword(next)
	if err != nil {
		return common.ErrorInternal
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		return s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, userID)
	})
}

// DeleteUser deactivates targetID and revokes its sessions. An actor cannot
// delete itself. The profile is removed on a best-effort basis: a failure
// there is logged and does not fail the call.
func (s *UserService) DeleteUser(ctx context.Context, actorID, targetID int64) error {
	if actorID == targetID {
		return fmt.Errorf("%w: cannot delete own account", common.ErrorForbidden)
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).SetActive(ctx, targetID, false); err != nil {
			return err
		}
		return s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, targetID)
	}); err != nil {
		return err
	}

	if s.profiles != nil {
		if err := s.profiles.DeleteByUserID(ctx, targetID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "profile cascade failed", "user_id", targetID, "error", err)
		}
	}

	s.logger.Info(ctx, "user deactivated", "user_id", targetID, "by", actorID)
	return nil
}

// MigrateEmails encrypts legacy plaintext account emails and backfills
// missing blind indexes. Rows that fail are counted and skipped.
func (s *UserService) MigrateEmails(ctx context.Context) (EmailMigrationResult, error) {
	repo := s.repomanager.Users(s.db)

	list, err := repo.ListForEmailMigration(ctx)
	if err != nil {
		return EmailMigrationResult{}, fmt.Errorf("error listing users: %w", err)
	}

	var res EmailMigrationResult
	for _, u := range list {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.migrateEmail(ctx, repo, u); err != nil {
			res.ErrorCount++
			s.logger.Error(ctx, "email migration failed", "user_id", u.ID, "error", err)
			continue
		}
		res.MigratedCount++
	}

	s.logger.Info(ctx, "email migration finished", "migrated", res.MigratedCount, "errors", res.ErrorCount)
	return res, nil
}

func (s *UserService) migrateEmail(ctx context.Context, repo users.Repository, u *models.User) error {
	plain := u.Email
	sealed := u.Email

	if s.cipher.IsEncrypted(u.Email) {
		dec, err := s.cipher.Decrypt(ctx, u.Email)
		if err != nil {
			return err
		}
		if s.cipher.IsEncrypted(dec) {
			return fmt.Errorf("%w: email could not be decrypted", common.ErrTransformFailure)
		}
		plain = dec
	}

	plain = normalizeEmail(plain)
	if plain == "" {
		return fmt.Errorf("%w: empty email", common.ErrorValidation)
	}

	if !s.cipher.IsEncrypted(sealed) {
		enc, err := s.cipher.Encrypt(ctx, plain)
		if err != nil {
			return err
		}
		if !s.cipher.IsEncrypted(enc) {
			return fmt.Errorf("%w: email left in plaintext", common.ErrTransformFailure)
		}
		sealed = enc
	}

	return repo.UpdateEmail(ctx, u.ID, sealed, s.cipher.BlindIndex(plain))
}

// --- helpers below ---

func (s *UserService) toAccount(ctx context.Context, u *models.User) (*Account, error) {
	email, err := s.cipher.Decrypt(ctx, u.Email)
	if err != nil {
		return nil, fmt.Errorf("error decrypting email: %w", err)
	}
	return &Account{ID: u.ID, Email: email, Role: u.Role, Active: u.Active, CreatedAt: u.CreatedAt}, nil
}

func (s *UserService) generateAccessToken(userID int64, role string) (string, error) {
	return auth.GenerateToken(userID, role, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.RandomToken(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, userID int64, role string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(userID, role)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	refreshRepo := s.repomanager.RefreshTokens(tx)
	if n, err := refreshRepo.DeleteExpired(ctx, userID); err != nil {
		return nil, common.ErrorInternal
	} else if n > 0 {
		s.logger.Debug(ctx, "expired sessions pruned", "user_id", userID, "count", n)
	}
	if err := refreshRepo.Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
