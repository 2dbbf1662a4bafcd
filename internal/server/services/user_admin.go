package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/dbx"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// AccountWithProfile is an account with its decrypted profile attached.
// Profile is nil when the user never created one.
type AccountWithProfile struct {
	Account
	Profile *profiles.ProfileData `json:"profile"`
}

// AccountPage is one page of ListAccounts.
type AccountPage struct {
	Users      []*AccountWithProfile `json:"users"`
	Page       int                   `json:"page"`
	Limit      int                   `json:"limit"`
	Total      int64                 `json:"total"`
	TotalPages int                   `json:"totalPages"`
}

// AdminUpdate holds the account attributes an admin may change. Nil
// fields are left untouched.
type AdminUpdate struct {
	Email    *string
	Password *string
	Role     *string
	Active   *bool
}

func (u AdminUpdate) empty() bool {
	return u.Email == nil && u.Password == nil && u.Role == nil && u.Active == nil
}

// ListAccounts returns a page of accounts with decrypted emails and
// profiles. A non-empty search keeps the accounts whose email or
// "given family" name contains it, case-insensitively; since both are
// encrypted at rest this decrypts every account before paginating.
func (s *UserService) ListAccounts(ctx context.Context, page, limit int, search string) (*AccountPage, error) {
	page = max(page, 1)
	if limit < 1 {
		limit = DefaultPageLimit
	}
	limit = min(limit, MaxPageLimit)
	search = strings.ToLower(strings.TrimSpace(search))

	repo := s.repomanager.Users(s.db)
	out := &AccountPage{Page: page, Limit: limit, Users: []*AccountWithProfile{}}

	if search == "" {
		total, err := repo.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("error counting users: %w", err)
		}
		rows, err := repo.List(ctx, limit, (page-1)*limit)
		if err != nil {
			return nil, fmt.Errorf("error listing users: %w", err)
		}
		for _, u := range rows {
			if a := s.listEntry(ctx, u); a != nil {
				out.Users = append(out.Users, a)
			}
		}
		out.Total = total
		out.TotalPages = pages(total, limit)
		return out, nil
	}

	rows, err := repo.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}

	var matched []*AccountWithProfile
	for _, u := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := s.listEntry(ctx, u)
		if a != nil && a.matches(search) {
			matched = append(matched, a)
		}
	}

	out.Total = int64(len(matched))
	out.TotalPages = pages(out.Total, limit)
	if from := (page - 1) * limit; from < len(matched) {
		out.Users = append(out.Users, matched[from:min(from+limit, len(matched))]...)
	}
	return out, nil
}

// GetAccountWithProfile returns the account and its decrypted profile.
func (s *UserService) GetAccountWithProfile(ctx context.Context, userID int64) (*AccountWithProfile, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	acc, err := s.toAccount(ctx, user)
	if err != nil {
		return nil, err
	}
	p, err := s.profileOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AccountWithProfile{Account: *acc, Profile: p}, nil
}

// AdminUpdate applies u to targetID in one transaction. A new email is
// re-encrypted and gets a fresh blind index, so the account keeps logging
// in with it. Changing the password or deactivating the account revokes
// its refresh tokens. An admin cannot deactivate or demote itself.
func (s *UserService) AdminUpdate(ctx context.Context, actorID, targetID int64, u AdminUpdate) (*Account, error) {
	if u.empty() {
		return nil, fmt.Errorf("%w: nothing to update", common.ErrorValidation)
	}
	if u.Role != nil && *u.Role != common.RoleUser && *u.Role != common.RoleAdmin {
		return nil, fmt.Errorf("%w: role must be %s or %s", common.ErrorValidation, common.RoleUser, common.RoleAdmin)
	}
	if u.Password != nil && len(*u.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must have at least %d characters", common.ErrorValidation, MinPasswordLength)
	}
	if actorID == targetID && ((u.Active != nil && !*u.Active) || (u.Role != nil && *u.Role != common.RoleAdmin)) {
		return nil, fmt.Errorf("%w: cannot deactivate or demote own account", common.ErrorForbidden)
	}

	repo := s.repomanager.Users(s.db)
	if _, err := repo.GetByID(ctx, targetID); err != nil {
		return nil, err
	}

	var sealed, index string
	if u.Email != nil {
		email := normalizeEmail(*u.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email is required", common.ErrorValidation)
		}
		index = s.cipher.BlindIndex(email)

		other, err := repo.GetByEmailIndex(ctx, index)
		switch {
		case err == nil && other.ID != targetID:
			return nil, common.ErrorAlreadyExists
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return nil, fmt.Errorf("error looking up user: %w", err)
		}

		if sealed, err = s.cipher.Encrypt(ctx, email); err != nil {
			return nil, fmt.Errorf("error encrypting email: %w", err)
		}
	}

	var hash string
	if u.Password != nil {
		var err error
		if hash, err = hashPassword(*u.Password); err != nil {
			return nil, common.ErrorInternal
		}
	}

	var changes []string
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.Users(tx)
		revoke := false

		if u.Email != nil {
			if err := repoTx.UpdateEmail(ctx, targetID, sealed, index); err != nil {
				return err
			}
			changes = append(changes, "email")
		}
		if u.Password != nil {
			if err := repoTx.UpdatePassword(ctx, targetID, hash); err != nil {
				return err
			}
			changes = append(changes, "password")
			revoke = true
		}
		if u.Role != nil {
			if err := repoTx.UpdateRole(ctx, targetID, *u.Role); err != nil {
				return err
			}
			changes = append(changes, "role")
		}
		if u.Active != nil {
			if err := repoTx.SetActive(ctx, targetID, *u.Active); err != nil {
				return err
			}
			changes = append(changes, "active")
			revoke = revoke || !*u.Active
		}

		if revoke {
			return s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, targetID)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user updated by admin", "user_id", targetID, "by", actorID, "changes", changes)
	return s.GetAccount(ctx, targetID)
}

// listEntry decrypts u and attaches its profile. Accounts whose email
// cannot be decrypted are logged and left out; a profile that cannot be
// loaded is logged and reported as missing.
func (s *UserService) listEntry(ctx context.Context, u *models.User) *AccountWithProfile {
	acc, err := s.toAccount(ctx, u)
	if err != nil {
		s.logger.Warn(ctx, "listing skipped undecryptable account", "user_id", u.ID, "error", err)
		return nil
	}
	p, err := s.profileOf(ctx, u.ID)
	if err != nil {
		s.logger.Warn(ctx, "listing could not load profile", "user_id", u.ID, "error", err)
	}
	return &AccountWithProfile{Account: *acc, Profile: p}
}

// profileOf returns nil, nil when the user has no profile.
func (s *UserService) profileOf(ctx context.Context, userID int64) (*profiles.ProfileData, error) {
	if s.profiles == nil {
		return nil, nil
	}
	p, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.profiles.GetDecryptedData(ctx, p)
}

func (a *AccountWithProfile) matches(term string) bool {
	if strings.Contains(strings.ToLower(a.Email), term) {
		return true
	}
	if a.Profile == nil {
		return false
	}
	return strings.Contains(strings.ToLower(a.Profile.GivenName+" "+a.Profile.FamilyName), term)
}

func pages(total int64, limit int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
