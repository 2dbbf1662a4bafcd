package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	"github.com/dmitrijs2005/openblind/internal/server/services"
)

type registerRequest struct {
	Email       string         `json:"email" validate:"required,email"`
	Password    string         `json:"password" validate:"required,min=6"`
	GivenName   string         `json:"givenName" validate:"required"`
	FamilyName  string         `json:"familyName" validate:"required"`
	Phone       string         `json:"phone"`
	BirthDate   string         `json:"birthDate"`
	Preferences map[string]any `json:"preferences"`
}

func (req *registerRequest) patch() profiles.Patch {
	p := profiles.Patch{
		models.FieldGivenName:  req.GivenName,
		models.FieldFamilyName: req.FamilyName,
		models.FieldPhone:      req.Phone,
	}
	if req.BirthDate != "" {
		p[models.FieldBirthDate] = req.BirthDate
	}
	if req.Preferences != nil {
		p[models.FieldPreferences] = req.Preferences
	}
	return p
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type sessionResponse struct {
	Token        string                `json:"token"`
	RefreshToken string                `json:"refreshToken"`
	User         *services.Account     `json:"user"`
	Profile      *profiles.ProfileData `json:"profile"`
}

// register creates the account, then its encrypted profile, then logs the
// new user in.
func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := bind(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	ctx := r.Context()

	acc, err := a.accounts.Register(ctx, req.Email, req.Password)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	profile, err := a.profiles.Upsert(ctx, acc.ID, req.patch())
	if err != nil {
		a.logger.Warn(ctx, "account registered without profile", "user_id", acc.ID, "error", err)
		a.respondError(w, r, err)
		return
	}

	pair, _, err := a.accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusCreated, "user registered", &sessionResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         acc,
		Profile:      profile,
	})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := bind(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	pair, acc, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	profile, err := a.ownProfile(r, acc.ID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "login successful", &sessionResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         acc,
		Profile:      profile,
	})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := bind(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	pair, err := a.accounts.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			err = common.ErrorUnauthorized
		}
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "", pair)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := bind(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	if err := a.accounts.Logout(r.Context(), req.RefreshToken); err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "logged out", nil)
}

// ownProfile returns the decrypted profile of userID, or nil when the
// account has none yet.
func (a *API) ownProfile(r *http.Request, userID int64) (*profiles.ProfileData, error) {
	p, err := a.profiles.FindByUserID(r.Context(), userID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.profiles.GetDecryptedData(r.Context(), p)
}
