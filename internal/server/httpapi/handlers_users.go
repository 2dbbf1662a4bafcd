package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	"github.com/dmitrijs2005/openblind/internal/server/services"
	"github.com/dmitrijs2005/openblind/internal/server/storage"
	"github.com/go-chi/chi/v5"
)

const minSearchLength = 2

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=6"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin user"`
	Active   *bool   `json:"active"`
}

type imageRequest struct {
	ContentType string `json:"contentType" validate:"required"`
}

type imageResponse struct {
	Upload  *storage.Upload       `json:"upload"`
	Profile *profiles.ProfileData `json:"profile"`
}

type meResponse struct {
	User    *services.Account     `json:"user"`
	Profile *profiles.ProfileData `json:"profile"`
	// ImageURL is a short-lived GET URL for the stored profile image.
	ImageURL string `json:"profileImageDownloadUrl,omitempty"`
}

type searchResponse struct {
	Results []*profiles.ProfileData `json:"results"`
	Count   int                     `json:"count"`
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r)

	acc, err := a.accounts.GetAccount(r.Context(), uid)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	profile, err := a.ownProfile(r, uid)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "", &meResponse{User: acc, Profile: profile, ImageURL: a.imageDownloadURL(r, profile)})
}

// imageDownloadURL presigns the profile image when it lives in our bucket.
// Failures only cost the client the preview, so they are logged.
func (a *API) imageDownloadURL(r *http.Request, p *profiles.ProfileData) string {
	if a.images == nil || p == nil || p.ProfileImageURL == "" {
		return ""
	}
	key, ok := a.images.KeyFromURL(p.ProfileImageURL)
	if !ok {
		return ""
	}
	u, err := a.images.PresignDownload(r.Context(), key)
	if err != nil {
		a.logger.Warn(r.Context(), "presign image download failed", "user_id", p.UserID, "error", err)
		return ""
	}
	return u
}

// updateProfile accepts a partial profile. Fields outside the editable set
// are dropped by profiles.Patch.
func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		a.respondError(w, r, err)
		return
	}

	profile, err := a.profiles.Upsert(r.Context(), currentUserID(r), profiles.Patch(body))
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "profile updated", profile)
}

// profileImage issues a presigned upload URL and records the future object
// URL on the profile, encrypted like any other sensitive field.
func (a *API) profileImage(w http.ResponseWriter, r *http.Request) {
	if a.images == nil {
		a.fail(w, r, http.StatusServiceUnavailable, CodeInternal, "image storage is not configured")
		return
	}

	var req imageRequest
	if err := bind(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	uid := currentUserID(r)

	// The image URL is stored on the profile, so refuse before signing an
	// upload that could never be recorded.
	if _, err := a.profiles.FindByUserID(r.Context(), uid); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			a.fail(w, r, http.StatusConflict, CodeConflict, "create your profile before uploading an image")
			return
		}
		a.respondError(w, r, err)
		return
	}

	up, err := a.images.PresignUpload(r.Context(), uid, req.ContentType)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	profile, err := a.profiles.Upsert(r.Context(), uid, profiles.Patch{models.FieldProfileImageURL: up.ObjectURL})
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "", &imageResponse{Upload: up, Profile: profile})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := bind(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	if err := a.accounts.ChangePassword(r.Context(), currentUserID(r), req.CurrentPassword, req.NewPassword); err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "password changed", nil)
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("query"))
	if utf8.RuneCountInString(q) < minSearchLength {
		a.fail(w, r, http.StatusBadRequest, CodeValidation, "query must have at least 2 characters")
		return
	}

	found, err := a.profiles.SearchByName(r.Context(), q)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if found == nil {
		found = []*profiles.ProfileData{}
	}

	a.ok(w, r, http.StatusOK, "", &searchResponse{Results: found, Count: len(found)})
}

// listUsers is the admin account listing. Unparsable page or limit values
// fall back to the defaults.
func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	res, err := a.accounts.ListAccounts(r.Context(), page, limit, q.Get("search"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "", res)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := a.userIDParam(w, r)
	if !ok {
		return
	}

	res, err := a.accounts.GetAccountWithProfile(r.Context(), id)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "", res)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := a.userIDParam(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := bind(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	acc, err := a.accounts.AdminUpdate(r.Context(), currentUserID(r), id, services.AdminUpdate{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Active:   req.Active,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "user updated", acc)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := a.userIDParam(w, r)
	if !ok {
		return
	}

	if err := a.accounts.DeleteUser(r.Context(), currentUserID(r), id); err != nil {
		a.respondError(w, r, err)
		return
	}

	a.ok(w, r, http.StatusOK, "user deleted", nil)
}


func (a *API) userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		a.fail(w, r, http.StatusBadRequest, CodeValidation, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
