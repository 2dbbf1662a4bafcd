package httpapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/cryptox"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	"github.com/dmitrijs2005/openblind/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfile(t *testing.T) {
	e := newEnv(t)
	tok := token(t, 5, common.RoleUser)

	rec, body := e.do(t, http.MethodGet, "/api/users/profile", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeData[meResponse](t, body)
	assert.Equal(t, int64(5), me.User.ID)
	assert.Nil(t, me.Profile)

	_, err := e.profiles.Upsert(context.Background(), 5, profiles.Patch{
		models.FieldGivenName: "Rosa", models.FieldFamilyName: "Mora",
	})
	require.NoError(t, err)

	_, body = e.do(t, http.MethodGet, "/api/users/profile", tok, nil)
	me = decodeData[meResponse](t, body)
	require.NotNil(t, me.Profile)
	assert.Equal(t, "Rosa", me.Profile.GivenName)
}

func TestUpdateProfile_IgnoresForeignUserID(t *testing.T) {
	e := newEnv(t)
	tok := token(t, 5, common.RoleUser)

	rec, body := e.do(t, http.MethodPut, "/api/users/profile", tok, map[string]any{
		"userId":            999,
		"givenName":         "Rosa",
		"familyName":        "Mora",
		"encryptionVersion": "v0",
		"preferences":       map[string]any{"theme": "dark"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	d := decodeData[profiles.ProfileData](t, body)
	assert.Equal(t, int64(5), d.UserID)
	assert.Equal(t, "dark", d.Preferences.Theme)
	assert.Equal(t, common.EncryptionVersion, d.EncryptionVersion)

	_, err := e.repo.FindByUserID(context.Background(), 999)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	rec, _ = e.do(t, http.MethodPut, "/api/users/profile", tok, map[string]any{"familyName": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPut, "/api/users/profile", tok, "[1,2]")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileImage(t *testing.T) {
	e := newEnv(t)
	tok := token(t, 1, common.RoleUser)

	rec, body := e.do(t, http.MethodPost, "/api/users/profile/image", tok, map[string]string{"contentType": "image/png"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeConflict, body.Error.Code)
	assert.Contains(t, body.Error.Message, "create your profile")
	assert.Zero(t, e.images.uploads, "no upload may be signed without a profile")

	_, err := e.profiles.Upsert(context.Background(), 1, profiles.Patch{
		models.FieldGivenName: "Rosa", models.FieldFamilyName: "Mora",
	})
	require.NoError(t, err)

	rec, body = e.do(t, http.MethodPost, "/api/users/profile/image", tok, map[string]string{"contentType": "image/png"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeData[imageResponse](t, body)
	assert.Equal(t, "http://minio/signed", out.Upload.UploadURL)
	assert.Equal(t, out.Upload.ObjectURL, out.Profile.ProfileImageURL)

	raw, err := e.repo.FindByUserID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, cryptox.IsEncrypted(raw.ProfileImageURL))

	rec, _ = e.do(t, http.MethodPost, "/api/users/profile/image", tok, map[string]string{"contentType": "text/plain"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, body = e.do(t, http.MethodGet, "/api/users/profile", tok, nil)
	me := decodeData[meResponse](t, body)
	assert.Equal(t, "http://minio/get/profiles/1/a.png", me.ImageURL)
}

func TestProfileImage_StorageDisabled(t *testing.T) {
	e := newEnv(t)
	api := New(e.accounts, e.profiles, nil, nil, nil, logging.NewNop(), Options{JWTSecret: testSecret})
	e.handler = api.Routes()

	rec, _ := e.do(t, http.MethodPost, "/api/users/profile/image", token(t, 1, common.RoleUser), map[string]string{"contentType": "image/png"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t)
	tok := token(t, 3, common.RoleUser)

	rec, _ := e.do(t, http.MethodPut, "/api/users/change-password", tok, map[string]string{
		"currentPassword": "secret1", "newPassword": "123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPut, "/api/users/change-password", tok, map[string]string{
		"currentPassword": "secret1", "newPassword": "secret2",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{3}, e.accounts.changed)

	e.accounts.changeErr = common.ErrorUnauthorized
	rec, _ = e.do(t, http.MethodPut, "/api/users/change-password", tok, map[string]string{
		"currentPassword": "wrong", "newPassword": "secret2",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSearch(t *testing.T) {
	e := newEnv(t)
	admin := token(t, 100, common.RoleAdmin)
	ctx := context.Background()

	for id, name := range map[int64][2]string{1: {"Juan Carlos", "Perez"}, 2: {"Ana", "Carlosama"}, 3: {"Lucia", "Mendez"}} {
		_, err := e.profiles.Upsert(ctx, id, profiles.Patch{models.FieldGivenName: name[0], models.FieldFamilyName: name[1]})
		require.NoError(t, err)
	}

	rec, body := e.do(t, http.MethodGet, "/api/users/search?query=c", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, body.Error.Code)

	rec, body = e.do(t, http.MethodGet, "/api/users/search?query=carlos", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeData[searchResponse](t, body)
	assert.Equal(t, 2, res.Count)

	_, body = e.do(t, http.MethodGet, "/api/users/search?query=zz", admin, nil)
	res = decodeData[searchResponse](t, body)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Results)
}

func TestDeleteUser(t *testing.T) {
	e := newEnv(t)
	admin := token(t, 100, common.RoleAdmin)

	rec, _ := e.do(t, http.MethodDelete, "/api/users/abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodDelete, "/api/users/7", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][2]int64{{100, 7}}, e.accounts.deleted)

	rec, body := e.do(t, http.MethodDelete, "/api/users/100", admin, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeForbidden, body.Error.Code)

	e.accounts.deleteErr = common.ErrorNotFound
	rec, _ = e.do(t, http.MethodDelete, "/api/users/8", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthMe(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err := e.profiles.Upsert(context.Background(), 6, profiles.Patch{
		models.FieldGivenName: "Lucia", models.FieldFamilyName: "Mendez",
	})
	require.NoError(t, err)

	rec, body := e.do(t, http.MethodGet, "/api/auth/me", token(t, 6, common.RoleUser), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decodeData[meResponse](t, body)
	assert.Equal(t, int64(6), me.User.ID)
	require.NotNil(t, me.Profile)
	assert.Equal(t, "Lucia", me.Profile.GivenName)
}

func TestListUsers(t *testing.T) {
	e := newEnv(t)
	admin := token(t, 100, common.RoleAdmin)

	rec, body := e.do(t, http.MethodGet, "/api/users?page=2&limit=5&search=carlos", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeData[services.AccountPage](t, body)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "ana@example.com", page.Users[0].Email)
	assert.Equal(t, int64(1), page.Total)

	rec, _ = e.do(t, http.MethodGet, "/api/users?page=x&limit=", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []listCall{{page: 2, limit: 5, search: "carlos"}, {}}, e.accounts.listed)
}

func TestGetUser(t *testing.T) {
	e := newEnv(t)
	admin := token(t, 100, common.RoleAdmin)

	rec, body := e.do(t, http.MethodGet, "/api/users/7", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeData[services.AccountWithProfile](t, body)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "user@example.com", got.Email)
	require.NotNil(t, got.Profile)
	assert.Equal(t, "Rosa", got.Profile.GivenName)

	rec, _ = e.do(t, http.MethodGet, "/api/users/404", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/users/-1", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateUser(t *testing.T) {
	e := newEnv(t)
	admin := token(t, 100, common.RoleAdmin)

	rec, body := e.do(t, http.MethodPut, "/api/users/7", admin, map[string]any{
		"email": "nueva@example.com", "role": "admin", "active": false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	acc := decodeData[services.Account](t, body)
	assert.Equal(t, "nueva@example.com", acc.Email)
	assert.Equal(t, common.RoleAdmin, acc.Role)

	require.Len(t, e.accounts.updates, 1)
	u := e.accounts.updates[0]
	require.NotNil(t, u.Active)
	assert.False(t, *u.Active)
	assert.Nil(t, u.Password)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad email", map[string]any{"email": "not-an-email"}},
		{"short password", map[string]any{"password": "123"}},
		{"unknown role", map[string]any{"role": "root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := e.do(t, http.MethodPut, "/api/users/7", admin, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, CodeValidation, body.Error.Code)
		})
	}
	assert.Len(t, e.accounts.updates, 1)

	e.accounts.updateErr = common.ErrorAlreadyExists
	rec, _ = e.do(t, http.MethodPut, "/api/users/7", admin, map[string]any{"email": "bob@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
