package httpapi

import "net/http"

func (a *API) migrateEncryption(w http.ResponseWriter, r *http.Request) {
	res, err := a.jobs.MigrateEncryption(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.logger.Info(r.Context(), "encryption migration requested", "by", currentUserID(r),
		"migrated", res.MigratedCount, "errors", res.ErrorCount)
	a.ok(w, r, http.StatusOK, "migration finished", res)
}

func (a *API) verifyEncryption(w http.ResponseWriter, r *http.Request) {
	res, err := a.jobs.VerifyEncryption(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.ok(w, r, http.StatusOK, "", res)
}

func (a *API) encryptionStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.jobs.GetEncryptionStats(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.ok(w, r, http.StatusOK, "", st)
}

func (a *API) migrateEmails(w http.ResponseWriter, r *http.Request) {
	res, err := a.accounts.MigrateEmails(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.ok(w, r, http.StatusOK, "email migration finished", res)
}
