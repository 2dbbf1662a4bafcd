package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/validation"
	"github.com/goccy/go-json"
)

// Error codes carried in the error envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeEncryption   = "ENCRYPTION_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

func respondJSON(ctx context.Context, log logging.Logger, w http.ResponseWriter, status int, body *Response) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Error(ctx, "failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Warn(ctx, "failed to write response", "error", err)
	}
}

func (a *API) ok(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	respondJSON(r.Context(), a.logger, w, status, &Response{Success: true, Message: message, Data: data})
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(r.Context(), a.logger, w, status, &Response{Error: &APIError{Code: code, Message: message}})
}

// respondError maps a service error onto a status code and envelope.
// Internal errors are logged and never echoed to the client.
func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error

	switch {
	case errors.As(err, &verr):
		respondJSON(r.Context(), a.logger, w, http.StatusBadRequest, &Response{Error: &APIError{
			Code:    CodeValidation,
			Message: verr.Error(),
			Fields:  verr.Fields,
		}})
	case errors.Is(err, common.ErrorValidation):
		a.fail(w, r, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrRefreshTokenExpired):
		a.fail(w, r, http.StatusUnauthorized, CodeTokenExpired, "token expired")
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		a.fail(w, r, http.StatusUnauthorized, CodeUnauthorized, "invalid credentials")
	case errors.Is(err, common.ErrorForbidden):
		a.fail(w, r, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		a.fail(w, r, http.StatusNotFound, CodeNotFound, "not found")
	case errors.Is(err, common.ErrorAlreadyExists):
		a.fail(w, r, http.StatusConflict, CodeConflict, "already exists")
	case errors.Is(err, common.ErrVersionConflict):
		a.fail(w, r, http.StatusConflict, CodeConflict, "record was modified concurrently, retry")
	case errors.Is(err, common.ErrTransformFailure):
		a.logger.Error(r.Context(), "cipher failure", "path", r.URL.Path, "error", err)
		a.fail(w, r, http.StatusInternalServerError, CodeEncryption, "data could not be processed")
	default:
		a.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		a.fail(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// decodeJSON reads a JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &validation.Error{Fields: []validation.FieldError{{
			Field: "body", Tag: "json", Message: "request body is not valid JSON",
		}}}
	}
	return nil
}

// bind decodes a request DTO and runs its validate tags.
func bind(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil {
		return err
	}
	return validation.Struct(dst)
}
