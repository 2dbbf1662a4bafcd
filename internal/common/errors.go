// Package common holds the sentinel errors, roles and header names shared
// by the server, the admin service and cryptctl. Match errors with
// errors.Is; every layer wraps them with %w.
package common

import "errors"

// Storage outcomes.
var (
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// ErrVersionConflict means a compare-and-set write lost to a concurrent
	// update. Callers reload and retry or give up.
	ErrVersionConflict = errors.New("version conflict")
)

// Request outcomes, mapped to HTTP and gRPC status codes at the edges.
var (
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

var (
	// ErrCipherConfiguration stops the server at startup.
	ErrCipherConfiguration = errors.New("cipher configuration error")

	// ErrTransformFailure only reaches callers when the engine is fail-closed.
	ErrTransformFailure = errors.New("cipher transform failure")
)
