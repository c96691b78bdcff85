package auth

import "errors"

var (
	// Authentication failures. Surfaced generically to callers so the
	// response never reveals which part of the credential was wrong.
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrAccountLocked       = errors.New("auth: account locked")
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrExpiredToken        = errors.New("auth: token expired")
	ErrTokenRevoked        = errors.New("auth: token revoked")
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")

	// Authorization failures. The caller is already authenticated, so
	// these may be specific.
	ErrWrongTokenType          = errors.New("auth: wrong token type")
	ErrInsufficientPermissions = errors.New("auth: insufficient permissions")
	ErrTenantMismatch          = errors.New("auth: venue mismatch")
	ErrSelfMutation            = errors.New("auth: operators cannot modify their own role or delete themselves")
	ErrFounderProtected        = errors.New("auth: founder operator cannot be modified this way")

	// Infrastructure failures.
	ErrRevocationCheck = errors.New("auth: revocation check unavailable")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
)
