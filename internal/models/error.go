package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountLocked  = errors.New("account is temporarily locked")
	ErrAccountBanned  = errors.New("account is banned")
	ErrIPBlocked      = errors.New("too many attempts from this address")
	ErrCaptchaFailed  = errors.New("human verification failed")

	// Verification errors
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrVerificationFailed = errors.New("verification code invalid or expired")

	// MFA errors
	ErrMFARequired    = errors.New("multi-factor verification required")
	ErrMFANotEnabled  = errors.New("multi-factor verification not enabled")
	ErrMFAInvalidCode = errors.New("invalid verification code")

	// Session errors, kept distinct so middleware can tell a revoked
	// session apart from a malformed or expired token
	ErrTokenInvalid   = errors.New("invalid or expired token")
	ErrSessionRevoked = errors.New("session has been revoked")
)
