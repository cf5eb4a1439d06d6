package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential and account-security errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrDuplicateKey       = errors.New("username or email already registered")
	ErrPasswordReused     = errors.New("password was used recently")
	ErrSamePassword       = errors.New("new password must be different from current password")

	// Password reset errors
	ErrResetInvalidOrExpired = errors.New("invalid or expired reset code or token")
	// ErrDeliveryFailed is non-fatal: the reset code stays live and the
	// caller may retry delivery.
	ErrDeliveryFailed = errors.New("failed to deliver notification")
)

// PolicyViolationError reports the first password policy rule a candidate
// password failed. The reason is caller-facing so users can self-correct.
type PolicyViolationError struct {
	Reason string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("password policy violation: %s", e.Reason)
}

// IsPolicyViolation reports whether err is a PolicyViolationError.
func IsPolicyViolation(err error) bool {
	var pv *PolicyViolationError
	return errors.As(err, &pv)
}
