package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Returned identically for an
	// unknown email and a wrong password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the account exists but is disabled.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrPasswordResetRequired indicates the account must complete a password reset before login.
	ErrPasswordResetRequired = errors.New("password reset required")
	// ErrUnauthorized indicates a missing, invalid or expired access token or session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a valid identity with insufficient permission.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a uniqueness or protected-record violation.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed or inconsistent input.
	ErrValidation = errors.New("validation failed")
)
