package auth

import (
	stderrors "errors"
	"fmt"

	tferrors "github.com/felixgeelhaar/tradeflow/internal/errors"
)

// Error codes for authentication failures
const (
	// Credential errors
	ErrInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	ErrAccountDisabled     = "AUTH_ACCOUNT_DISABLED"
	ErrEmailTaken          = "AUTH_EMAIL_TAKEN"
	ErrRegistrationInvalid = "AUTH_REGISTRATION_INVALID"
	ErrRegistrationClosed  = "AUTH_REGISTRATION_CLOSED"
	ErrUserNotFound        = "AUTH_USER_NOT_FOUND"
	ErrAccountNotFound     = "AUTH_ACCOUNT_NOT_FOUND"
	ErrInvalidRole         = "AUTH_INVALID_ROLE"

	// Token errors
	ErrTokenMissing       = "AUTH_TOKEN_MISSING"
	ErrTokenInvalid       = "AUTH_TOKEN_INVALID"
	ErrTokenExpired       = "AUTH_TOKEN_EXPIRED"
	ErrTokenMalformed     = "AUTH_TOKEN_MALFORMED"
	ErrTokenSigningFailed = "AUTH_TOKEN_SIGNING_FAILED"

	// Authorization errors
	ErrForbidden = "AUTH_FORBIDDEN"
)

var codeKinds = map[string]tferrors.Kind{
	ErrInvalidCredentials:  tferrors.KindUnauthorized,
	ErrAccountDisabled:     tferrors.KindUnauthorized,
	ErrEmailTaken:          tferrors.KindValidation,
	ErrRegistrationInvalid: tferrors.KindValidation,
	ErrRegistrationClosed:  tferrors.KindForbidden,
	ErrUserNotFound:        tferrors.KindUnauthorized,
	ErrAccountNotFound:     tferrors.KindNotFound,
	ErrInvalidRole:         tferrors.KindValidation,
	ErrTokenMissing:        tferrors.KindUnauthorized,
	ErrTokenInvalid:        tferrors.KindUnauthorized,
	ErrTokenExpired:        tferrors.KindUnauthorized,
	ErrTokenMalformed:      tferrors.KindUnauthorized,
	ErrTokenSigningFailed:  tferrors.KindInternal,
	ErrForbidden:           tferrors.KindForbidden,
}

// AuthError represents an authentication error with code and context.
type AuthError struct {
	// Code is the error code (e.g., AUTH_TOKEN_EXPIRED)
	Code string

	// Message is a human-readable error message
	Message string

	// Context provides additional details about the error
	Context map[string]interface{}

	// Cause is the underlying error that caused this error
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Kind maps the auth code onto the shared error taxonomy.
func (e *AuthError) Kind() tferrors.Kind {
	if k, ok := codeKinds[e.Code]; ok {
		return k
	}
	return tferrors.KindUnauthorized
}

// NewError creates a new AuthError.
func NewError(code, message string, context map[string]interface{}) *AuthError {
	return &AuthError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// WrapError wraps an existing error with an AuthError.
func WrapError(code, message string, cause error, context map[string]interface{}) *AuthError {
	return &AuthError{
		Code:    code,
		Message: message,
		Context: context,
		Cause:   cause,
	}
}

// IsAuthError checks if an error is an AuthError with the given code.
func IsAuthError(err error, code string) bool {
	var authErr *AuthError
	if stderrors.As(err, &authErr) {
		return authErr.Code == code
	}
	return false
}
