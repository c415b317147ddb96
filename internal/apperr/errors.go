// Package apperr defines the error kinds surfaced by the auth service and its
// middleware. Each kind carries the HTTP status handlers respond with, so the
// boundary that turns an error into a response never has to guess.
//
// Two errors are the same kind when their codes match; a kind may be
// re-issued with a more specific message via WithMessage and errors.Is still
// matches the original sentinel.
package apperr

import (
	"errors"
	"net/http"
)

// Error is a classified, client-safe failure.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e with a different message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Status: e.Status, Message: msg}
}

// WithStatus returns a copy of e answered with a different HTTP status.
func (e *Error) WithStatus(status int) *Error {
	return &Error{Code: e.Code, Status: status, Message: e.Message}
}

func newErr(code string, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

// Registration.
var (
	ErrValidation     = newErr("VALIDATION_ERROR", http.StatusBadRequest, "email and password are required")
	ErrDuplicateEmail = newErr("DUPLICATE_EMAIL", http.StatusConflict, "email already registered")
)

// Login and token exchange. InvalidCredentials and InvalidOrExpiredOtp use
// one message for every cause.
var (
	ErrInvalidCredentials    = newErr("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrAccountInactive       = newErr("ACCOUNT_INACTIVE", http.StatusUnauthorized, "account is inactive")
	ErrInvalidOrExpiredOtp   = newErr("INVALID_OR_EXPIRED_OTP", http.StatusUnauthorized, "invalid or expired verification code")
	ErrInvalidOrExpiredToken = newErr("INVALID_OR_EXPIRED_TOKEN", http.StatusUnauthorized, "invalid or expired token")
	ErrUserNotFound          = newErr("USER_NOT_FOUND", http.StatusUnauthorized, "user not found")
	ErrOTPDelivery           = newErr("OTP_DELIVERY_FAILED", http.StatusBadGateway, "could not deliver verification code")
)

// Authentication middleware.
var (
	ErrNoToken                = newErr("NO_TOKEN", http.StatusUnauthorized, "no token provided")
	ErrInvalidToken           = newErr("INVALID_TOKEN", http.StatusUnauthorized, "invalid token")
	ErrTokenExpired           = newErr("TOKEN_EXPIRED", http.StatusUnauthorized, "token expired")
	ErrInvalidPayload         = newErr("INVALID_PAYLOAD", http.StatusUnauthorized, "invalid token payload")
	ErrAuthenticationFailed   = newErr("AUTHENTICATION_FAILED", http.StatusUnauthorized, "authentication failed")
	ErrAuthenticationRequired = newErr("AUTHENTICATION_REQUIRED", http.StatusUnauthorized, "authentication required")
)

// Authorization middleware.
var (
	ErrRoleNotFound        = newErr("ROLE_NOT_FOUND", http.StatusForbidden, "user role not found")
	ErrAccessDenied        = newErr("ACCESS_DENIED", http.StatusForbidden, "access denied")
	ErrAuthorizationFailed = newErr("AUTHORIZATION_FAILED", http.StatusForbidden, "authorization failed")
)

// ErrTooManyRequests is returned by the rate limiter.
var ErrTooManyRequests = newErr("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "rate limit exceeded")

// ErrInternal is what every unclassified error becomes at the response boundary.
var ErrInternal = newErr("INTERNAL", http.StatusInternalServerError, "internal server error")

// As extracts the classified error from err, falling back to ErrInternal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
