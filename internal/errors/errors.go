package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types shared by the domain packages and the adapters
var (
	// Storage errors
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrCodeAlreadyUsed = errors.New("code already used")
	ErrExpired         = errors.New("expired")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserBlocked        = errors.New("user is blocked")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Client errors
	ErrInvalidClient      = errors.New("invalid client")
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")
)

// OAuth2 error codes used in {error, error_description} payloads
const (
	CodeAccessDenied         = "access_denied"
	CodeInvalidGrant         = "invalid_grant"
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeInvalidScope         = "invalid_scope"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeServerError          = "server_error"
	CodeNotFound             = "not_found"
	CodeLoginRequired        = "login_required"
)

// HTTPError is a policy or validation failure that maps onto an HTTP status and a
// structured {error, error_description} payload.
type HTTPError struct {
	Status      int
	Code        string
	Description string
	cause       error
}

func New(status int, code, description string) *HTTPError {
	return &HTTPError{Status: status, Code: code, Description: description}
}

func (e *HTTPError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *HTTPError) Unwrap() error {
	return e.cause
}

// Is matches another HTTPError with the same public payload, so copies made by
// WithCause still satisfy errors.Is against the original value.
func (e *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	if !ok {
		return false
	}
	return e.Status == t.Status && e.Code == t.Code && e.Description == t.Description
}

// WithCause attaches an underlying error without changing the public payload.
func (e *HTTPError) WithCause(err error) *HTTPError {
	c := *e
	c.cause = err
	return &c
}

func AccessDenied(description string) *HTTPError {
	return New(http.StatusForbidden, CodeAccessDenied, description)
}

func InvalidRequest(description string) *HTTPError {
	return New(http.StatusBadRequest, CodeInvalidRequest, description)
}

func InvalidGrant(description string) *HTTPError {
	return New(http.StatusBadRequest, CodeInvalidGrant, description)
}

// InvalidClientCredentials is deliberately generic: secret, PKCE and redirect_uri
// mismatches all produce the same response.
func InvalidClientCredentials() *HTTPError {
	return New(http.StatusForbidden, CodeInvalidClient, "Invalid client credentials")
}

func InvalidClient(description string) *HTTPError {
	return New(http.StatusUnauthorized, CodeInvalidClient, description)
}

func Forbidden(code, description string) *HTTPError {
	return New(http.StatusForbidden, code, description)
}

func UnsupportedGrantType(grantType string) *HTTPError {
	return New(http.StatusBadRequest, CodeUnsupportedGrantType, fmt.Sprintf("Unsupported grant type: %s", grantType))
}

func NotFound(description string) *HTTPError {
	return New(http.StatusNotFound, CodeNotFound, description)
}

// AsHTTPError returns the first HTTPError in err's chain.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
