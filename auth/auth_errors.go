package auth

import (
	"net/http"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
)

var (
	ErrUnknownClient     = apperrors.InvalidRequest("Unknown client")
	ErrUnknownConnection = apperrors.InvalidRequest("Unknown connection")
	ErrInvalidState      = apperrors.InvalidRequest("Invalid state")
	ErrStateExpired      = apperrors.InvalidRequest("State expired")
	ErrUpstreamLogin     = apperrors.AccessDenied("Upstream login failed")
	ErrInvalidReturnTo   = apperrors.InvalidRequest("Invalid returnTo url")
	ErrInactiveToken     = apperrors.New(http.StatusUnauthorized, "invalid_token", "Token is not active")
)
