package oauthmodel

import (
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
)

var (
	ErrMissingClientID            = apperrors.InvalidRequest("Missing client_id")
	ErrInvalidCodeChallenge       = apperrors.InvalidRequest("Invalid code_challenge")
	ErrClientTenantsMismatch      = apperrors.InvalidRequest("Client does not belong to tenant")
	ErrInvalidCodeChallengeMethod = apperrors.InvalidRequest("Invalid code_challenge_method")
	ErrInvalidRedirectUri         = apperrors.InvalidRequest("Invalid redirect_uri")
	ErrInvalidResponseMode        = apperrors.InvalidRequest("Invalid response_mode")
	ErrInvalidResponseType        = apperrors.New(400, "unsupported_response_type", "Unsupported response_type")
	ErrPKCERequired               = apperrors.InvalidRequest("code_challenge is required for public clients")
)
