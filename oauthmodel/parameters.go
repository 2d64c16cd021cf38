package oauthmodel

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-identity-core/clients"
	"github.com/jrsteele09/go-identity-core/loginsession"
	"github.com/jrsteele09/go-identity-core/oauth2"
)

// maxCodeChallengeLength bounds code_challenge (RFC 7636 allows 43-128 characters).
const maxCodeChallengeLength = 128

// AuthorizationParameters holds parameters for the OAuth2 authorization request.
// These are received as query parameters at the /authorize endpoint.
type AuthorizationParameters struct {
	TenantID string

	// ClientID identifies the application requesting authorization.
	// Required: Yes
	// Validated against: clients.Client.ID in the tenant
	ClientID string

	// ResponseType specifies what the authorization endpoint should return.
	// Required: Yes
	// Example: "code" (only supported value)
	ResponseType oauth2.ResponseType

	// RedirectURI is where the authorization response will be sent.
	// Required: Yes
	// Validated against: clients.Client.Callbacks
	// Security: Must exactly match a pre-registered URI to prevent open redirects
	RedirectURI string

	// ResponseMode controls how the authorization response is returned (query/fragment/form_post).
	// Required: No (defaults to "query" for code flow)
	ResponseMode oauth2.ResponseModeType

	// Scope specifies the permissions being requested.
	// Example: "openid profile email offline_access read:reports"
	Scope string

	// Audience is the resource server identifier the access token is for.
	// Required: No (the tenant default audience is used when empty)
	Audience string

	// Organization restricts the login to members of one organization.
	// Required: No
	Organization string

	// State is an opaque value echoed back on the redirect (CSRF protection for the client).
	State string

	// CodeChallenge is the PKCE challenge derived from code_verifier.
	// Required: Yes for public clients, optional for confidential
	// Example: BASE64URL(SHA256(code_verifier))
	CodeChallenge string

	// CodeChallengeMethod specifies how code_challenge was derived.
	// Default: "plain" if not specified (but S256 strongly recommended)
	CodeChallengeMethod oauth2.CodeMethodType

	// Connection skips the login page and sends the user straight to a social connection.
	// Example: "google-oauth2"
	Connection string

	// Prompt "none" requests silent authentication, "login" forces the login page.
	Prompt string

	// LoginHint pre-fills the username/email on the login page.
	// Security: Should not be trusted, only used for UI pre-population
	LoginHint string

	// Nonce is copied into the ID token so the client can detect replays.
	Nonce string
}

// ParseAuthorizationParameters reads the authorization request from query.
func ParseAuthorizationParameters(tenantID string, query url.Values) *AuthorizationParameters {
	return &AuthorizationParameters{
		TenantID:            tenantID,
		ClientID:            query.Get("client_id"),
		ResponseType:        oauth2.ResponseType(query.Get("response_type")),
		RedirectURI:         query.Get("redirect_uri"),
		ResponseMode:        oauth2.ResponseModeType(query.Get("response_mode")),
		Scope:               query.Get("scope"),
		Audience:            query.Get("audience"),
		Organization:        query.Get("organization"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: oauth2.CodeMethodType(query.Get("code_challenge_method")),
		Connection:          query.Get("connection"),
		Prompt:              query.Get("prompt"),
		LoginHint:           query.Get("login_hint"),
		Nonce:               query.Get("nonce"),
	}
}

// ValidateParametersWithClient validates the Authorization parameters against the client.
// The redirect_uri check comes first: until it passes, no error may be sent to the callback.
func (p *AuthorizationParameters) ValidateParametersWithClient(client *clients.Client, requirePKCE bool) error {
	if client.TenantID != "" && p.TenantID != "" && client.TenantID != p.TenantID {
		return ErrClientTenantsMismatch
	}
	if !client.IsValidCallback(p.RedirectURI) {
		return ErrInvalidRedirectUri
	}
	if len(p.CodeChallenge) > maxCodeChallengeLength {
		return ErrInvalidCodeChallenge
	}
	if !codeChallengeMethodValid(p.CodeChallenge, p.CodeChallengeMethod) {
		return ErrInvalidCodeChallengeMethod
	}
	if strings.TrimSpace(p.CodeChallenge) == "" && (client.IsPublic() || requirePKCE) {
		return ErrPKCERequired
	}
	if !responseModeValid(p.ResponseMode) {
		return ErrInvalidResponseMode
	}
	if !responseTypeValid(p.ResponseType) {
		return ErrInvalidResponseType
	}
	return nil
}

// AuthParams converts the request into what the login session stores.
func (p *AuthorizationParameters) AuthParams() loginsession.AuthParams {
	responseType := p.ResponseType
	if responseType == "" {
		responseType = oauth2.CodeResponseType
	}
	responseMode := p.ResponseMode
	if responseMode == "" {
		responseMode = oauth2.DefaultResponseMode
	}
	return loginsession.AuthParams{
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		Scope:               p.Scope,
		Audience:            p.Audience,
		ResponseType:        responseType,
		ResponseMode:        responseMode,
		Nonce:               p.Nonce,
		State:               p.State,
		Organization:        p.Organization,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		Prompt:              p.Prompt,
		Username:            p.LoginHint,
	}
}

func codeChallengeMethodValid(codeChallenge string, challengeMethod oauth2.CodeMethodType) bool {
	if strings.TrimSpace(codeChallenge) == "" {
		return true
	}
	switch challengeMethod {
	case oauth2.CodeMethodTypeS256, oauth2.CodeMethodTypeNone, "":
		return true
	}
	return false
}

func responseModeValid(responseMode oauth2.ResponseModeType) bool {
	if strings.TrimSpace(string(responseMode)) == "" {
		return true
	}
	return responseMode.Valid()
}

func responseTypeValid(responseType oauth2.ResponseType) bool {
	if strings.TrimSpace(string(responseType)) == "" {
		return true
	}
	return responseType == oauth2.CodeResponseType
}
