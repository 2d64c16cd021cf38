package oauth2

// TokenResponse is the JSON body of a successful /oauth/token call (RFC 6749
// section 5.1). Pointer fields are omitted when the grant does not issue them.
type TokenResponse struct {
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is only set when openid was granted.
	IdToken *string `json:"id_token,omitempty"`

	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds. The exp claim is
	// authoritative.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is opaque and only set for offline_access.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is the space separated granted scope, which can be narrower than
	// what was asked for.
	Scope string `json:"scope,omitempty"`
}

// TokenTypeBearer is the only token_type issued
const TokenTypeBearer = "Bearer"

// ErrorResponse is the body of every failed token endpoint call (RFC 6749 section 5.2).
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
