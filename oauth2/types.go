package oauth2

// ResponseType is the response_type sent to /authorize. Only the code flow is
// offered.
type ResponseType string

const CodeResponseType ResponseType = "code"

// ResponseModeType controls how /authorize hands the code and state back to the
// redirect_uri.
type ResponseModeType string

const (
	// QueryResponseMode appends code and state to the callback query string.
	QueryResponseMode ResponseModeType = "query"
	// FragmentResponseMode places them after the '#', out of reach of the
	// client's server.
	FragmentResponseMode ResponseModeType = "fragment"
	// FormPostResponseMode renders a self-submitting form that POSTs them.
	FormPostResponseMode ResponseModeType = "form_post"
)

// DefaultResponseMode applies when the request names none.
const DefaultResponseMode = QueryResponseMode

// Valid reports whether m is one of the supported response modes.
func (m ResponseModeType) Valid() bool {
	switch m {
	case QueryResponseMode, FragmentResponseMode, FormPostResponseMode:
		return true
	}
	return false
}

// CodeMethodType is the PKCE code_challenge_method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 compares BASE64URL(SHA256(verifier)) to the challenge.
	CodeMethodTypeS256 CodeMethodType = "S256"
	// CodeMethodTypeNone compares the verifier to the challenge as sent.
	CodeMethodTypeNone CodeMethodType = "plain"
)

// GrantType is the grant_type posted to /oauth/token.
type GrantType string

const (
	AuthorizationCodeGrant     GrantType = "authorization_code"
	ClientCredentialsCodeGrant GrantType = "client_credentials"
	RefreshTokenCodeGrant      GrantType = "refresh_token"
	// PasswordGrant is resource owner password credentials, for first-party
	// clients only.
	PasswordGrant GrantType = "password"
)

// Prompt values accepted at the authorization endpoint.
const (
	// PromptNone succeeds from the session cookie or fails with login_required.
	// It never renders a page.
	PromptNone = "none"
	// PromptLogin forces the login page even when a session exists.
	PromptLogin = "login"
)

// OfflineAccessScope asks for a refresh token.
const OfflineAccessScope = "offline_access"
