package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Browser flow
	RouteAuthorize      = "/authorize"
	RouteLogin          = "/u/login"
	RouteSocialCallback = "/login/callback"
	RouteLogout         = "/v2/logout"

	// Post-login detours
	RouteContinue            = "/u/continue"
	RouteConfirmEmailChange  = "/u/confirm-email-change"
	RouteForms               = "/u/forms/{formID}"
	RouteImpersonate         = "/u/impersonate"
	RouteImpersonateSwitch   = "/u/impersonate/switch"
	RouteImpersonateContinue = "/u/impersonate/continue"

	// OAuth2 / OIDC API routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteOAuthToken            = "/oauth/token"
	RouteOAuthRevoke           = "/oauth/revoke"
	RouteOAuthIntrospect       = "/oauth/introspect"
	RouteUserInfo              = "/userinfo"

	RouteMetrics = "/metrics"
)
