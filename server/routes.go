package server

import "net/http"

func (s *Server) initRoutes() {
	// Browser flow
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.Authorize(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginSubmission(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteSocialCallback, ChainMiddleware(s.SocialCallback(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteLogout, ChainMiddleware(s.Logout(), s.HTMLMiddleWare()...))

	// Post-login detours
	s.RegisterRouteHandler("GET "+RouteContinue, ChainMiddleware(s.Continue(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteConfirmEmailChange, ChainMiddleware(s.ConfirmEmailChange(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteForms, ChainMiddleware(s.Form(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteImpersonate, ChainMiddleware(s.ImpersonatePage(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteImpersonateSwitch, ChainMiddleware(s.ImpersonateSwitch(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteImpersonateContinue, ChainMiddleware(s.ImpersonateContinue(), s.HTMLMiddleWare()...))

	// OAuth2 / OIDC API routes
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuthToken, ChainMiddleware(s.Token(), s.APIMiddleware(s.RateLimitMiddleware, s.NoStoreMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteOAuthRevoke, ChainMiddleware(s.Revoke(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuthIntrospect, ChainMiddleware(s.Introspect(), s.APIMiddleware(s.NoStoreMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS /oauth/", ChainMiddleware(http.NotFound, s.APIMiddleware()...)) // CORS preflight

	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
	}
}
