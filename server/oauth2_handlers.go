package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-identity-core/grants"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/oauth2"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		issuer, err := s.tokens.Issuer(r.Context(), tenant.ID)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		base := strings.TrimSuffix(issuer, "/")

		resp := map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": base + RouteAuthorize,
			"token_endpoint":         base + RouteOAuthToken,
			"userinfo_endpoint":      base + RouteUserInfo,
			"jwks_uri":               base + RouteWellKnownJWKS,
			"revocation_endpoint":    base + RouteOAuthRevoke,
			"introspection_endpoint": base + RouteOAuthIntrospect,
			"end_session_endpoint":   base + RouteLogout,

			"response_types_supported": []string{string(oauth2.CodeResponseType)},
			"response_modes_supported": []string{
				string(oauth2.QueryResponseMode),
				string(oauth2.FragmentResponseMode),
				string(oauth2.FormPostResponseMode),
			},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256", "ES256", "HS256"},
			"scopes_supported":                      []string{"openid", "profile", "email", oauth2.OfflineAccessScope},
			"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post", "none"},
			"grant_types_supported": []string{
				string(oauth2.AuthorizationCodeGrant),
				string(oauth2.RefreshTokenCodeGrant),
				string(oauth2.ClientCredentialsCodeGrant),
				string(oauth2.PasswordGrant),
			},
			"code_challenge_methods_supported": []string{string(oauth2.CodeMethodTypeS256), string(oauth2.CodeMethodTypeNone)},
			"claims_supported": []string{
				"sub", "iss", "aud", "exp", "iat", "nonce", "act",
				"email", "email_verified", "name", "given_name", "family_name", "nickname", "picture", "preferred_username",
			},
			"request_parameter_supported":     false,
			"request_uri_parameter_supported": false,
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.tokens.JWKS()
		if err != nil {
			writeJSONError(w, err)
			return
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jwks)
	}
}

// Token exchanges a grant for tokens
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, apperrors.InvalidRequest("Failed to parse form data"))
			return
		}

		req, err := grants.ParseRequest(tenant.ID, r.PostForm, clientAuth(r), requestInfo(r))
		if err != nil {
			writeJSONError(w, err)
			return
		}
		resp, err := s.grants.Exchange(r.Context(), req)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Introspect reports whether a token is active. Callers must be confidential clients.
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, apperrors.InvalidRequest("Failed to parse form data"))
			return
		}
		token := r.PostFormValue("token")
		if token == "" {
			writeJSONError(w, apperrors.InvalidRequest("token parameter is required"))
			return
		}

		introspection, err := s.auth.Introspect(r.Context(), tenant.ID, token, clientAuth(r))
		if err != nil {
			writeJSONError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, introspection)
	}
}

// Revoke revokes an access or refresh token (RFC 7009)
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, apperrors.InvalidRequest("Failed to parse form data"))
			return
		}
		token := r.PostFormValue("token")
		if token == "" {
			writeJSONError(w, apperrors.InvalidRequest("token parameter is required"))
			return
		}

		if err := s.auth.RevokeToken(r.Context(), tenant.ID, token, r.PostFormValue("token_type_hint"), clientAuth(r)); err != nil {
			writeJSONError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// UserInfo returns the claims of the bearer token's subject
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="userinfo"`)
			writeJSONError(w, apperrors.New(http.StatusUnauthorized, "invalid_token", "Missing or malformed Authorization header"))
			return
		}
		userInfo, err := s.auth.UserInfo(r.Context(), accessToken)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userInfo)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError writes an OAuth2 error response. Anything that is not an
// HTTPError is logged and reported as server_error.
func writeJSONError(w http.ResponseWriter, err error) {
	httpErr, ok := apperrors.AsHTTPError(err)
	if !ok {
		log.Err(err).Msg("unhandled error")
		httpErr = apperrors.New(http.StatusInternalServerError, apperrors.CodeServerError, "Internal server error")
	}
	writeJSON(w, httpErr.Status, oauth2.ErrorResponse{
		Error:            httpErr.Code,
		ErrorDescription: httpErr.Description,
	})
}
