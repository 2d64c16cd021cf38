package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-identity-core/grants"
	"github.com/jrsteele09/go-identity-core/hooks"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/pkg/errors"
)

// tenantHeader selects the tenant explicitly, e.g. behind a proxy that hides the subdomain.
const tenantHeader = "tenant-id"

// asnHeader carries the client's autonomous system number when set by the edge proxy.
const asnHeader = "X-Client-ASN"

var errUnknownTenant = apperrors.InvalidRequest("Unknown tenant")

// authCookieName is the browser session cookie of a tenant
func authCookieName(tenantID string) string {
	return tenantID + "-auth-token"
}

func (s *Server) setAuthCookie(w http.ResponseWriter, tenantID, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName(tenantID),
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
		MaxAge:   int(s.config.GetSessionLifetime().Seconds()),
	})
}

// clearAuthCookie expires the auth cookie twice: browsers with CHIPS keep the
// partitioned and unpartitioned cookies in separate jars.
func clearAuthCookie(w http.ResponseWriter, tenantID string) {
	for _, partitioned := range []bool{true, false} {
		http.SetCookie(w, &http.Cookie{
			Name:        authCookieName(tenantID),
			Value:       "",
			Path:        "/",
			MaxAge:      -1,
			HttpOnly:    true,
			Secure:      true,
			SameSite:    http.SameSiteNoneMode,
			Partitioned: partitioned,
		})
	}
}

func sessionIDFromCookie(r *http.Request, tenantID string) string {
	cookie, err := r.Cookie(authCookieName(tenantID))
	if err != nil {
		return ""
	}
	return cookie.Value
}

// tenantFromHost resolves the tenant from the tenant-id header, then from the
// subdomain of the configured base URL, then falls back to the default tenant.
func (s *Server) tenantFromHost(ctx context.Context, r *http.Request) (*tenants.Tenant, error) {
	tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
	if tenantID == "" {
		tenantID = s.subdomainTenant(r.Host)
	}
	if tenantID == "" {
		tenantID = s.config.GetDefaultTenant()
	}

	t, err := s.tenants.Get(ctx, tenantID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, errUnknownTenant
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[Server.tenantFromHost] tenant %s", tenantID)
	}
	return t, nil
}

func (s *Server) subdomainTenant(host string) string {
	host, _, _ = strings.Cut(host, ":")

	baseHost := s.config.GetBaseURL()
	if _, after, found := strings.Cut(baseHost, "://"); found {
		baseHost = after
	}
	baseHost, _, _ = strings.Cut(baseHost, "/")
	baseHost, _, _ = strings.Cut(baseHost, ":")

	if baseHost == "" || host == baseHost || !strings.HasSuffix(host, "."+baseHost) {
		return ""
	}
	return strings.TrimSuffix(host, "."+baseHost)
}

func requestInfo(r *http.Request) hooks.RequestInfo {
	return hooks.RequestInfo{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		ASN:       strings.TrimSpace(r.Header.Get(asnHeader)),
		Hostname:  r.Host,
		Query:     r.URL.Query(),
	}
}

// clientAuth reads client credentials from HTTP Basic first, then the form.
func clientAuth(r *http.Request) grants.ClientAuth {
	if id, secret, ok := r.BasicAuth(); ok {
		return grants.ClientAuth{ClientID: id, ClientSecret: secret}
	}
	return grants.ClientAuth{ClientID: r.FormValue("client_id"), ClientSecret: r.FormValue("client_secret")}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// baseURL is the externally visible origin of the request
func baseURL(r *http.Request) string {
	return getScheme(r) + "://" + r.Host
}
