package server

import (
	"net/http"

	"github.com/jrsteele09/go-identity-core/auth"
)

// Logout ends the browser session (GET /v2/logout). Without a returnTo the
// response is a plain 200 "OK".
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			s.renderError(w, err)
			return
		}

		query := r.URL.Query()
		res, err := s.auth.Logout(r.Context(), auth.LogoutRequest{
			TenantID:  tenant.ID,
			ClientID:  query.Get("client_id"),
			ReturnTo:  query.Get("returnTo"),
			SessionID: sessionIDFromCookie(r, tenant.ID),
			Info:      requestInfo(r),
		})
		if err != nil {
			s.renderError(w, err)
			return
		}

		clearAuthCookie(w, tenant.ID)
		if res.ReturnTo != "" {
			http.Redirect(w, r, res.ReturnTo, http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
