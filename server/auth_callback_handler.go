package server

import (
	"net/http"

	"github.com/jrsteele09/go-identity-core/auth"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
)

// SocialCallback receives the upstream provider's redirect (GET /login/callback)
func (s *Server) SocialCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			s.renderError(w, err)
			return
		}

		query := r.URL.Query()
		state := query.Get("state")
		if state == "" {
			s.renderError(w, apperrors.InvalidRequest("Missing state parameter"))
			return
		}
		if query.Get("code") == "" && query.Get("error") == "" {
			s.renderError(w, apperrors.InvalidRequest("Missing code parameter"))
			return
		}

		res, err := s.auth.SocialCallback(r.Context(), auth.SocialCallbackRequest{
			TenantID: tenant.ID,
			State:    state,
			Code:     query.Get("code"),
			Error:    query.Get("error"),
			Info:     requestInfo(r),
		})
		if err != nil {
			s.renderError(w, err)
			return
		}
		s.writeResult(w, r, tenant, res)
	}
}
