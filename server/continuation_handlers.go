package server

import (
	"net/http"

	"github.com/jrsteele09/go-identity-core/auth"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
)

// Continue resumes a login parked by a post-login detour (GET /u/continue)
func (s *Server) Continue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			s.renderError(w, err)
			return
		}
		state := r.URL.Query().Get("state")
		if state == "" {
			s.renderError(w, apperrors.InvalidRequest("Missing state"))
			return
		}

		res, err := s.auth.Continue(r.Context(), tenant.ID, state, r.URL.Query().Get("scope"), requestInfo(r))
		if err != nil {
			s.renderError(w, err)
			return
		}
		s.writeResult(w, r, tenant, res)
	}
}

// ConfirmEmailChange shows the email confirmation page. Reloading it never
// changes the login session.
func (s *Server) ConfirmEmailChange() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			s.renderError(w, err)
			return
		}
		page, err := s.auth.ConfirmationView(r.Context(), tenant.ID, r.URL.Query().Get("state"))
		if err != nil {
			s.renderError(w, err)
			return
		}
		s.render(w, http.StatusOK, "confirm_email_change.html", page)
	}
}

// Form shows the form a post-login hook prompted for (GET /u/forms/{formID})
func (s *Server) Form() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			s.renderError(w, err)
			return
		}
		page, err := s.auth.ContinuationView(r.Context(), tenant.ID, r.URL.Query().Get("state"), auth.ScopeForms)
		if err != nil {
			s.renderError(w, err)
			return
		}
		s.render(w, http.StatusOK, "form.html", struct {
			*auth.ContinuationPage
			FormID string
		}{ContinuationPage: page, FormID: r.PathValue("formID")})
	}
}

type impersonatePageData struct {
	*auth.ImpersonationPage
	State string
}

// ImpersonatePage lists the users an operator may continue as (GET /u/impersonate)
func (s *Server) ImpersonatePage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			s.renderError(w, err)
			return
		}
		state := r.URL.Query().Get("state")
		page, err := s.auth.ImpersonationView(r.Context(), tenant.ID, state)
		if err != nil {
			s.renderError(w, err)
			return
		}
		s.render(w, http.StatusOK, "impersonate.html", impersonatePageData{ImpersonationPage: page, State: state})
	}
}

// ImpersonateSwitch completes the login as the selected user (POST /u/impersonate/switch)
func (s *Server) ImpersonateSwitch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			s.renderError(w, err)
			return
		}
		if err := r.ParseForm(); err != nil {
			s.renderError(w, apperrors.InvalidRequest("Invalid form data"))
			return
		}
		state, target := continuationState(r), r.PostFormValue("user_id")
		if state == "" || target == "" {
			s.renderError(w, apperrors.InvalidRequest("Missing state or user_id"))
			return
		}

		res, err := s.auth.SwitchImpersonation(r.Context(), tenant.ID, state, target, requestInfo(r))
		if err != nil {
			s.renderError(w, err)
			return
		}
		s.writeResult(w, r, tenant, res)
	}
}

// ImpersonateContinue completes the login as the operator (POST /u/impersonate/continue)
func (s *Server) ImpersonateContinue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			s.renderError(w, err)
			return
		}
		if err := r.ParseForm(); err != nil {
			s.renderError(w, apperrors.InvalidRequest("Invalid form data"))
			return
		}
		res, err := s.auth.ContinueImpersonation(r.Context(), tenant.ID, continuationState(r), requestInfo(r))
		if err != nil {
			s.renderError(w, err)
			return
		}
		s.writeResult(w, r, tenant, res)
	}
}

// continuationState reads the login session id from the state query parameter,
// falling back to the hidden form field the pages post.
func continuationState(r *http.Request) string {
	if state := r.URL.Query().Get("state"); state != "" {
		return state
	}
	return r.PostFormValue("state")
}
