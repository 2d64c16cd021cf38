package server

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-identity-core/auth"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/oauth2"
	"github.com/jrsteele09/go-identity-core/oauthmodel"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/pkg/errors"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	TenantName string
	State      string // login session id, posted back with the form
	Username   string
	Error      string
}

// Authorize begins the authorization flow (GET /authorize)
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Context(), r)
		if err != nil {
			s.renderError(w, err)
			return
		}

		res, err := s.auth.Authorize(r.Context(), auth.AuthorizeRequest{
			Params:            oauthmodel.ParseAuthorizationParameters(tenant.ID, r.URL.Query()),
			SessionID:         sessionIDFromCookie(r, tenant.ID),
			Info:              requestInfo(r),
			SocialCallbackURL: baseURL(r) + RouteSocialCallback,
		})
		if err != nil {
			s.renderError(w, err)
			return
		}
		s.writeResult(w, r, tenant, res)
	}
}

// LoginSubmission checks the username and password posted from the login page (POST /u/login)
func (s *Server) LoginSubmission() http.HandlerFunc {
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

		state := r.PostFormValue("state")
		username := r.PostFormValue("username")
		password := r.PostFormValue("password")
		if state == "" {
			s.renderError(w, apperrors.InvalidRequest("Missing state"))
			return
		}
		page := LoginPageData{TenantName: tenantName(tenant), State: state, Username: username}
		if username == "" || password == "" {
			page.Error = "Username and password are required"
			s.render(w, http.StatusBadRequest, "login.html", page)
			return
		}

		res, err := s.auth.Login(r.Context(), auth.LoginRequest{
			TenantID: tenant.ID,
			State:    state,
			Username: username,
			Password: password,
			Info:     requestInfo(r),
		})
		if err != nil {
			// credential failures keep the session pending, so show the form again
			if httpErr, ok := apperrors.AsHTTPError(err); ok && httpErr.Code != apperrors.CodeInvalidRequest {
				page.Error = httpErr.Description
				s.render(w, httpErr.Status, "login.html", page)
				return
			}
			s.renderError(w, err)
			return
		}
		s.writeResult(w, r, tenant, res)
	}
}

// writeResult turns one step of the browser flow into a response.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, tenant *tenants.Tenant, res *auth.Result) {
	if res.SessionID != "" {
		s.setAuthCookie(w, tenant.ID, res.SessionID)
	}

	switch res.Kind {
	case auth.ResultLoginPage:
		s.render(w, http.StatusOK, "login.html", LoginPageData{
			TenantName: tenantName(tenant),
			State:      res.LoginSession.ID,
			Username:   res.LoginSession.AuthParams.Username,
		})
	case auth.ResultRedirect:
		http.Redirect(w, r, res.Location, http.StatusFound)
	case auth.ResultCallback:
		if err := s.callbackRedirect(w, r, res.Callback); err != nil {
			s.renderError(w, err)
		}
	default:
		s.renderError(w, errors.Errorf("[Server.writeResult] unknown result kind %d", res.Kind))
	}
}

// callbackRedirect delivers the authorization response to the client's
// redirect URI using the response mode (query, fragment, or form_post).
func (s *Server) callbackRedirect(w http.ResponseWriter, r *http.Request, cb *auth.CallbackResponse) error {
	u, err := url.Parse(cb.RedirectURI)
	if err != nil {
		return apperrors.InvalidRequest("Invalid redirect_uri").WithCause(err)
	}

	switch cb.ResponseMode {
	case oauth2.FragmentResponseMode:
		u.Fragment = cb.Params.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)

	case oauth2.FormPostResponseMode:
		// The page auto-submits a POST in the user's browser
		w.Header().Set("Cache-Control", "no-store")
		s.render(w, http.StatusOK, "form_post.html", struct {
			RedirectURI string
			Params      url.Values
		}{RedirectURI: u.String(), Params: cb.Params})

	default:
		q := u.Query()
		for k, v := range cb.Params {
			q[k] = v
		}
		u.RawQuery = q.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)
	}
	return nil
}

func tenantName(t *tenants.Tenant) string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}
