package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-identity-core/auth"
	"github.com/jrsteele09/go-identity-core/grants"
	"github.com/jrsteele09/go-identity-core/internal/config"
	"github.com/jrsteele09/go-identity-core/internal/metrics"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Deps are the services the HTTP layer drives
type Deps struct {
	Auth    *auth.AuthorizationService
	Grants  *grants.Service
	Tokens  *token.Manager
	Tenants tenants.Repo

	// Metrics is optional. Without it /metrics is not served and requests are
	// not counted.
	Metrics *metrics.Metrics
}

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	auth      *auth.AuthorizationService
	grants    *grants.Service
	tokens    *token.Manager
	tenants   tenants.Repo
	metrics   *metrics.Metrics
	limiter   *ipRateLimiter
	templates *template.Template
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("[server.New] config is required")
	case deps.Auth == nil:
		return nil, errors.New("[server.New] authorization service is required")
	case deps.Grants == nil:
		return nil, errors.New("[server.New] grant service is required")
	case deps.Tokens == nil:
		return nil, errors.New("[server.New] token manager is required")
	case deps.Tenants == nil:
		return nil, errors.New("[server.New] tenant repo is required")
	}

	templates, err := ParseTemplates()
	if err != nil {
		return nil, errors.Wrap(err, "[server.New] templates")
	}

	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		auth:      deps.Auth,
		grants:    deps.Grants,
		tokens:    deps.Tokens,
		tenants:   deps.Tenants,
		metrics:   deps.Metrics,
		templates: templates,
	}
	if cfg.GetEnableRateLimiting() {
		s.limiter = newIPRateLimiter(cfg.GetTokenRateLimit(), cfg.GetTokenRateBurst())
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != config.EnvDev {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		log.Debug().Msg(fmt.Sprintf("[%s] %s", colouredMethod(method), path))
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
