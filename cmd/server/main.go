package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-identity-core/audit"
	"github.com/jrsteele09/go-identity-core/auth"
	"github.com/jrsteele09/go-identity-core/connections"
	"github.com/jrsteele09/go-identity-core/grants"
	"github.com/jrsteele09/go-identity-core/hooks"
	"github.com/jrsteele09/go-identity-core/internal/config"
	"github.com/jrsteele09/go-identity-core/internal/metrics"
	"github.com/jrsteele09/go-identity-core/loginsession"
	"github.com/jrsteele09/go-identity-core/scopes"
	"github.com/jrsteele09/go-identity-core/server"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/jrsteele09/go-identity-core/token/refresh"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const signingKeyID = "default"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped with an error")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx := context.Background()
	st, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()
	auditLogger, err := audit.NewLogger(st.AuditSink,
		audit.WithBufferSize(c.GetAuditBufferSize()),
		audit.WithRecorder(m),
	)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := auditLogger.Shutdown(shutdownCtx); err != nil {
			log.Err(err).Msg("audit logger did not drain")
		}
	}()

	if err := server.Bootstrap(ctx, c, st.Repos); err != nil {
		return err
	}

	deps, err := buildServices(c, st, auditLogger, m)
	if err != nil {
		return err
	}
	handler, err := server.New(c, deps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func buildServices(c config.Config, st *stores, auditLogger *audit.Logger, m *metrics.Metrics) (server.Deps, error) {
	signer, err := token.NewSigner(c.GetSigningAlgorithm(), signingKeyID, c.GetSigningSecret())
	if err != nil {
		return server.Deps{}, err
	}
	tokens, err := token.NewManager(st.Tenants, signer,
		token.WithTokenExpiry(c.GetDefaultAccessTokenExpiry(), c.GetDefaultIDTokenExpiry()),
		token.WithRevokedTokenCache(st.Revoked),
	)
	if err != nil {
		return server.Deps{}, err
	}
	refreshManager, err := refresh.NewManager(st.Refresh, c)
	if err != nil {
		return server.Deps{}, err
	}
	machine, err := loginsession.NewMachine(st.LoginSessions, loginsession.WithTTL(c.GetLoginSessionTTL()))
	if err != nil {
		return server.Deps{}, err
	}
	resolver, err := scopes.NewResolver(scopes.Repos{
		Tenants:         st.Tenants,
		ResourceServers: st.ResourceServers,
		ClientGrants:    st.ClientGrants,
		RBAC:            st.RBAC,
	})
	if err != nil {
		return server.Deps{}, err
	}

	pipeline, err := hooks.NewPipeline(hooks.NewRegistry(), st.Hooks, st.Users,
		hooks.WithUsernameAllocator(hooks.NewUsernameAllocator(st.Users, c.GetUsernameMaxRetries())),
		hooks.WithServiceTokens(tokens),
		hooks.WithRedirectSecret(c.GetSigningSecret()),
	)
	if err != nil {
		return server.Deps{}, err
	}
	socials, err := connections.NewRegistry(st.Connections)
	if err != nil {
		return server.Deps{}, err
	}

	grantService, err := grants.NewService(grants.Deps{
		Tenants:            st.Tenants,
		Clients:            st.Clients,
		Users:              st.Users,
		Codes:              st.Codes,
		LoginSessions:      machine,
		Resolver:           resolver,
		Hooks:              pipeline,
		Tokens:             tokens,
		Refresh:            refreshManager,
		Audit:              auditLogger,
		Metrics:            m,
		ManagementAudience: c.GetManagementAudience(),
	})
	if err != nil {
		return server.Deps{}, err
	}

	authService, err := auth.NewAuthorizationService(auth.Deps{
		Tenants:       st.Tenants,
		Clients:       st.Clients,
		Users:         st.Users,
		Codes:         st.Codes,
		Sessions:      st.Sessions,
		LoginSessions: machine,
		Grants:        grantService,
		Tokens:        tokens,
		Refresh:       refreshManager,
		Audit:         auditLogger,
		Config:        c,
		Hooks:         pipeline,
		Connections:   socials,
		Metrics:       m,
		RequirePKCE:   c.GetRequirePKCE(),
	})
	if err != nil {
		return server.Deps{}, err
	}

	return server.Deps{
		Auth:    authService,
		Grants:  grantService,
		Tokens:  tokens,
		Tenants: st.Tenants,
		Metrics: m,
	}, nil
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if c.GetEnv() == config.EnvDev {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
