package main

import (
	"context"

	"github.com/jrsteele09/go-identity-core/audit"
	fakeclientrepo "github.com/jrsteele09/go-identity-core/clients/fakerepo"
	"github.com/jrsteele09/go-identity-core/codes"
	fakecoderepo "github.com/jrsteele09/go-identity-core/codes/repofake"
	connfake "github.com/jrsteele09/go-identity-core/connections/repofake"
	hookfake "github.com/jrsteele09/go-identity-core/hooks/repofake"
	"github.com/jrsteele09/go-identity-core/internal/config"
	"github.com/jrsteele09/go-identity-core/loginsession"
	lsfake "github.com/jrsteele09/go-identity-core/loginsession/repofake"
	rbacfake "github.com/jrsteele09/go-identity-core/rbac/repofake"
	rsfake "github.com/jrsteele09/go-identity-core/resourceservers/repofake"
	"github.com/jrsteele09/go-identity-core/server"
	"github.com/jrsteele09/go-identity-core/sessions"
	fakesessionrepo "github.com/jrsteele09/go-identity-core/sessions/repofake"
	"github.com/jrsteele09/go-identity-core/storage/redis"
	"github.com/jrsteele09/go-identity-core/storage/sqlite"
	tenantrepofakes "github.com/jrsteele09/go-identity-core/tenants/repofakes"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/jrsteele09/go-identity-core/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-identity-core/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/go-identity-core/users/repofake"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// stores is every repository the services need, picked by STORAGE_DRIVER.
// Tenant configuration (clients, RBAC, hooks...) is always in memory and is
// reloaded from the seed file on start.
type stores struct {
	server.Repos

	Codes         codes.Repo
	LoginSessions loginsession.Repo
	Sessions      sessions.Repo
	Refresh       refresh.Repo
	Revoked       token.RevokedTokenCache
	AuditSink     audit.Sink

	closers []func() error
}

func (s *stores) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Err(err).Msg("failed to close store")
		}
	}
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	s := &stores{
		Repos: server.Repos{
			Tenants:         tenantrepofakes.NewFakeTenantRepo(),
			Clients:         fakeclientrepo.NewFakeClientRepo(),
			ClientGrants:    fakeclientrepo.NewFakeGrantRepo(),
			ResourceServers: rsfake.NewFakeResourceServerRepo(),
			RBAC:            rbacfake.NewFakeRBACRepo(),
			Connections:     connfake.NewFakeConnectionRepo(),
			Hooks:           hookfake.NewFakeTemplateRepo(),
		},
	}

	driver := cfg.GetStorageDriver()
	switch driver {
	case config.StorageMemory:
		s.useMemory()
	case config.StorageSQLite:
		if err := s.useSQLite(cfg.GetSQLitePath()); err != nil {
			return nil, err
		}
	case config.StorageRedis:
		// Redis only holds the short-lived flow state, durable records stay in SQLite.
		if err := s.useSQLite(cfg.GetSQLitePath()); err != nil {
			return nil, err
		}
		if err := s.useRedis(ctx, cfg.GetRedisAddr(), cfg.GetRedisKeyPrefix()); err != nil {
			s.Close()
			return nil, err
		}
	default:
		return nil, errors.Errorf("[openStores] unknown storage driver %q", driver)
	}
	log.Info().Str("driver", string(driver)).Msg("storage ready")
	return s, nil
}

func (s *stores) useMemory() {
	s.Users = fakeuserrepo.NewFakeUserRepo()
	s.Codes = fakecoderepo.NewFakeCodeRepo()
	s.LoginSessions = lsfake.NewFakeLoginSessionRepo()
	s.Sessions = fakesessionrepo.NewFakeSessionRepo()
	s.Refresh = refreshrepofake.NewFakeRefreshTokenRepo()
	s.Revoked = token.NewInMemoryRevokedTokenCache()
	s.AuditSink = audit.NewZerologSink(log.Logger)
}

func (s *stores) useSQLite(path string) error {
	db, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, db.Close)
	s.Users = db.Users()
	s.Codes = db.Codes()
	s.LoginSessions = db.LoginSessions()
	s.Sessions = db.Sessions()
	s.Refresh = db.RefreshTokens()
	s.Revoked = token.NewInMemoryRevokedTokenCache()
	s.AuditSink = db.AuditSink()
	return nil
}

func (s *stores) useRedis(ctx context.Context, addr, prefix string) error {
	rdb, err := redis.Open(ctx, addr, prefix)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, rdb.Close)
	s.Codes = rdb.Codes()
	s.LoginSessions = rdb.LoginSessions()
	s.Revoked = rdb.RevokedTokens()
	return nil
}
