package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// retention keeps finished records around after they expire so a replay is
// reported as used rather than unknown.
const retention = time.Hour

// Store holds the short-lived flow state in Redis: codes, login sessions and
// revoked access token ids. Every key starts with the configured prefix.
type Store struct {
	client    goredis.UniversalClient
	keyPrefix string
	nowTime   func() time.Time
}

type Option func(*Store)

func WithNowTime(now func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = now
	}
}

// Open connects to addr and verifies the connection.
func Open(ctx context.Context, addr, keyPrefix string, opts ...Option) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[redis.Open] ping")
	}
	return NewWithClient(client, keyPrefix, opts...), nil
}

// NewWithClient wraps a pre-configured client, e.g. one pointing at miniredis.
func NewWithClient(client goredis.UniversalClient, keyPrefix string, opts ...Option) *Store {
	s := &Store{client: client, keyPrefix: keyPrefix, nowTime: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Codes() *CodeRepo                 { return &CodeRepo{store: s} }
func (s *Store) LoginSessions() *LoginSessionRepo { return &LoginSessionRepo{store: s} }
func (s *Store) RevokedTokens() *RevokedTokenCache {
	return &RevokedTokenCache{store: s}
}

func (s *Store) key(kind, tenantID, id string) string {
	if tenantID == "" {
		return s.keyPrefix + kind + ":" + id
	}
	return s.keyPrefix + kind + ":" + tenantID + ":" + id
}

// ttlUntil is the key lifetime for a record expiring at expiresAt. Redis
// rejects non-positive durations on SET, so the floor is one second.
func (s *Store) ttlUntil(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.nowTime()) + retention
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func (s *Store) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}
