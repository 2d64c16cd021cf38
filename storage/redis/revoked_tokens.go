package redis

import (
	"context"
	"time"

	"github.com/jrsteele09/go-identity-core/token"
	"github.com/pkg/errors"
)

const keyTypeRevoked = "revoked_jti"

var _ token.RevokedTokenCache = (*RevokedTokenCache)(nil)

// RevokedTokenCache shares access token revocations between instances. Entries
// expire with the token they block.
type RevokedTokenCache struct {
	store *Store
}

func (c *RevokedTokenCache) Add(ctx context.Context, jti string, exp time.Time) error {
	ttl := exp.Sub(c.store.nowTime())
	if ttl <= 0 {
		return nil
	}
	return errors.Wrap(c.store.client.Set(ctx, c.store.key(keyTypeRevoked, "", jti), "1", ttl).Err(), "[RevokedTokenCache.Add]")
}

func (c *RevokedTokenCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.store.client.Exists(ctx, c.store.key(keyTypeRevoked, "", jti)).Result()
	if err != nil {
		return false, errors.Wrap(err, "[RevokedTokenCache.IsRevoked]")
	}
	return n > 0, nil
}
