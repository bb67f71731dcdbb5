package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList records session tokens that were logged out before their
// expiry. Tokens are identified by their jti claim.
//
// Without a RevocationList, logout only deletes the cookie and a copied
// token stays valid until it expires.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevocationList stores revoked token IDs as Redis keys that expire
// together with the token, so the list never outgrows the live sessions.
type RedisRevocationList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocationList creates a revocation list using keys prefix+jti.
func NewRedisRevocationList(client *redis.Client, prefix string) *RedisRevocationList {
	return &RedisRevocationList{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Revoke marks tokenID as revoked until the given time. Tokens already
// past expiry need no entry.
func (l *RedisRevocationList) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return fmt.Errorf("%w: missing token id", ErrTokenInvalid)
	}
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.prefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID has been revoked.
func (l *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return n > 0, nil
}
