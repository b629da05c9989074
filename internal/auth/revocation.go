package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker remembers, per user, the moment before which issued tokens are no
// longer accepted.
type Revoker interface {
	Revoke(ctx context.Context, userID uint, at time.Time) error
	RevokedAt(ctx context.Context, userID uint) (time.Time, error)
}

// IsRevoked reports whether a token issued at iat predates the user's last
// revocation. Token timestamps have second precision, so a token issued in
// the same second as the revocation is treated as revoked.
func IsRevoked(ctx context.Context, r Revoker, userID uint, iat time.Time) (bool, error) {
	at, err := r.RevokedAt(ctx, userID)
	if err != nil {
		return false, err
	}
	if at.IsZero() {
		return false, nil
	}
	return iat.Unix() <= at.Unix(), nil
}

type MemoryRevoker struct {
	mu sync.RWMutex
	at map[uint]time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{at: make(map[uint]time.Time)}
}

func (m *MemoryRevoker) Revoke(_ context.Context, userID uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.at[userID] = at
	return nil
}

func (m *MemoryRevoker) RevokedAt(_ context.Context, userID uint) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.at[userID], nil
}

// RedisRevoker shares revocations between server instances. Entries expire
// after the token lifetime, when every older token has expired anyway.
type RedisRevoker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRevoker(rdb *redis.Client, tokenTTL time.Duration) *RedisRevoker {
	return &RedisRevoker{rdb: rdb, ttl: tokenTTL}
}

func revokedKey(userID uint) string { return fmt.Sprintf("gestionmatos:auth:revoked:%d", userID) }

func (r *RedisRevoker) Revoke(ctx context.Context, userID uint, at time.Time) error {
	return r.rdb.Set(ctx, revokedKey(userID), at.Unix(), r.ttl).Err()
}

func (r *RedisRevoker) RevokedAt(ctx context.Context, userID uint) (time.Time, error) {
	sec, err := r.rdb.Get(ctx, revokedKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}
