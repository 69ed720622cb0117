package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockNotAcquired is returned when the lock could not be taken before
// the context ended.
var ErrLockNotAcquired = errors.New("cache: subscription lock not acquired")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 50 * time.Millisecond
	lockKeyPrefix    = "billing:lock:subscription:"
)

// RedisLocker implements billing.SubscriptionLocker with SET NX PX.
// The TTL bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

var _ billing.SubscriptionLocker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker over an existing client. A zero ttl
// uses 30s.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, retry: defaultLockRetry, logger: logger}
}

// Lock blocks until the subscription lock is held or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, subscriptionID uuid.UUID) (func(), error) {
	key := lockKeyPrefix + subscriptionID.String()
	token, err := newLockToken()
	if err != nil {
		return func() {}, err
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return func() {}, fmt.Errorf("%w: %v", ErrLockNotAcquired, ctx.Err())
			}
			return func() {}, fmt.Errorf("failed to acquire subscription lock: %w", err)
		}
		if ok {
			return l.releaser(key, token), nil
		}
		select {
		case <-ctx.Done():
			return func() {}, fmt.Errorf("%w: %v", ErrLockNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) releaser(key, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release subscription lock", zap.String("key", key), zap.Error(err))
		}
	}
}

func newLockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
