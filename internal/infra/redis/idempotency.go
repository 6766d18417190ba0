package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"payment-platform/internal/domain"
)

// IdempotencyGuard is the fast-path duplicate filter for webhook events. A
// SETNX reservation keeps concurrent deliveries of the same event from both
// reaching the handler; the database dedup ledger stays authoritative, so a
// lost Redis key only costs an extra trip to the unique constraint.
type IdempotencyGuard interface {
	// Reserve claims the key for this delivery. Returns domain.ErrAlreadyExists
	// when another delivery holds or completed it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	// Release frees the reservation so a failed handling can be retried.
	// Only the holder's token can release.
	Release(ctx context.Context, key, token string) error
}

type redisIdempotencyGuard struct {
	cli *Client
}

var _ IdempotencyGuard = (*redisIdempotencyGuard)(nil)

func NewIdempotencyGuard(c *Client) *redisIdempotencyGuard {
	return &redisIdempotencyGuard{cli: c}
}

func reservationKey(key string) string {
	return fmt.Sprintf("webhook:dedup:%s", key)
}

func (g *redisIdempotencyGuard) Reserve(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := g.cli.SetNX(ctx, reservationKey(key), token, ttl)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrAlreadyExists
	}
	return token, nil
}

var luaRelease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (g *redisIdempotencyGuard) Release(ctx context.Context, key, token string) error {
	_, err := g.cli.Eval(ctx, luaRelease, []string{reservationKey(key)}, token)
	return err
}
