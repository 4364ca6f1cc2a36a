package redisad

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"costamar_booking/internal/adapters/observability"
	"costamar_booking/internal/domain"
)

// Guard keeps booking attempts honest across process instances: a keyed
// per-customer lock covering the reserve..commit window, and a cooldown
// marker on payment references so a replayed reference short-circuits to
// the idempotent already-booked answer. Both live in Redis rather than
// process-local maps so correctness holds when more than one instance
// runs.
type Guard struct {
	c        *redis.Client
	lockTTL  time.Duration
	cooldown time.Duration
}

func New(addr, pass string, db int, cooldown time.Duration) *Guard {
	return &Guard{
		c:        redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
		lockTTL:  2 * time.Minute,
		cooldown: cooldown,
	}
}

// NewWithClient is for tests (miniredis).
func NewWithClient(c *redis.Client, cooldown time.Duration) *Guard {
	return &Guard{c: c, lockTTL: 2 * time.Minute, cooldown: cooldown}
}

// releaseScript deletes the lock only when the caller still owns it, so a
// lock that expired and was re-taken by another attempt is never released
// out from under the new owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the customer's exclusive section. The TTL is a crash
// backstop: a process that dies mid-booking frees the customer within
// lockTTL instead of wedging them forever.
func (g *Guard) Acquire(ctx context.Context, customerKey string) (func(), error) {
	key := "booking:lock:" + customerKey
	token := uuid.NewString()
	ok, err := g.c.SetNX(ctx, key, token, g.lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		observability.ObserveGuard("lock", "busy")
		return nil, domain.ErrDuplicateInFlight
	}
	observability.ObserveGuard("lock", "acquired")
	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, g.c, []string{key}, token).Err()
	}, nil
}

// RecentlyUsed reports whether the payment reference was marked within
// the cooldown window. Expiry is the lazy eviction.
func (g *Guard) RecentlyUsed(ctx context.Context, ref string) (bool, error) {
	_, err := g.c.Get(ctx, "booking:ref:"+ref).Result()
	if errors.Is(err, redis.Nil) {
		observability.ObserveGuard("cooldown", "miss")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	observability.ObserveGuard("cooldown", "hit")
	return true, nil
}

func (g *Guard) MarkReference(ctx context.Context, ref string) error {
	observability.ObserveGuard("cooldown", "mark")
	return g.c.Set(ctx, "booking:ref:"+ref, time.Now().UTC().Format(time.RFC3339), g.cooldown).Err()
}
