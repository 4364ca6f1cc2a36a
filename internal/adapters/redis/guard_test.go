package redisad_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisad "costamar_booking/internal/adapters/redis"
	"costamar_booking/internal/domain"
)

func newGuard(t *testing.T) (*redisad.Guard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return redisad.NewWithClient(c, 5*time.Minute), mr
}

func TestGuard_SecondAcquireRejected(t *testing.T) {
	g, _ := newGuard(t)
	ctx := context.Background()

	release, err := g.Acquire(ctx, "573001112233")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := g.Acquire(ctx, "573001112233"); !errors.Is(err, domain.ErrDuplicateInFlight) {
		t.Fatalf("second acquire err = %v, want ErrDuplicateInFlight", err)
	}

	// another customer is unaffected
	rel2, err := g.Acquire(ctx, "573009998877")
	if err != nil {
		t.Fatalf("other customer acquire: %v", err)
	}
	rel2()

	release()
	rel3, err := g.Acquire(ctx, "573001112233")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	rel3()
}

func TestGuard_LockExpiresAfterTTL(t *testing.T) {
	g, mr := newGuard(t)
	ctx := context.Background()

	if _, err := g.Acquire(ctx, "cust"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(3 * time.Minute)

	rel, err := g.Acquire(ctx, "cust")
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	rel()
}

func TestGuard_StaleReleaseDoesNotFreeNewOwner(t *testing.T) {
	g, mr := newGuard(t)
	ctx := context.Background()

	rel1, err := g.Acquire(ctx, "cust")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(3 * time.Minute) // first lock expired

	if _, err := g.Acquire(ctx, "cust"); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}

	rel1() // token no longer matches; must be a no-op

	if _, err := g.Acquire(ctx, "cust"); !errors.Is(err, domain.ErrDuplicateInFlight) {
		t.Fatalf("lock was released by stale owner: %v", err)
	}
}

func TestGuard_ReferenceCooldown(t *testing.T) {
	g, mr := newGuard(t)
	ctx := context.Background()

	used, err := g.RecentlyUsed(ctx, "TRF-1")
	if err != nil || used {
		t.Fatalf("fresh reference: used=%v err=%v", used, err)
	}

	if err := g.MarkReference(ctx, "TRF-1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	used, err = g.RecentlyUsed(ctx, "TRF-1")
	if err != nil || !used {
		t.Fatalf("inside window: used=%v err=%v", used, err)
	}

	mr.FastForward(6 * time.Minute)
	used, err = g.RecentlyUsed(ctx, "TRF-1")
	if err != nil || used {
		t.Fatalf("after window: used=%v err=%v", used, err)
	}
}
