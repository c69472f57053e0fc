package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

// exclusivity runs against any Locker.
func exclusivity(t *testing.T, a, b Locker) {
	t.Helper()
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "doc-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = b.Acquire(ctx, "doc-1", time.Minute)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("expected second acquire of the same name to fail")
	}

	ok, err = b.Acquire(ctx, "doc-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("other document should be independent: ok=%v err=%v", ok, err)
	}

	if err := a.Release(ctx, "doc-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = b.Acquire(ctx, "doc-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestLocal_Exclusivity(t *testing.T) {
	l := NewLocal()
	exclusivity(t, l, l)
}

func TestLocal_Expiry(t *testing.T) {
	l := NewLocal()
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Acquire(ctx, "doc", time.Second)
	now = now.Add(2 * time.Second)
	if ok, _ := l.Acquire(ctx, "doc", time.Second); !ok {
		t.Error("expected expired lock to be acquirable")
	}
}

func TestLocal_ConcurrentAcquire(t *testing.T) {
	l := NewLocal()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Acquire(context.Background(), "doc", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestLocal_ExtendNotHeld(t *testing.T) {
	if err := NewLocal().Extend(context.Background(), "doc", time.Second); !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld, got %v", err)
	}
}

func TestRedis_Exclusivity(t *testing.T) {
	_, client := setupTestRedis(t)
	// Two instances sharing one server.
	exclusivity(t, NewRedis(client), NewRedis(client))
}

func TestRedis_ReleaseOnlyOwn(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewRedis(client), NewRedis(client)

	if ok, _ := a.Acquire(ctx, "doc", time.Minute); !ok {
		t.Fatal("expected acquire")
	}
	if err := b.Release(ctx, "doc"); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if !mr.Exists(keyPrefix + "doc") {
		t.Error("non-owner release must not delete the lock")
	}
	if got, _ := mr.Get(keyPrefix + "doc"); got != a.OwnerID() {
		t.Errorf("expected owner %q, got %q", a.OwnerID(), got)
	}
}

func TestRedis_TTLAndExtend(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	l := NewRedis(client)

	l.Acquire(ctx, "doc", time.Second)
	if err := l.Extend(ctx, "doc", time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if ttl := mr.TTL(keyPrefix + "doc"); ttl != time.Minute {
		t.Errorf("expected TTL 1m, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.Extend(ctx, "doc", time.Minute); !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld after expiry, got %v", err)
	}
	if ok, _ := NewRedis(client).Acquire(ctx, "doc", time.Minute); !ok {
		t.Error("expected expired lock to be acquirable")
	}
}

func TestRedis_OwnerIDUnique(t *testing.T) {
	_, client := setupTestRedis(t)
	a, b := NewRedis(client).OwnerID(), NewRedis(client).OwnerID()
	if a == b {
		t.Error("expected unique owner ids")
	}
	id := a[strings.LastIndex(a, ":")+1:]
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("owner id %q does not end in a uuid: %v", a, err)
	}
}

func TestOpen(t *testing.T) {
	mr, _ := setupTestRedis(t)
	r, err := Open(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	if _, err := Open(context.Background(), "not a url"); err == nil {
		t.Error("expected error for bad url")
	}
}
