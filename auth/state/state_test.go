package state

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/gustavlms/gustav/redis"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mini := miniredis.RunT(t)
	client, err := redis.New(redis.Config{Addr: mini.Addr()}, nil)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client),
	}
}

func TestStore_CreateAndPop(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec, err := store.Create(ctx, "verifier", WithRedirect("/courses/7"), WithNonce("n1"))
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			raw, err := base64.RawURLEncoding.DecodeString(rec.State)
			if err != nil || len(raw) != 32 {
				t.Errorf("expected 32 random bytes base64url, got %q (%v)", rec.State, err)
			}
			if rec.AttemptID == "" {
				t.Error("expected attempt id")
			}

			got, err := store.PopValid(ctx, rec.State)
			if err != nil {
				t.Fatalf("PopValid failed: %v", err)
			}
			if got == nil {
				t.Fatal("expected record")
			}
			if got.CodeVerifier != "verifier" || got.Redirect != "/courses/7" || got.Nonce != "n1" {
				t.Errorf("unexpected record %+v", got)
			}

			again, err := store.PopValid(ctx, rec.State)
			if err != nil || again != nil {
				t.Errorf("state must be redeemable once, got %+v, err %v", again, err)
			}
		})
	}
}

func TestStore_UnknownState(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, s := range []string{"", "does-not-exist"} {
				got, err := store.PopValid(context.Background(), s)
				if err != nil || got != nil {
					t.Errorf("PopValid(%q): expected (nil, nil), got %+v, %v", s, got, err)
				}
			}
		})
	}
}

func TestStore_NonPositiveTTL(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, ttl := range []time.Duration{0, -time.Second} {
				rec, err := store.Create(ctx, "v", WithTTL(ttl))
				if err != nil {
					t.Fatalf("Create failed: %v", err)
				}
				got, err := store.PopValid(ctx, rec.State)
				if err != nil || got != nil {
					t.Errorf("ttl %v: expected expired record to be refused, got %+v", ttl, got)
				}
			}
		})
	}
}

func TestStore_ConcurrentPop(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec, err := store.Create(ctx, "v")
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if got, err := store.PopValid(ctx, rec.State); err == nil && got != nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			if wins.Load() != 1 {
				t.Fatalf("expected exactly one redemption, got %d", wins.Load())
			}
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	store := NewMemoryStore(WithClock(clock))
	ctx := context.Background()

	rec, _ := store.Create(ctx, "v", WithTTL(time.Minute))
	advance(time.Minute)

	got, err := store.PopValid(ctx, rec.State)
	if err != nil || got != nil {
		t.Fatalf("expected expired record to be refused, got %+v", got)
	}
	if store.Len() != 0 {
		t.Errorf("expired record should be removed, %d left", store.Len())
	}

	_, _ = store.Create(ctx, "v", WithTTL(time.Second))
	advance(2 * time.Second)
	_, _ = store.Create(ctx, "v")
	if store.Len() != 1 {
		t.Errorf("expected Create to purge expired records, %d left", store.Len())
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	mini := miniredis.RunT(t)
	client, err := redis.New(redis.Config{Addr: mini.Addr()}, nil)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()

	rec, err := store.Create(ctx, "v", WithTTL(10*time.Second))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !mini.Exists("gustav:auth:state:" + rec.State) {
		t.Fatal("expected record under gustav:auth:state:<state>")
	}
	if ttl := mini.TTL("gustav:auth:state:" + rec.State); ttl != 10*time.Second {
		t.Errorf("expected 10s TTL, got %v", ttl)
	}

	mini.FastForward(11 * time.Second)
	got, err := store.PopValid(ctx, rec.State)
	if err != nil || got != nil {
		t.Errorf("expected expired record to be gone, got %+v, err %v", got, err)
	}
}
