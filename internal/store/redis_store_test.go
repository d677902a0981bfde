package store

import (
	"context"
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type snapshot struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, NewRedisStore(rdb, ttl)
}

func TestRedisStore_SetGet_RoundTrip(t *testing.T) {
	t.Parallel()

	mr, s := newTestStore(t, 10*time.Second)
	ctx := context.Background()

	if err := s.Set(ctx, "queue:42", snapshot{Name: "a", Count: 3}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	if !mr.Exists("queue:42") {
		t.Fatalf("expected key %q to exist", "queue:42")
	}
	if ttl := mr.TTL("queue:42"); ttl <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttl)
	}

	raw, err := mr.Get("queue:42")
	if err != nil {
		t.Fatalf("failed to get key: %v", err)
	}
	var direct snapshot
	if err := json.Unmarshal([]byte(raw), &direct); err != nil {
		t.Fatalf("stored value is not json: %v", err)
	}

	var got snapshot
	found, err := s.Get(ctx, "queue:42", &got)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !found {
		t.Fatalf("expected key to be found")
	}
	if got != (snapshot{Name: "a", Count: 3}) {
		t.Fatalf("unexpected value: %+v", got)
	}
}

func TestRedisStore_Get_Missing(t *testing.T) {
	t.Parallel()

	_, s := newTestStore(t, 0)

	var got snapshot
	found, err := s.Get(context.Background(), "nope", &got)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if found {
		t.Fatalf("expected missing key to report found=false")
	}
}

func TestRedisStore_Get_CorruptValue(t *testing.T) {
	t.Parallel()

	mr, s := newTestStore(t, 0)
	if err := mr.Set("queue:bad", "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var got snapshot
	if _, err := s.Get(context.Background(), "queue:bad", &got); err == nil {
		t.Fatalf("expected decode error, got nil")
	}
}

func TestRedisStore_ZeroTTLKeepsKey(t *testing.T) {
	t.Parallel()

	mr, s := newTestStore(t, 0)
	if err := s.Set(context.Background(), "k", snapshot{}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != 0 {
		t.Fatalf("expected no TTL, got %v", ttl)
	}
}

func TestRedisStore_SetMany_WritesAllKeys(t *testing.T) {
	t.Parallel()

	mr, s := newTestStore(t, time.Minute)
	ctx := context.Background()

	err := s.SetMany(ctx, map[string]any{
		"collect:job:1":     snapshot{Name: "job"},
		"collect:profile:x": "1",
	})
	if err != nil {
		t.Fatalf("SetMany() error: %v", err)
	}

	if !mr.Exists("collect:job:1") || !mr.Exists("collect:profile:x") {
		t.Fatalf("expected both keys to exist, got %v", mr.Keys())
	}

	var id string
	found, err := s.Get(ctx, "collect:profile:x", &id)
	if err != nil || !found {
		t.Fatalf("Get() found=%v err=%v", found, err)
	}
	if id != "1" {
		t.Fatalf("expected index value %q, got %q", "1", id)
	}
}

func TestRedisStore_Del(t *testing.T) {
	t.Parallel()

	mr, s := newTestStore(t, 0)
	ctx := context.Background()

	_ = s.Set(ctx, "a", 1)
	_ = s.Set(ctx, "b", 2)

	if err := s.Del(ctx, "a", "b", "missing"); err != nil {
		t.Fatalf("Del() error: %v", err)
	}
	if mr.Exists("a") || mr.Exists("b") {
		t.Fatalf("expected keys deleted, got %v", mr.Keys())
	}
	if err := s.Del(ctx); err != nil {
		t.Fatalf("Del() with no keys error: %v", err)
	}
}

func TestRedisStore_Keys_ByPrefix(t *testing.T) {
	t.Parallel()

	_, s := newTestStore(t, 0)
	ctx := context.Background()

	for _, k := range []string{"queue:1", "queue:2", "queue*odd", "collect:job:1"} {
		if err := s.Set(ctx, k, 1); err != nil {
			t.Fatalf("Set(%s) error: %v", k, err)
		}
	}

	keys, err := s.Keys(ctx, "queue:")
	if err != nil {
		t.Fatalf("Keys() error: %v", err)
	}
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"queue:1", "queue:2"}) {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRedisStore_ContextCanceled(t *testing.T) {
	t.Parallel()

	_, s := newTestStore(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Set(ctx, "x", 1); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}
