package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedisClient struct {
	mu      sync.Mutex
	values  map[string][]byte
	ttls    map[string]time.Duration
	failGet error
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{
		values: make(map[string][]byte),
		ttls:   make(map[string]time.Duration),
	}
}

func (c *fakeRedisClient) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failGet != nil {
		return redis.NewStringResult("", c.failGet)
	}
	value, ok := c.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(value), nil)
}

func (c *fakeRedisClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch typed := value.(type) {
	case []byte:
		c.values[key] = append([]byte(nil), typed...)
	case string:
		c.values[key] = []byte(typed)
	default:
		return redis.NewStatusResult("", errors.New("unsupported value type"))
	}
	c.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeRedisClient()
	c := newRedisCacheFromCommander(client, nil, RedisCacheConfig{Namespace: "team", TTL: 6 * time.Hour})

	if _, ok, err := c.Get(ctx, "issue:42:7:2024-01-01T00:00:00Z"); ok || err != nil {
		t.Fatalf("Get() before Set = %t, %v, want miss", ok, err)
	}
	if err := c.Set(ctx, "issue:42:7:2024-01-01T00:00:00Z", []byte(`{"reopened":"Yes"}`)); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}
	value, ok, err := c.Get(ctx, "issue:42:7:2024-01-01T00:00:00Z")
	if err != nil || !ok || string(value) != `{"reopened":"Yes"}` {
		t.Fatalf("Get() = %q, %t, %v", value, ok, err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.values) != 1 {
		t.Fatalf("stored keys = %d, want 1", len(client.values))
	}
	for key := range client.values {
		if !strings.HasPrefix(key, "team:enrich:") {
			t.Fatalf("key %q missing namespace prefix", key)
		}
		if client.ttls[key] != 6*time.Hour {
			t.Fatalf("ttl = %s, want 6h", client.ttls[key])
		}
	}
}

func TestRedisCacheSurfacesErrors(t *testing.T) {
	t.Parallel()

	client := newFakeRedisClient()
	client.failGet = errors.New("connection refused")
	c := newRedisCacheFromCommander(client, nil, RedisCacheConfig{})

	if _, _, err := c.Get(context.Background(), "k"); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Get() error = %v, want connection refused", err)
	}

	var uninitialized *RedisCache
	if err := uninitialized.Set(context.Background(), "k", nil); err == nil {
		t.Fatalf("Set() on nil cache expected error")
	}
	if err := uninitialized.Close(); err != nil {
		t.Fatalf("Close() on nil cache unexpected error: %v", err)
	}
}
