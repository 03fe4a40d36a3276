package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"tg-channel-speckit/internal/domain"
)

func TestRedisCacheSetGet(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR is not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, addr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	c := NewRedis(client, "test:"+t.Name()+":")
	if _, err := c.Get(ctx, "missing"); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := c.Set(ctx, "key", []byte("value"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, "key")
	if err != nil || string(got) != "value" {
		t.Fatalf("unexpected get: %q, %v", got, err)
	}
	if ttl := client.TTL(ctx, "test:"+t.Name()+":key").Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, "key"); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("expected cache miss after delete, got %v", err)
	}
}
