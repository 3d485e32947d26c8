package itf

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dr1DeX/orgtree/pkg/configuration"
)

func CanDialRedis() bool {
	addr := configuration.Use().RedisURL
	if addr == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// NewRedisClient returns a client for REDIS_URL and deletes the given keys
// before and after the test. It skips when Redis is unreachable outside CI.
func NewRedisClient(tb testing.TB, keys ...string) *redis.Client {
	tb.Helper()

	if !CanDialRedis() {
		if OnCI() {
			tb.Fatalf("redis is not reachable at %s", configuration.Use().RedisURL)
		}
		tb.Skip("redis is not reachable; skipping integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: configuration.Use().RedisURL})
	cleanup := func() {
		if len(keys) > 0 {
			_ = client.Del(context.Background(), keys...).Err()
		}
	}
	cleanup()
	tb.Cleanup(func() {
		cleanup()
		_ = client.Close()
	})
	return client
}
