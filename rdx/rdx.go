package rdx

import (
	"context"
	"log"
	"time"

	"vitrine/globals"

	"github.com/redis/go-redis/v9"
)

var Conn *redis.Client

func init() {
	Conn = redis.NewClient(&redis.Options{
		Addr:     globals.Getenv("REDIS_ADDR", "localhost:6379"),
		Password: globals.Getenv("REDIS_PASSWORD", ""),
	})

	if err := Conn.Ping(globals.Ctx).Err(); err != nil {
		log.Printf("Redis not reachable at startup: %v", err)
	}
}

// RdxSetNX acquires a key-based lock with a TTL. Returns true when acquired.
func RdxSetNX(key, value string, ttl time.Duration) (bool, error) {
	return Conn.SetNX(globals.Ctx, key, value, ttl).Result()
}

// RdxDel releases a lock (or deletes any key).
func RdxDel(key string) {
	if err := Conn.Del(globals.Ctx, key).Err(); err != nil {
		log.Printf("RdxDel: failed for key %s, err=%v", key, err)
	}
}

// RdxGet fetches a string key; empty string when missing.
func RdxGet(key string) string {
	val, err := Conn.Get(globals.Ctx, key).Result()
	if err != nil {
		return ""
	}
	return val
}

// RdxSet stores a string key without expiry.
func RdxSet(key, value string) error {
	return Conn.Set(globals.Ctx, key, value, 0).Err()
}

// Publish sends a payload to a pubsub channel.
func Publish(ctx context.Context, channel string, payload []byte) error {
	return Conn.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a pubsub subscription on a channel.
func Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return Conn.Subscribe(ctx, channel)
}
