// Package analytics keeps per-target delivery outcome counters in Redis.
// Counters live in time buckets with a TTL so the keyspace stays bounded
// without an explicit cleanup job.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/termrelay/internal/domain"
)

// Config controls bucketing and retention of outcome counters.
type Config struct {
	// Window is the bucket width. Supported: 1m, 5m, 1h.
	// Default: 1 hour.
	Window time.Duration

	// Retention is the TTL applied to each bucket key.
	// Default: 7 days.
	Retention time.Duration
}

// DefaultConfig returns the default analytics configuration.
func DefaultConfig() Config {
	return Config{
		Window:    time.Hour,
		Retention: 7 * 24 * time.Hour,
	}
}

// RedisSink counts delivery outcomes per target session. Writes are
// best-effort: a Redis outage is logged and otherwise ignored, delivery
// state never depends on analytics.
type RedisSink struct {
	client *redis.Client
	config Config
}

func NewRedisSink(client *redis.Client, config Config) *RedisSink {
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	if config.Retention <= 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	return &RedisSink{client: client, config: config}
}

// Record increments the outcome counter for the entry's target and bucket.
func (s *RedisSink) Record(ctx context.Context, entry domain.DeliveryLogEntry) {
	outcome := "failure"
	if entry.Success {
		outcome = "success"
	}
	key := buildKey(entry.TargetSession, outcome, entry.SentAt, s.config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.Retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: redis pipeline: %v", err)
	}
}

// Ping verifies connectivity at startup.
func (s *RedisSink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func buildKey(targetSession, outcome string, t time.Time, window time.Duration) string {
	bucket := truncateToBucket(t, window)
	return fmt.Sprintf("tr:t:%s:%s:%s", targetSession, outcome, bucket)
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
