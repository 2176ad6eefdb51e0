package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

// RedisBackend keeps snapshots in a capped Redis list, newest at the tail.
type RedisBackend struct {
	client redis.UniversalClient
	key    string
	retain int
}

// NewRedisBackend connects using a redis:// URL.
func NewRedisBackend(redisURL, key string, retain int) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisBackendWithClient(redis.NewClient(opts), key, retain), nil
}

func NewRedisBackendWithClient(client redis.UniversalClient, key string, retain int) *RedisBackend {
	if key == "" {
		key = "faultline:spof:history"
	}
	return &RedisBackend{client: client, key: key, retain: retain}
}

func (b *RedisBackend) Append(ctx context.Context, s spof.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.RPush(ctx, b.key, data)
	if b.retain > 0 {
		pipe.LTrim(ctx, b.key, int64(-b.retain), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append %s: %w", b.key, err)
	}
	return nil
}

func (b *RedisBackend) Load(ctx context.Context, n int) ([]spof.Snapshot, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	raw, err := b.client.LRange(ctx, b.key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load %s: %w", b.key, err)
	}
	out := make([]spof.Snapshot, 0, len(raw))
	for _, item := range raw {
		var s spof.Snapshot
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Ping checks connectivity.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
