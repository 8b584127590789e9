package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinsim/backend/internal/config"
	"github.com/clinsim/backend/internal/models"
)

const redisKeyPrefix = "clinsim:history:"

// RedisStore keeps each trainee's records as a JSON list, newest at the
// head, trimmed on every append.
type RedisStore struct {
	client redis.Cmdable
	max    int
}

// NewRedisClient connects and pings within five seconds.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisStore(client redis.Cmdable, max int) *RedisStore {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &RedisStore{client: client, max: max}
}

func (s *RedisStore) Append(ctx context.Context, key string, rec models.HistoryRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	k := redisKeyPrefix + key
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, k, b)
	pipe.LTrim(ctx, k, 0, int64(s.max-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, key string) ([]models.HistoryRecord, error) {
	items, err := s.client.LRange(ctx, redisKeyPrefix+key, 0, int64(s.max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	records := make([]models.HistoryRecord, 0, len(items))
	for _, item := range items {
		var r models.HistoryRecord
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}
