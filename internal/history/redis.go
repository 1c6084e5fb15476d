package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/skylink-io/skylink/pkg/models"
)

// RedisStore persists reports in Redis: one JSON value per report plus
// ZSET indexes (global and per-drone) scored by start time, so listing is
// a reverse range and expiry is a lazy prune.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL sets the report expiration. Zero keeps reports forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore connects to Redis and returns the store.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "skylink:report:",
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) indexKey() string { return s.prefix + "index" }

func (s *RedisStore) droneIndexKey(id models.DroneID) string {
	return s.prefix + "drone:" + string(id)
}

func (s *RedisStore) Save(ctx context.Context, report *models.ExecutionReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	score := float64(report.StartedAt.UnixMilli())
	member := backend.Z{Score: score, Member: report.ID}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(report.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), member)
	pipe.ZAdd(ctx, s.droneIndexKey(report.DroneID), member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save report to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.ExecutionReport, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("get report from redis: %w", err)
	}

	var report models.ExecutionReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

func (s *RedisStore) List(ctx context.Context, droneID models.DroneID, limit int) ([]models.ExecutionReport, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	index := s.indexKey()
	if droneID != "" {
		index = s.droneIndexKey(droneID)
	}

	// Lazy prune: drop index members older than the TTL window. The
	// values themselves expire on their own.
	if s.ttl > 0 {
		cutoff := float64(time.Now().Add(-s.ttl).UnixMilli())
		if err := s.client.ZRemRangeByScore(ctx, index, "-inf", fmt.Sprintf("%f", cutoff)).Err(); err != nil {
			return nil, fmt.Errorf("prune report index: %w", err)
		}
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list reports from redis: %w", err)
	}

	out := make([]models.ExecutionReport, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if err != nil {
			if err == ErrReportNotFound {
				continue // value expired ahead of the index
			}
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
