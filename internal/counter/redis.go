package counter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	fieldSuccess = "success"
	fieldTotal   = "total"

	defaultKeyPrefix = "sr"
	defaultOpTimeout = 2 * time.Second
)

// RedisOptions tune the Redis-backed counter store.
type RedisOptions struct {
	KeyPrefix string
	OpTimeout time.Duration
}

// RedisStore keeps bucket counters in Redis hashes. A MULTI/EXEC pipeline of
// HINCRBY total, HINCRBY success and EXPIRE makes each increment atomic per
// key and refreshes the TTL on every write.
type RedisStore struct {
	client *redis.Client
	prefix string

	opTimeout time.Duration
	logger    zerolog.Logger
}

// NewRedisStore wires a Redis client into a counter store.
func NewRedisStore(client *redis.Client, opts RedisOptions, logger zerolog.Logger) *RedisStore {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	opTimeout := opts.OpTimeout
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}

	return &RedisStore{
		client:    client,
		prefix:    prefix,
		opTimeout: opTimeout,
		logger:    logger.With().Str("component", "counter_redis").Logger(),
	}
}

// Increment bumps the bucket's counters and extends its expiry to ttl from now.
func (s *RedisStore) Increment(ctx context.Context, bank string, bucketStart time.Time, success bool, ttl time.Duration) error {
	if bank == "" {
		return fmt.Errorf("bank is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	key := s.key(bank, bucketStart)

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldTotal, 1)
	if success {
		pipe.HIncrBy(ctx, key, fieldSuccess, 1)
	}
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis increment %s: %w", key, err)
	}
	return nil
}

// Read returns the bucket's counters, or the zero Counts when the key is
// absent or expired. A counter with success > total indicates backend
// corruption; it is logged and reported as zero rather than propagated.
func (s *RedisStore) Read(ctx context.Context, bank string, bucketStart time.Time) (Counts, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	key := s.key(bank, bucketStart)

	values, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Counts{}, fmt.Errorf("redis read %s: %w", key, err)
	}
	if len(values) == 0 {
		return Counts{}, nil
	}

	counts := Counts{
		Success: parseCount(values[fieldSuccess]),
		Total:   parseCount(values[fieldTotal]),
	}
	if counts.Success > counts.Total {
		s.logger.Error().
			Str("key", key).
			Uint64("success", counts.Success).
			Uint64("total", counts.Total).
			Msg("counter invariant violated, treating bucket as empty")
		return Counts{}, nil
	}
	return counts, nil
}

func (s *RedisStore) key(bank string, bucketStart time.Time) string {
	return fmt.Sprintf("%s:%s:%d", s.prefix, bank, bucketStart.UTC().Unix())
}

func parseCount(raw string) uint64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

var _ Store = (*RedisStore)(nil)
