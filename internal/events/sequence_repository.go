package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

// SequenceRepository hands out per-partition event sequence numbers. The
// numbers must keep increasing for a partition key even when the session
// behind it is dropped and rebuilt.
type SequenceRepository interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

var errPartitionKeyRequired = errors.New("partition key is required")

// DBPool is the subset of *pgxpool.Pool the postgres repository needs.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const nextSequenceSQL = `
	INSERT INTO event_sequences (partition_key, last_sequence, updated_at)
	VALUES ($1, 1, NOW())
	ON CONFLICT (partition_key) DO UPDATE
	SET last_sequence = event_sequences.last_sequence + 1,
	    updated_at = NOW()
	RETURNING last_sequence`

// PostgresSequenceRepository keeps counters in the event_sequences table.
// The upsert is a single statement, so concurrent callers never share a value.
type PostgresSequenceRepository struct {
	pool DBPool
}

func NewPostgresSequenceRepository(pool DBPool) *PostgresSequenceRepository {
	return &PostgresSequenceRepository{pool: pool}
}

func (r *PostgresSequenceRepository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, errPartitionKeyRequired
	}
	var seq int64
	if err := r.pool.QueryRow(ctx, nextSequenceSQL, partitionKey).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next event sequence: %w", err)
	}
	return seq, nil
}

const redisSequencePrefix = "storefront:seq:"

// RedisSequenceRepository uses INCR, which starts a missing key at 1.
type RedisSequenceRepository struct {
	rdb redis.Cmdable
}

func NewRedisSequenceRepository(rdb redis.Cmdable) *RedisSequenceRepository {
	return &RedisSequenceRepository{rdb: rdb}
}

func (r *RedisSequenceRepository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, errPartitionKeyRequired
	}
	seq, err := r.rdb.Incr(ctx, redisSequencePrefix+partitionKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr sequence: %w", err)
	}
	return seq, nil
}

// MemorySequenceRepository is process-local. Sequences restart with the process.
type MemorySequenceRepository struct {
	mu   sync.Mutex
	last map[string]int64
}

func NewMemorySequenceRepository() *MemorySequenceRepository {
	return &MemorySequenceRepository{last: make(map[string]int64)}
}

func (r *MemorySequenceRepository) NextSequence(_ context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, errPartitionKeyRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[partitionKey]++
	return r.last[partitionKey], nil
}
