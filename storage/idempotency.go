package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "mintrelay:dispatch:"

// SubmissionRecord is what is remembered about a successful dispatch
type SubmissionRecord struct {
	Key             string    `json:"key"`
	Strategy        string    `json:"strategy"`
	OperationHash   string    `json:"operationHash"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	Kind            string    `json:"kind"`
	CreatedAt       time.Time `json:"createdAt"`
}

// IdempotencyStore remembers which dispatch keys already produced a submission
type IdempotencyStore interface {
	// Get returns nil, nil when no record exists for key
	Get(ctx context.Context, key string) (*SubmissionRecord, error)
	// Put stores rec unless a record already exists; stored reports whether rec won
	Put(ctx context.Context, rec *SubmissionRecord) (stored bool, err error)
}

// RedisIdempotencyStore keeps records in Redis with a TTL
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed store
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*SubmissionRecord, error) {
	raw, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency record: %w", err)
	}

	var rec SubmissionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &rec, nil
}

func (s *RedisIdempotencyStore) Put(ctx context.Context, rec *SubmissionRecord) (bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	stored, err := s.client.SetNX(ctx, idempotencyKeyPrefix+rec.Key, raw, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to write idempotency record: %w", err)
	}
	return stored, nil
}

// MemoryIdempotencyStore keeps records in process memory
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	ttl     time.Duration
	now     func() time.Time
}

type memoryRecord struct {
	rec       SubmissionRecord
	expiresAt time.Time
}

// NewMemoryIdempotencyStore creates an in-memory store; ttl <= 0 never expires
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		records: make(map[string]memoryRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (*SubmissionRecord, error) {
	s.mu.RLock()
	entry, ok := s.records[key]
	s.mu.RUnlock()

	if !ok || s.expired(entry) {
		return nil, nil
	}
	rec := entry.rec
	return &rec, nil
}

func (s *MemoryIdempotencyStore) Put(_ context.Context, rec *SubmissionRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.records[rec.Key]; ok && !s.expired(entry) {
		return false, nil
	}

	entry := memoryRecord{rec: *rec}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.records[rec.Key] = entry
	return true, nil
}

func (s *MemoryIdempotencyStore) expired(entry memoryRecord) bool {
	return !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt)
}

// NewIdempotencyStore picks the Redis store when connected, memory otherwise
func NewIdempotencyStore(ttl time.Duration) IdempotencyStore {
	if RedisClient != nil {
		return NewRedisIdempotencyStore(RedisClient, ttl)
	}
	return NewMemoryIdempotencyStore(ttl)
}
