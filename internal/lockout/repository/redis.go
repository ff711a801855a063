package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clavionx/backend/internal/lockout/domain"
)

const (
	redisKeyPrefix  = "clavionx:lockout:"
	redisMaxRetries = 10
)

// ErrConflict is returned when an optimistic Redis update keeps losing to concurrent writers.
var ErrConflict = errors.New("lockout: too many concurrent updates")

// RedisRepository stores records as JSON values and serializes updates with WATCH/MULTI.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRepository returns a Redis-backed lockout repository. Keys expire ttl after the last write
// (24h when ttl <= 0), which must exceed the lockout window and lock duration.
func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRepository{client: client, ttl: ttl}
}

type redisRecord struct {
	Attempts    int        `json:"attempts"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

func redisKey(userID string) string { return redisKeyPrefix + userID }

// Get returns the record for userID, or nil if not found.
func (r *RedisRepository) Get(ctx context.Context, userID string) (*domain.Record, error) {
	raw, err := r.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeRecord(userID, raw)
}

// Update retries the WATCH/GET/MULTI/SET cycle until it commits without interference.
func (r *RedisRepository) Update(ctx context.Context, userID string, fn func(rec *domain.Record) error) error {
	key := redisKey(userID)
	txf := func(tx *redis.Tx) error {
		rec := &domain.Record{UserID: userID}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get: %w", err)
		default:
			if rec, err = decodeRecord(userID, raw); err != nil {
				return err
			}
		}
		if err := fn(rec); err != nil {
			return err
		}
		payload, err := json.Marshal(redisRecord{Attempts: rec.Attempts, WindowStart: rec.WindowStart, LockedUntil: rec.LockedUntil})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < redisMaxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func decodeRecord(userID string, raw []byte) (*domain.Record, error) {
	var rr redisRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("decode lockout record: %w", err)
	}
	return &domain.Record{UserID: userID, Attempts: rr.Attempts, WindowStart: rr.WindowStart, LockedUntil: rr.LockedUntil}, nil
}
