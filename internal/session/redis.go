package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mirusearch/miru/internal/models"
)

const (
	vectorKeyPrefix  = "session:"
	vectorKeySuffix  = ":query_vector"
	historyKeyPrefix = "history:"

	defaultSessionTTL = 24 * time.Hour
)

// RedisStore implements Store using Redis. Vectors and history entries are
// stored as JSON blobs. Session vectors carry a TTL refreshed on write;
// history keys do not expire.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A non-positive ttl falls back
// to 24 hours.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// QueryVector implements Store. Returns nil, nil when the session has no vector.
func (s *RedisStore) QueryVector(ctx context.Context, sessionID string) ([]float32, error) {
	val, err := s.client.Get(ctx, vectorKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get query vector: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(val), &vec); err != nil {
		return nil, fmt.Errorf("decode query vector: %w", err)
	}
	return vec, nil
}

// SetQueryVector implements Store.
func (s *RedisStore) SetQueryVector(ctx context.Context, sessionID string, vector []float32) error {
	val, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode query vector: %w", err)
	}
	if err := s.client.Set(ctx, vectorKey(sessionID), val, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set query vector: %w", err)
	}
	return nil
}

// AppendHistory implements Store. The full list is read, prepended, trimmed
// to HistoryCap, and written back inside a WATCH transaction so concurrent
// appends never drop each other's entries.
func (s *RedisStore) AppendHistory(ctx context.Context, userID string, entry *models.HistoryEntry) error {
	key := historyKey(userID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var history []*models.HistoryEntry
		val, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			if err := json.Unmarshal([]byte(val), &history); err != nil {
				return fmt.Errorf("decode history: %w", err)
			}
		}
		history = append([]*models.HistoryEntry{entry}, history...)
		if len(history) > HistoryCap {
			history = history[:HistoryCap]
		}
		newVal, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("redis append history: %w", err)
	}
	return nil
}

// History implements Store.
func (s *RedisStore) History(ctx context.Context, userID string, limit int) ([]*models.HistoryEntry, error) {
	val, err := s.client.Get(ctx, historyKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get history: %w", err)
	}
	var history []*models.HistoryEntry
	if err := json.Unmarshal([]byte(val), &history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	return history, nil
}

// UserIDs implements Store using SCAN over history keys.
func (s *RedisStore) UserIDs(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		users  []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, historyKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan history keys: %w", err)
		}
		for _, key := range keys {
			users = append(users, strings.TrimPrefix(key, historyKeyPrefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return users, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func vectorKey(sessionID string) string {
	return vectorKeyPrefix + sessionID + vectorKeySuffix
}

func historyKey(userID string) string {
	return historyKeyPrefix + userID
}

// Compile-time check that RedisStore implements Store.
var _ Store = (*RedisStore)(nil)
