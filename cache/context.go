package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/keylock"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// ContextCache maps a session to the evidence already retrieved in it.
// The per-session list only grows until Clear is called.
type ContextCache interface {
	// Load returns a copy of the session's evidence; a missing session yields an empty list.
	Load(ctx context.Context, sessionID string) ([]schema.EvidenceItem, error)
	// Append adds items to the end of the session's evidence list.
	Append(ctx context.Context, sessionID string, items []schema.EvidenceItem) error
	// Clear drops all evidence for the session.
	Clear(ctx context.Context, sessionID string) error
	// Touch restarts the session's expiry, if the backend has one.
	Touch(ctx context.Context, sessionID string) error
}

// MemoryContextCache keeps every session's evidence until Clear. Its
// lifetime follows the session history: pruned or cleared sessions are
// cleared here by the owner.
type MemoryContextCache struct {
	lru   Cache[[]schema.EvidenceItem]
	locks *keylock.KeyedMutex
}

func NewMemoryContextCache() *MemoryContextCache {
	return &MemoryContextCache{
		lru:   NewLRU[[]schema.EvidenceItem](0, 0),
		locks: keylock.New(),
	}
}

func (m *MemoryContextCache) Load(ctx context.Context, sessionID string) ([]schema.EvidenceItem, error) {
	items, _ := m.lru.Get(sessionID)
	return schema.CloneEvidence(items), nil
}

func (m *MemoryContextCache) Append(ctx context.Context, sessionID string, items []schema.EvidenceItem) error {
	if len(items) == 0 {
		return nil
	}
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	existing, _ := m.lru.Get(sessionID)
	next := make([]schema.EvidenceItem, 0, len(existing)+len(items))
	next = append(next, existing...)
	next = append(next, schema.CloneEvidence(items)...)
	m.lru.Set(sessionID, next, 0)
	return nil
}

func (m *MemoryContextCache) Clear(ctx context.Context, sessionID string) error {
	unlock := m.locks.Lock(sessionID)
	defer unlock()
	m.lru.Delete(sessionID)
	return nil
}

func (m *MemoryContextCache) Touch(ctx context.Context, sessionID string) error { return nil }

// Len returns the number of sessions holding evidence.
func (m *MemoryContextCache) Len() int { return m.lru.Len() }

const maxWatchRetries = 5

// RedisContextCache stores each session's evidence as one JSON document under
// prefix+"ctx:"+sessionID. Appends are optimistic WATCH/MULTI transactions so
// concurrent writers in other processes cannot drop each other's items.
type RedisContextCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	locks  *keylock.KeyedMutex
}

func NewRedisContextCache(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisContextCache {
	return &RedisContextCache{rdb: rdb, prefix: prefix, ttl: ttl, locks: keylock.New()}
}

func (r *RedisContextCache) key(sessionID string) string { return r.prefix + "ctx:" + sessionID }

func (r *RedisContextCache) Load(ctx context.Context, sessionID string) ([]schema.EvidenceItem, error) {
	raw, err := r.rdb.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []schema.EvidenceItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context for %s: %w", sessionID, err)
	}
	return decodeEvidence(raw)
}

func (r *RedisContextCache) Append(ctx context.Context, sessionID string, items []schema.EvidenceItem) error {
	if len(items) == 0 {
		return nil
	}
	unlock := r.locks.Lock(sessionID)
	defer unlock()

	key := r.key(sessionID)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		existing, err := decodeEvidence(raw)
		if err != nil {
			return err
		}
		data, err := json.Marshal(append(existing, items...))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < maxWatchRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("append context for %s: %w", sessionID, err)
		}
		logger.Debugf("context cache: watch conflict on %s, retrying", key)
	}
	return fmt.Errorf("append context for %s: %w", sessionID, redis.TxFailedErr)
}

func (r *RedisContextCache) Clear(ctx context.Context, sessionID string) error {
	unlock := r.locks.Lock(sessionID)
	defer unlock()
	return r.rdb.Del(ctx, r.key(sessionID)).Err()
}

// Touch aligns the evidence expiry with the history record's, which is
// refreshed on every committed turn.
func (r *RedisContextCache) Touch(ctx context.Context, sessionID string) error {
	if r.ttl <= 0 {
		return nil
	}
	return r.rdb.Expire(ctx, r.key(sessionID), r.ttl).Err()
}

func decodeEvidence(raw []byte) ([]schema.EvidenceItem, error) {
	if len(raw) == 0 {
		return []schema.EvidenceItem{}, nil
	}
	var items []schema.EvidenceItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode context record: %w", err)
	}
	return items, nil
}
