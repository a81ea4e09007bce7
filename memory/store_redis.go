package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// RedisSessionStore persists history records in Redis.
// Data model:
//   - key prefix+"hist:"+id => JSON(ChatHistoryRecord), with TTL when ttl > 0
//   - key prefix+"sessions" => ZSET of ids scored by last update (unix seconds)
type RedisSessionStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore builds the store; a non-positive ttl keeps records
// until they are deleted or pruned.
func NewRedisSessionStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisSessionStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisSessionStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) idxKey() string { return s.prefix + "sessions" }
func (s *RedisSessionStore) histKey(id string) string { return s.prefix + "hist:" + id }

var saveScript = redis.NewScript(`
local hist_key = KEYS[1]
local idx_key = KEYS[2]
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('SET', hist_key, ARGV[1], 'EX', ttl)
else
  redis.call('SET', hist_key, ARGV[1])
end
redis.call('ZADD', idx_key, tonumber(ARGV[3]), ARGV[4])
return 1`)

var deleteScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1`)

var cleanScript = redis.NewScript(`
local idx_key = KEYS[1]
local prefix = ARGV[1]
local keep = tonumber(ARGV[2])
local total = redis.call('ZCARD', idx_key)
if total <= keep then return {} end
local ids = redis.call('ZRANGE', idx_key, 0, total-keep-1)
for i,id in ipairs(ids) do
  redis.call('ZREM', idx_key, id)
  redis.call('DEL', prefix .. 'hist:' .. id)
end
return ids`)

const maxWatchRetries = 8

func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (schema.ChatHistoryRecord, error) {
	raw, err := s.rdb.Get(ctx, s.histKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return schema.ChatHistoryRecord{}, nil
	}
	if err != nil {
		return schema.ChatHistoryRecord{}, fmt.Errorf("load history %s: %w", sessionID, err)
	}
	var rec schema.ChatHistoryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return schema.ChatHistoryRecord{}, fmt.Errorf("decode history %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, sessionID string, rec schema.ChatHistoryRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	keys := []string{s.histKey(sessionID), s.idxKey()}
	args := []interface{}{string(b), int64(s.ttl / time.Second), rec.UpdatedAt.Unix(), sessionID}
	if err := saveScript.Run(ctx, s.rdb, keys, args...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("save history %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	keys := []string{s.histKey(sessionID), s.idxKey()}
	if err := deleteScript.Run(ctx, s.rdb, keys, sessionID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete history %s: %w", sessionID, err)
	}
	return nil
}

// List reads ids from the recency index. Ids whose record already expired
// are pruned from the index and skipped.
func (s *RedisSessionStore) List(ctx context.Context, offset, limit int) ([]SessionInfo, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return []SessionInfo{}, nil
	}
	ids, err := s.rdb.ZRevRange(ctx, s.idxKey(), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		raw, err := s.rdb.Get(ctx, s.histKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			s.rdb.ZRem(ctx, s.idxKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec schema.ChatHistoryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, infoOf(id, rec))
	}
	return out, nil
}

func (s *RedisSessionStore) Clean(ctx context.Context, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	ids, err := cleanScript.Run(ctx, s.rdb, []string{s.idxKey()}, s.prefix, keep).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return ids, nil
}

// Update is an optimistic WATCH/MULTI transaction on the history key, so
// turns committed by other processes on the same session are never
// overwritten with a stale record.
func (s *RedisSessionStore) Update(ctx context.Context, sessionID string, fn UpdateFunc) error {
	key := s.histKey(sessionID)
	txf := func(tx *redis.Tx) error {
		var rec schema.ChatHistoryRecord
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("decode history %s: %w", sessionID, err)
			}
		}
		next, err := fn(rec)
		if err != nil {
			return err
		}
		if next.UpdatedAt.IsZero() {
			next.UpdatedAt = time.Now()
		}
		b, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, s.ttl)
			pipe.ZAdd(ctx, s.idxKey(), &redis.Z{Score: float64(next.UpdatedAt.Unix()), Member: sessionID})
			return nil
		})
		return err
	}
	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("update history %s: %w", sessionID, err)
		}
	}
	return fmt.Errorf("update history %s: %w", sessionID, redis.TxFailedErr)
}

// Close is a no-op: the redis client is shared and closed by its owner.
func (s *RedisSessionStore) Close() error { return nil }
