// Package memory keeps the bounded conversational memory of each session.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// SessionInfo summarises one stored session for listings.
type SessionInfo struct {
	ID        string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  int       `json:"messages"`
	Summary   bool      `json:"has_summary"`
}

// SessionStore 会话历史存储接口
// Writes are whole-record replaces; callers serialise read-modify-write
// cycles per session.
type SessionStore interface {
	// Load returns the session's record, or an empty record when it does not exist.
	Load(ctx context.Context, sessionID string) (schema.ChatHistoryRecord, error)
	// Save replaces the session's record.
	Save(ctx context.Context, sessionID string, rec schema.ChatHistoryRecord) error
	// Delete removes the session; deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error
	// List returns sessions ordered by recency (desc).
	List(ctx context.Context, offset, limit int) ([]SessionInfo, error)
	// Update applies fn to the session's current record and saves the result.
	// Redis and sqlite stores make the load and save atomic across processes;
	// fn may run again when a concurrent writer wins, so it must be repeatable.
	Update(ctx context.Context, sessionID string, fn UpdateFunc) error
	// Clean keeps at most keep sessions by recency and returns the pruned ids.
	Clean(ctx context.Context, keep int) ([]string, error)
	Close() error
}

// UpdateFunc derives the next record from the current one.
type UpdateFunc func(rec schema.ChatHistoryRecord) (schema.ChatHistoryRecord, error)

func infoOf(id string, rec schema.ChatHistoryRecord) SessionInfo {
	return SessionInfo{ID: id, UpdatedAt: rec.UpdatedAt, Messages: len(rec.RecentMessages), Summary: rec.OlderSummary != ""}
}

func pageBounds(n, offset, limit int) (int, int, bool) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= n {
		return 0, 0, false
	}
	end := offset + limit
	if end > n {
		end = n
	}
	return offset, end, true
}

// =============================================================================
// InMemorySessionStore - 内存实现
// =============================================================================

// InMemorySessionStore 适用于开发测试或单机部署
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]schema.ChatHistoryRecord
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]schema.ChatHistoryRecord)}
}

func (m *InMemorySessionStore) Load(ctx context.Context, sessionID string) (schema.ChatHistoryRecord, error) {
	m.mu.RLock()
	rec, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return schema.ChatHistoryRecord{}, nil
	}
	return rec.Clone(), nil
}

func (m *InMemorySessionStore) Save(ctx context.Context, sessionID string, rec schema.ChatHistoryRecord) error {
	m.mu.Lock()
	m.sessions[sessionID] = rec.Clone()
	m.mu.Unlock()
	return nil
}

func (m *InMemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *InMemorySessionStore) sorted() []SessionInfo {
	m.mu.RLock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for id, rec := range m.sessions {
		out = append(out, infoOf(id, rec))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (m *InMemorySessionStore) List(ctx context.Context, offset, limit int) ([]SessionInfo, error) {
	list := m.sorted()
	start, end, ok := pageBounds(len(list), offset, limit)
	if !ok {
		return []SessionInfo{}, nil
	}
	return list[start:end], nil
}

// Update is load-modify-save; in-process callers serialise per session.
func (m *InMemorySessionStore) Update(ctx context.Context, sessionID string, fn UpdateFunc) error {
	rec, err := m.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	next, err := fn(rec)
	if err != nil {
		return err
	}
	return m.Save(ctx, sessionID, next)
}

// Clean prunes only when over the limit. Candidates come from a sorted
// snapshot and are re-checked under the write lock, so a session written
// after the snapshot survives.
func (m *InMemorySessionStore) Clean(ctx context.Context, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	n := len(m.sessions)
	m.mu.RUnlock()
	if n <= keep {
		return nil, nil
	}
	list := m.sorted()
	if len(list) <= keep {
		return nil, nil
	}
	return m.prune(list[keep:]), nil
}

// prune deletes candidates not written since their snapshot was taken.
func (m *InMemorySessionStore) prune(candidates []SessionInfo) []string {
	var pruned []string
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range candidates {
		rec, ok := m.sessions[s.ID]
		if !ok || rec.UpdatedAt.After(s.UpdatedAt) {
			continue
		}
		delete(m.sessions, s.ID)
		pruned = append(pruned, s.ID)
	}
	return pruned
}

func (m *InMemorySessionStore) Close() error { return nil }
