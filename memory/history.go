package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/keylock"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

const summarizePrompt = `Summarize the following conversation history into a concise but complete summary:
%s
---
Return only the summary with no extra text:
`

// HistoryManager keeps at most MaxRecent messages verbatim per session and
// folds older ones into a running summary.
type HistoryManager struct {
	store     SessionStore
	llm       llm.Provider
	maxRecent int
	locks     *keylock.KeyedMutex
	now       func() time.Time

	// MaxSessions, when positive, prunes the least recently updated
	// sessions after each write.
	MaxSessions int
	// OnPrune, when set, receives the ids removed by pruning so per-session
	// state kept elsewhere (the context cache) goes with them.
	OnPrune func(ctx context.Context, sessionIDs []string)
}

func NewHistoryManager(store SessionStore, provider llm.Provider, maxRecent int) *HistoryManager {
	if maxRecent <= 0 {
		maxRecent = 5
	}
	return &HistoryManager{store: store, llm: provider, maxRecent: maxRecent, locks: keylock.New(), now: time.Now}
}

// Get returns the session's history; unknown sessions yield an empty record.
func (h *HistoryManager) Get(ctx context.Context, sessionID string) (schema.ChatHistoryRecord, error) {
	return h.store.Load(ctx, sessionID)
}

// Update appends the user and assistant messages, skipping empty ones, and
// compacts the record. A failed summarization keeps the previous summary
// but still drops the evicted messages.
func (h *HistoryManager) Update(ctx context.Context, sessionID, userMsg, assistantMsg string) error {
	unlock := h.locks.Lock(sessionID)
	defer unlock()

	now := h.now()
	err := h.store.Update(ctx, sessionID, func(rec schema.ChatHistoryRecord) (schema.ChatHistoryRecord, error) {
		if strings.TrimSpace(userMsg) != "" {
			rec.RecentMessages = append(rec.RecentMessages, schema.ChatMessage{Role: schema.RoleUser, Content: userMsg, Timestamp: now})
		}
		if strings.TrimSpace(assistantMsg) != "" {
			rec.RecentMessages = append(rec.RecentMessages, schema.ChatMessage{Role: schema.RoleAssistant, Content: assistantMsg, Timestamp: now})
		}

		if over := len(rec.RecentMessages) - h.maxRecent; over > 0 {
			evicted := rec.RecentMessages[:over]
			summary, err := h.summarize(ctx, rec.OlderSummary, evicted)
			if err != nil {
				logger.Warnf("history: summarization failed for session %s, dropping %d messages: %v", sessionID, over, err)
				metrics.IncSummarization("failed")
			} else {
				rec.OlderSummary = summary
				metrics.IncSummarization("ok")
			}
			rec.RecentMessages = append([]schema.ChatMessage(nil), rec.RecentMessages[over:]...)
		}
		rec.UpdatedAt = now
		return rec, nil
	})
	if err != nil {
		return err
	}
	h.prune(ctx)
	return nil
}

func (h *HistoryManager) prune(ctx context.Context) {
	if h.MaxSessions <= 0 {
		return
	}
	pruned, err := h.store.Clean(ctx, h.MaxSessions)
	if err != nil {
		logger.Warnf("history: pruning sessions to %d failed: %v", h.MaxSessions, err)
		return
	}
	if len(pruned) > 0 {
		logger.Debugf("history: pruned %d sessions", len(pruned))
		if h.OnPrune != nil {
			h.OnPrune(ctx, pruned)
		}
	}
}

// Delete removes the session's history.
func (h *HistoryManager) Delete(ctx context.Context, sessionID string) error {
	unlock := h.locks.Lock(sessionID)
	defer unlock()
	return h.store.Delete(ctx, sessionID)
}

// List exposes the store's recency listing.
func (h *HistoryManager) List(ctx context.Context, offset, limit int) ([]SessionInfo, error) {
	return h.store.List(ctx, offset, limit)
}

func (h *HistoryManager) summarize(ctx context.Context, previous string, evicted []schema.ChatMessage) (string, error) {
	if h.llm == nil {
		return "", fmt.Errorf("no completion provider")
	}
	text := previous + "\n\n" + schema.MessagesText(evicted) + "\n"
	out, err := h.llm.GenerateCompletion(ctx, fmt.Sprintf(summarizePrompt, text))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", llm.ErrEmptyCompletion
	}
	return out, nil
}
