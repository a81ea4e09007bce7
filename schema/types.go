package schema

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Classification is the closed set of labels a sub-query can carry.
type Classification string

const (
	InScope    Classification = "in-scope"
	General    Classification = "general"
	OutOfScope Classification = "out-of-scope"
)

// ParseClassification maps a raw label onto the closed set. Unknown labels
// report ok=false and map to OutOfScope.
func ParseClassification(raw string) (Classification, bool) {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.ReplaceAll(label, "_", "-")
	label = strings.ReplaceAll(label, " ", "-")
	switch Classification(label) {
	case InScope, General, OutOfScope:
		return Classification(label), true
	default:
		return OutOfScope, false
	}
}

func (c Classification) String() string { return string(c) }

// EvidenceItem is one retrieved passage plus its source metadata.
type EvidenceItem struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score,omitempty"`
	Relevant bool           `json:"relevant"`
}

// Key identifies an item for fusion and de-duplication. Items without an ID
// are keyed by a content digest.
func (e EvidenceItem) Key() string {
	if e.ID != "" {
		return e.ID
	}
	sum := sha1.Sum([]byte(e.Content))
	return "sha1:" + hex.EncodeToString(sum[:])
}

// Source returns metadata["source"] when present.
func (e EvidenceItem) Source() string {
	if e.Metadata == nil {
		return ""
	}
	if s, ok := e.Metadata["source"].(string); ok {
		return s
	}
	return ""
}

// Clone returns a copy whose metadata map is not shared with the receiver.
func (e EvidenceItem) Clone() EvidenceItem {
	out := e
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// CloneEvidence deep-copies a slice of evidence items.
func CloneEvidence(items []EvidenceItem) []EvidenceItem {
	if items == nil {
		return nil
	}
	out := make([]EvidenceItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// JoinEvidence concatenates evidence contents in source order.
func JoinEvidence(items []EvidenceItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Content) == "" {
			continue
		}
		parts = append(parts, it.Content)
	}
	return strings.Join(parts, "\n\n")
}

// SubQueryRecord is one decomposed question and its processing state.
type SubQueryRecord struct {
	Text               string         `json:"text"`
	Classification     Classification `json:"classification"`
	Evidence           []EvidenceItem `json:"evidence,omitempty"`
	RelevantCount      int            `json:"relevant_count"`
	NeedsReformulation bool           `json:"needs_reformulation"`
	ReformulatedText   string         `json:"reformulated_text,omitempty"`
	WebSearched        bool           `json:"web_searched"`
	Answer             string         `json:"answer,omitempty"`
}

// NewSubQueryRecord creates an unclassified record; classification defaults
// to out-of-scope until the classifier runs.
func NewSubQueryRecord(text string) *SubQueryRecord {
	return &SubQueryRecord{Text: text, Classification: OutOfScope}
}

// SearchText is the text used for retrieval: the reformulation once one exists.
func (r *SubQueryRecord) SearchText() string {
	if r.ReformulatedText != "" {
		return r.ReformulatedText
	}
	return r.Text
}

// RequestContext is threaded through the pipeline for one user turn.
type RequestContext struct {
	SessionID   string            `json:"session_id"`
	Question    string            `json:"question"`
	History     string            `json:"-"`
	SubQueries  []string          `json:"sub_queries"`
	Classified  []*SubQueryRecord `json:"classified_sub_queries"`
	FinalAnswer string            `json:"final_answer"`
}

// Role of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage represents a single chat turn.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Line renders the message as "ROLE: content".
func (m ChatMessage) Line() string {
	return fmt.Sprintf("%s: %s", strings.ToUpper(string(m.Role)), m.Content)
}

// ChatHistoryRecord is the bounded conversational memory of one session.
type ChatHistoryRecord struct {
	OlderSummary   string        `json:"older_summary"`
	RecentMessages []ChatMessage `json:"recent_messages"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Empty reports whether the record carries no conversation at all.
func (h ChatHistoryRecord) Empty() bool {
	return h.OlderSummary == "" && len(h.RecentMessages) == 0
}

// Clone returns a copy that shares no slices with the receiver.
func (h ChatHistoryRecord) Clone() ChatHistoryRecord {
	out := h
	out.RecentMessages = append([]ChatMessage(nil), h.RecentMessages...)
	return out
}

// Text renders the record as prompt-ready conversation text.
func (h ChatHistoryRecord) Text() string {
	var b strings.Builder
	if h.OlderSummary != "" {
		b.WriteString("Summary of earlier conversation: ")
		b.WriteString(h.OlderSummary)
		b.WriteString("\n")
	}
	b.WriteString(MessagesText(h.RecentMessages))
	return strings.TrimSpace(b.String())
}

// MessagesText renders messages one "ROLE: content" line each.
func MessagesText(msgs []ChatMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Line())
	}
	return strings.Join(lines, "\n")
}
