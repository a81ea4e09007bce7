// Package post shapes retrieved evidence into the context string handed to
// the answer generator.
package post

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
)

// TokenCounter counts and truncates text in model tokens.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// TiktokenCounter uses the cl100k_base BPE. The encoding is loaded lazily on
// first use; if it cannot be loaded the estimate counter is used instead.
type TiktokenCounter struct {
	Encoding string

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback EstimateCounter
}

func (t *TiktokenCounter) load() *tiktoken.Tiktoken {
	t.once.Do(func() {
		name := t.Encoding
		if name == "" {
			name = "cl100k_base"
		}
		enc, err := tiktoken.GetEncoding(name)
		if err != nil {
			logger.Warnf("post: tiktoken encoding %s unavailable, estimating tokens: %v", name, err)
			return
		}
		t.enc = enc
	})
	return t.enc
}

func (t *TiktokenCounter) Count(text string) int {
	enc := t.load()
	if enc == nil {
		return t.fallback.Count(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (t *TiktokenCounter) Truncate(text string, maxTokens int) string {
	enc := t.load()
	if enc == nil {
		return t.fallback.Truncate(text, maxTokens)
	}
	if maxTokens <= 0 {
		return ""
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}

// EstimateCounter approximates one token per four runes and truncates on
// word boundaries.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

func (e EstimateCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if e.Count(text) <= maxTokens {
		return text
	}
	words := strings.Fields(text)
	var b strings.Builder
	for _, w := range words {
		next := w
		if b.Len() > 0 {
			next = " " + w
		}
		if e.Count(b.String()+next) > maxTokens {
			break
		}
		b.WriteString(next)
	}
	return b.String()
}

// Budget keeps a context string within a token limit.
type Budget struct {
	MaxTokens int
	Counter   TokenCounter
}

// NewBudget returns a tiktoken-backed budget. maxTokens <= 0 disables the limit.
func NewBudget(maxTokens int) *Budget {
	return &Budget{MaxTokens: maxTokens, Counter: &TiktokenCounter{}}
}

// Fit joins sections with sep in source order. Sections past the budget are
// dropped; the one that crosses it is truncated.
func (b *Budget) Fit(sections []string, sep string) string {
	kept := make([]string, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, s)
		}
	}
	if b == nil || b.MaxTokens <= 0 || b.Counter == nil {
		return strings.Join(kept, sep)
	}

	remaining := b.MaxTokens
	sepCost := b.Counter.Count(sep)
	out := make([]string, 0, len(kept))
	for i, s := range kept {
		cost := b.Counter.Count(s)
		if i > 0 {
			cost += sepCost
		}
		if cost <= remaining {
			out = append(out, s)
			remaining -= cost
			continue
		}
		if i > 0 {
			remaining -= sepCost
		}
		if cut := b.Counter.Truncate(s, remaining); strings.TrimSpace(cut) != "" {
			out = append(out, cut)
		}
		logger.Debugf("post: context budget %d reached, dropped %d of %d sections", b.MaxTokens, len(kept)-i-1, len(kept))
		break
	}
	return strings.Join(out, sep)
}
