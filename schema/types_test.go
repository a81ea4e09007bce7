package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		raw  string
		want Classification
		ok   bool
	}{
		{"in-scope", InScope, true},
		{" In_Scope ", InScope, true},
		{"GENERAL", General, true},
		{"out of scope", OutOfScope, true},
		{"maybe", OutOfScope, false},
		{"", OutOfScope, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseClassification(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestEvidenceKey(t *testing.T) {
	withID := EvidenceItem{ID: "doc-1", Content: "a"}
	assert.Equal(t, "doc-1", withID.Key())

	a := EvidenceItem{Content: "same"}
	b := EvidenceItem{Content: "same", Metadata: map[string]any{"source": "x"}}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), EvidenceItem{Content: "other"}.Key())
}

func TestEvidenceCloneDoesNotShareMetadata(t *testing.T) {
	orig := EvidenceItem{Content: "c", Metadata: map[string]any{"source": "kb"}}
	cp := orig.Clone()
	cp.Metadata["source"] = "web"
	assert.Equal(t, "kb", orig.Source())
	assert.Equal(t, "web", cp.Source())
}

func TestJoinEvidenceSkipsBlank(t *testing.T) {
	got := JoinEvidence([]EvidenceItem{{Content: "one"}, {Content: "  "}, {Content: "two"}})
	assert.Equal(t, "one\n\ntwo", got)
}

func TestHistoryText(t *testing.T) {
	h := ChatHistoryRecord{
		OlderSummary: "talked about visas",
		RecentMessages: []ChatMessage{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
	}
	assert.Equal(t, "Summary of earlier conversation: talked about visas\nUSER: hi\nASSISTANT: hello", h.Text())
	assert.Equal(t, "", ChatHistoryRecord{}.Text())
	assert.True(t, ChatHistoryRecord{}.Empty())
}

func TestSearchTextPrefersReformulation(t *testing.T) {
	r := NewSubQueryRecord("what is x")
	assert.Equal(t, OutOfScope, r.Classification)
	assert.Equal(t, "what is x", r.SearchText())
	r.ReformulatedText = "x definition"
	assert.Equal(t, "x definition", r.SearchText())
}
