package crag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// scriptedEvaluator returns verdicts keyed by document content.
type scriptedEvaluator struct {
	verdicts map[string]Verdict
	errs     map[string]error
}

func (s *scriptedEvaluator) Evaluate(ctx context.Context, query, contextText string) (Verdict, error) {
	if err := s.errs[contextText]; err != nil {
		return VerdictError, err
	}
	return s.verdicts[contextText], nil
}

func TestGrader_Grade(t *testing.T) {
	items := []schema.EvidenceItem{
		{ID: "1", Content: "relevant"},
		{ID: "2", Content: "irrelevant"},
		{ID: "3", Content: "unparsed"},
		{ID: "4", Content: "broken"},
	}
	ev := &scriptedEvaluator{
		verdicts: map[string]Verdict{
			"relevant":   VerdictRelevant,
			"irrelevant": VerdictIrrelevant,
			"unparsed":   VerdictUnparsed,
		},
		errs: map[string]error{"broken": errors.New("timeout")},
	}

	kept, count := (&Grader{Evaluator: ev}).Grade(context.Background(), "q", items)

	if count != 3 {
		t.Fatalf("Expected 3 relevant, got %d", count)
	}
	wantIDs := []string{"1", "3", "4"}
	for i, it := range kept {
		if it.ID != wantIDs[i] {
			t.Errorf("Position %d: expected %s, got %s", i, wantIDs[i], it.ID)
		}
		if !it.Relevant {
			t.Errorf("Item %s should be marked relevant", it.ID)
		}
	}
	if items[0].Relevant {
		t.Errorf("Grade must not mutate its input")
	}
}

func TestGrader_AllMalformedKeepsEverything(t *testing.T) {
	items := []schema.EvidenceItem{{Content: "a"}, {Content: "b"}, {Content: "c"}}
	grader := &Grader{Evaluator: &LLMEvaluator{Provider: &MockLLMProvider{response: "I think so"}}}

	kept, count := grader.Grade(context.Background(), "q", items)
	if count != len(items) || len(kept) != len(items) {
		t.Fatalf("Expected all %d items kept, got %d (%d)", len(items), len(kept), count)
	}
}

func TestGrader_Empty(t *testing.T) {
	kept, count := (&Grader{}).Grade(context.Background(), "q", nil)
	if count != 0 || len(kept) != 0 {
		t.Fatalf("Expected nothing, got %d", count)
	}
}

func TestFoldWebResults(t *testing.T) {
	item, ok := FoldWebResults("tavily", "visa fee", []WebSearchResult{
		{Title: "Visa", Snippet: "It costs 20 OMR."},
		{Snippet: "Valid 30 days."},
	})
	if !ok {
		t.Fatal("Expected an item")
	}
	want := "Title: Visa\nContent: It costs 20 OMR.\n\n\nTitle: No title\nContent: Valid 30 days.\n"
	if item.Content != want {
		t.Errorf("Unexpected content:\n%q\nwant\n%q", item.Content, want)
	}
	if item.Source() != "tavily_search" {
		t.Errorf("Unexpected source %q", item.Source())
	}
	if item.Metadata["query"] != "visa fee" || item.Metadata["result_count"] != 2 {
		t.Errorf("Unexpected metadata %v", item.Metadata)
	}
	if !item.Relevant {
		t.Errorf("Web evidence must be marked relevant")
	}

	if _, ok := FoldWebResults("bing", "q", nil); ok {
		t.Errorf("Expected no item for empty results")
	}
	if !strings.HasPrefix(item.Key(), "sha1:") {
		t.Errorf("Folded item should be keyed by content, got %q", item.Key())
	}
}
