package post

import (
	"strings"
	"testing"
)

func TestEstimateCounter(t *testing.T) {
	c := EstimateCounter{}
	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	if got := c.Count("abcd"); got != 1 {
		t.Errorf("Count(abcd) = %d, want 1", got)
	}
	if got := c.Count("abcde"); got != 2 {
		t.Errorf("Count(abcde) = %d, want 2", got)
	}

	text := "alpha beta gamma delta epsilon"
	cut := c.Truncate(text, 3)
	if c.Count(cut) > 3 {
		t.Errorf("Truncate exceeded budget: %q", cut)
	}
	if !strings.HasPrefix(text, cut) {
		t.Errorf("Truncate should keep the beginning, got %q", cut)
	}
	if got := c.Truncate(text, 0); got != "" {
		t.Errorf("Truncate with zero budget = %q, want empty", got)
	}
}

func TestBudgetFit_Unlimited(t *testing.T) {
	b := &Budget{MaxTokens: 0, Counter: EstimateCounter{}}
	got := b.Fit([]string{"one", "", "two", "  "}, "\n\n")
	if got != "one\n\ntwo" {
		t.Errorf("unexpected join: %q", got)
	}
}

func TestBudgetFit_PreservesOrderAndTruncates(t *testing.T) {
	b := &Budget{MaxTokens: 10, Counter: EstimateCounter{}}
	// 4 tokens, then 9 tokens
	first := strings.Repeat("a", 16)
	second := "bbbb cccc dddd eeee ffff gggg hhhh"
	third := "never included"

	got := b.Fit([]string{first, second, third}, "\n\n")
	if !strings.HasPrefix(got, first+"\n\n") {
		t.Fatalf("first section must be kept intact, got %q", got)
	}
	if strings.Contains(got, third) {
		t.Errorf("third section should be dropped, got %q", got)
	}
	if b.Counter.Count(got) > b.MaxTokens+1 {
		t.Errorf("result exceeds budget: %d tokens", b.Counter.Count(got))
	}
}

func TestBudgetFit_NilBudget(t *testing.T) {
	var b *Budget
	if got := b.Fit([]string{"x", "y"}, ","); got != "x,y" {
		t.Errorf("nil budget should join everything, got %q", got)
	}
}
