package budget

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"pce/internal/llm"
	"pce/internal/logging"
	"pce/internal/sources"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message, opts llm.CompleteOptions) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
}

func item(kind sources.SourceKind, text string, rel float64) sources.ContextItem {
	return sources.ContextItem{Kind: kind, Text: text, Relevance: rel, Origin: "test"}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.text); got != c.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(c.text), got, c.want)
		}
	}
}

func TestApplyUnderBudgetKeepsEverything(t *testing.T) {
	b := NewBudgeter(nil, testLogger())
	items := []sources.ContextItem{
		item(sources.KindFact, "uses react 18", 0.9),
		item(sources.KindDoc, "hooks run on render", 0.6),
	}

	bundle := b.Apply(context.Background(), items, 1000)

	if len(bundle.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(bundle.Items))
	}
	if bundle.Summarized {
		t.Error("nothing should be summarized under budget")
	}
	if bundle.Dropped != 0 || bundle.Shortened != 0 {
		t.Errorf("unexpected truncation info: dropped=%d shortened=%d", bundle.Dropped, bundle.Shortened)
	}
	if bundle.KindCounts[sources.KindFact] != 1 || bundle.KindCounts[sources.KindDoc] != 1 {
		t.Errorf("wrong kind counts: %v", bundle.KindCounts)
	}
}

func TestApplyDropsLowRelevanceFirst(t *testing.T) {
	b := NewBudgeter(nil, testLogger())
	big := strings.Repeat("a", 200) // 50 tokens
	items := []sources.ContextItem{
		item(sources.KindDoc, big, 0.2),
		item(sources.KindFact, big, 0.9),
		item(sources.KindSnippet, big, 0.5),
	}

	bundle := b.Apply(context.Background(), items, 110)

	if len(bundle.Items) != 2 {
		t.Fatalf("expected 2 items within budget, got %d", len(bundle.Items))
	}
	if bundle.Items[0].Relevance != 0.9 || bundle.Items[1].Relevance != 0.5 {
		t.Errorf("expected highest-relevance items kept, got %v, %v",
			bundle.Items[0].Relevance, bundle.Items[1].Relevance)
	}
	if bundle.Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", bundle.Dropped)
	}
	if !bundle.Summarized {
		t.Error("dropping an item makes the selection lossy")
	}
	if bundle.TotalTokens > 110 {
		t.Errorf("budget exceeded: %d", bundle.TotalTokens)
	}
}

func TestApplyTruncatesOversizedItemWithoutLLM(t *testing.T) {
	b := NewBudgeter(nil, testLogger())
	huge := strings.Repeat("word ", 500) // ~625 tokens
	items := []sources.ContextItem{item(sources.KindDoc, huge, 0.9)}

	bundle := b.Apply(context.Background(), items, 100)

	if len(bundle.Items) != 1 {
		t.Fatalf("expected the oversized item kept after truncation, got %d", len(bundle.Items))
	}
	if bundle.TotalTokens > 100 {
		t.Errorf("budget exceeded after truncation: %d", bundle.TotalTokens)
	}
	if !bundle.Summarized {
		t.Error("truncation makes the selection lossy")
	}
	if bundle.Shortened != 1 {
		t.Errorf("expected 1 shortened, got %d", bundle.Shortened)
	}
}

func TestApplySummarizesOversizedItemWithLLM(t *testing.T) {
	completer := &fakeCompleter{response: "react 18 with hooks and a postgres backend"}
	b := NewBudgeter(completer, testLogger())
	huge := strings.Repeat("verbose documentation text ", 200)
	items := []sources.ContextItem{item(sources.KindDoc, huge, 0.9)}

	bundle := b.Apply(context.Background(), items, 100)

	if completer.calls != 1 {
		t.Fatalf("expected 1 completion call, got %d", completer.calls)
	}
	if len(bundle.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(bundle.Items))
	}
	if bundle.Items[0].Text != completer.response {
		t.Errorf("expected summarized text, got %q", bundle.Items[0].Text)
	}
	if !bundle.Summarized {
		t.Error("expected Summarized flag")
	}
}

func TestApplyFallsBackToTruncationOnLLMFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("model unavailable")}
	b := NewBudgeter(completer, testLogger())
	huge := strings.Repeat("x", 2000)
	items := []sources.ContextItem{item(sources.KindDoc, huge, 0.9)}

	bundle := b.Apply(context.Background(), items, 100)

	if len(bundle.Items) != 1 {
		t.Fatalf("expected truncated item, got %d items", len(bundle.Items))
	}
	if bundle.TotalTokens > 100 {
		t.Errorf("budget exceeded: %d", bundle.TotalTokens)
	}
	if bundle.Shortened != 1 {
		t.Errorf("expected 1 shortened, got %d", bundle.Shortened)
	}
}

func TestApplyRejectsOverlongSummary(t *testing.T) {
	// A summary that itself blows the budget is discarded in favor of
	// truncation.
	completer := &fakeCompleter{response: strings.Repeat("y", 1000)}
	b := NewBudgeter(completer, testLogger())
	items := []sources.ContextItem{item(sources.KindDoc, strings.Repeat("x", 2000), 0.9)}

	bundle := b.Apply(context.Background(), items, 100)

	if bundle.TotalTokens > 100 {
		t.Errorf("budget exceeded: %d", bundle.TotalTokens)
	}
	if strings.Contains(bundle.Items[0].Text, "y") {
		t.Error("oversized summary should have been discarded for truncation")
	}
}

func TestApplyShrunkThenDroppedItemCountsOnce(t *testing.T) {
	b := NewBudgeter(nil, testLogger())
	huge := strings.Repeat("x", 2000)
	items := []sources.ContextItem{
		item(sources.KindDoc, huge, 0.9),
		item(sources.KindDoc, huge, 0.5),
	}

	// Both items are shrunk to the full allowance; only the first fits.
	bundle := b.Apply(context.Background(), items, 100)

	if len(bundle.Items) != 1 {
		t.Fatalf("expected 1 kept item, got %d", len(bundle.Items))
	}
	if bundle.Shortened != 1 {
		t.Errorf("a shrunk item that was then dropped counts as dropped only, shortened=%d", bundle.Shortened)
	}
	if bundle.Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", bundle.Dropped)
	}
}

func TestApplyEmptyAndZeroBudget(t *testing.T) {
	b := NewBudgeter(nil, testLogger())

	if got := b.Apply(context.Background(), nil, 100); len(got.Items) != 0 {
		t.Errorf("expected empty bundle for no items")
	}
	items := []sources.ContextItem{item(sources.KindFact, "x", 0.5)}
	if got := b.Apply(context.Background(), items, 0); len(got.Items) != 0 {
		t.Errorf("expected empty bundle for zero budget")
	}
}

func TestTruncateToTokensBreaksAtLine(t *testing.T) {
	text := strings.Repeat("line of content here\n", 50)
	out := truncateToTokens(text, 50)
	if len(out) > 200 {
		t.Errorf("truncation too long: %d chars", len(out))
	}
	if strings.HasSuffix(out, "conte") {
		t.Error("expected truncation at a line boundary")
	}
}

func TestTruncateToTokensKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("日", 300) // 3 bytes each, no line breaks
	out := truncateToTokens(text, 50)
	if !utf8.ValidString(out) {
		t.Error("truncation split a multi-byte rune")
	}
	if len(out) == 0 || len(out) > 50*4 {
		t.Errorf("unexpected truncation length: %d bytes", len(out))
	}
}
