package enhance

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"pce/internal/budget"
	"pce/internal/config"
	"pce/internal/logging"
	"pce/internal/patterns"
	"pce/internal/sources"
	"pce/internal/storage"
)

type fakeAdapter struct {
	kind  sources.SourceKind
	items []sources.ContextItem
	err   error
	calls int
}

func (f *fakeAdapter) Kind() sources.SourceKind { return f.kind }

func (f *fakeAdapter) Fetch(ctx context.Context, q sources.Query) ([]sources.ContextItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
}

func testRegistry(t *testing.T) *patterns.Registry {
	t.Helper()
	cfg := config.DefaultConfig().Learning
	registry, err := patterns.NewRegistry(cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	t.Cleanup(registry.Close)
	return registry
}

func testCache(t *testing.T) *storage.Cache {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "pce-enhance-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	db, err := storage.Open(tmpDir, testLogger())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cache, err := storage.NewCache(db)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	return cache
}

func newTestEngine(t *testing.T, adapters []sources.Adapter, cache *storage.Cache) *Engine {
	t.Helper()
	return newTestEngineWithConfig(t, config.DefaultConfig(), adapters, cache)
}

func newTestEngineWithConfig(t *testing.T, cfg *config.Config, adapters []sources.Adapter, cache *storage.Cache) *Engine {
	t.Helper()
	return NewEngine(cfg, testLogger(), testRegistry(t), adapters, budget.NewBudgeter(nil, testLogger()), cache)
}

func docItem(text string, rel float64) sources.ContextItem {
	return sources.ContextItem{Kind: sources.KindDoc, Text: text, Relevance: rel, Origin: "docs:/test"}
}

func factItem(text string, rel float64) sources.ContextItem {
	return sources.ContextItem{Kind: sources.KindFact, Text: text, Relevance: rel, Origin: "facts:test"}
}

func TestEnhanceMissThenHitReturnsIdenticalText(t *testing.T) {
	adapter := &fakeAdapter{kind: sources.KindFact, items: []sources.ContextItem{
		factItem("project uses react 18 and postgres 16", 0.9),
	}}
	engine := newTestEngine(t, []sources.Adapter{adapter}, testCache(t))

	prompt := "Build an auth system with React and Postgres"

	first, err := engine.Enhance(context.Background(), prompt, Options{})
	if err != nil {
		t.Fatalf("first Enhance failed: %v", err)
	}
	if first.CacheHit {
		t.Error("first call must be a miss")
	}

	second, err := engine.Enhance(context.Background(), prompt, Options{})
	if err != nil {
		t.Fatalf("second Enhance failed: %v", err)
	}
	if !second.CacheHit {
		t.Error("second call must be a hit")
	}
	if second.EnhancedText != first.EnhancedText {
		t.Errorf("cached text diverged:\nfirst:  %q\nsecond: %q", first.EnhancedText, second.EnhancedText)
	}
	if adapter.calls != 1 {
		t.Errorf("adapters must not run on a cache hit, got %d calls", adapter.calls)
	}
	if second.ContextSummary.ItemCounts[string(sources.KindFact)] != 1 {
		t.Errorf("cached summary lost item counts: %v", second.ContextSummary.ItemCounts)
	}
}

func TestEnhanceGracefulDegradationAllAdaptersFail(t *testing.T) {
	adapters := []sources.Adapter{
		&fakeAdapter{kind: sources.KindFact, err: errors.New("fs error")},
		&fakeAdapter{kind: sources.KindDoc, err: errors.New("network error")},
		&fakeAdapter{kind: sources.KindSnippet, err: errors.New("parse error")},
	}
	engine := newTestEngine(t, adapters, nil)

	prompt := "Add request tracing middleware to the payment service"
	result, err := engine.Enhance(context.Background(), prompt, Options{})
	if err != nil {
		t.Fatalf("Enhance must not fail when sources do: %v", err)
	}

	if result.EnhancedText != prompt {
		t.Errorf("expected original prompt back, got %q", result.EnhancedText)
	}
	for kind, n := range result.ContextSummary.ItemCounts {
		if n != 0 {
			t.Errorf("expected zero %s items, got %d", kind, n)
		}
	}
}

func TestEnhanceQualityGateTrivialPrompt(t *testing.T) {
	// No adapters contribute anything for this prompt; it comes back
	// untouched rather than wrapped in empty boilerplate.
	engine := newTestEngine(t, []sources.Adapter{
		&fakeAdapter{kind: sources.KindDoc},
	}, nil)

	prompt := "How do I create a button?"
	result, err := engine.Enhance(context.Background(), prompt, Options{MaxContextTokens: 100000})
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if result.EnhancedText != prompt {
		t.Errorf("quality gate should return the prompt unmodified, got %q", result.EnhancedText)
	}
}

func TestEnhanceShortPromptPassesThrough(t *testing.T) {
	adapter := &fakeAdapter{kind: sources.KindFact, items: []sources.ContextItem{factItem("x", 0.9)}}
	engine := newTestEngine(t, []sources.Adapter{adapter}, nil)

	result, err := engine.Enhance(context.Background(), "fix bug", Options{})
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if result.EnhancedText != "fix bug" {
		t.Errorf("short prompt must pass through, got %q", result.EnhancedText)
	}
	if adapter.calls != 0 {
		t.Error("short prompts must not trigger gathering")
	}
}

func TestEnhanceDetectedFrameworksProduceDocs(t *testing.T) {
	adapter := &fakeAdapter{kind: sources.KindDoc, items: []sources.ContextItem{
		docItem("React documentation:\nHooks must be called at the top level.", 0.8),
		docItem("PostgreSQL documentation:\nUse parameterized queries.", 0.7),
	}}
	engine := newTestEngine(t, []sources.Adapter{adapter}, nil)

	prompt := "Build an auth system with React and Postgres"
	result, err := engine.Enhance(context.Background(), prompt, Options{})
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}

	if result.ContextSummary.ItemCounts[string(sources.KindDoc)] < 1 {
		t.Errorf("expected doc items, got %v", result.ContextSummary.ItemCounts)
	}
	if len(result.EnhancedText) <= len(prompt) {
		t.Error("enhanced text should extend the prompt")
	}
	if !strings.HasPrefix(result.EnhancedText, prompt) {
		t.Error("enhanced text must start with the original prompt")
	}

	var hasReact, hasPostgres bool
	for _, fw := range result.Frameworks {
		switch fw {
		case "react":
			hasReact = true
		case "postgres":
			hasPostgres = true
		}
	}
	if !hasReact || !hasPostgres {
		t.Errorf("expected react and postgres detected, got %v", result.Frameworks)
	}
}

func TestEnhanceBypassCache(t *testing.T) {
	adapter := &fakeAdapter{kind: sources.KindFact, items: []sources.ContextItem{
		factItem("module pce built with go 1.24", 0.9),
	}}
	engine := newTestEngine(t, []sources.Adapter{adapter}, testCache(t))

	prompt := "Profile the request handler for allocations"
	opts := Options{BypassCache: true}

	for i := 0; i < 2; i++ {
		result, err := engine.Enhance(context.Background(), prompt, opts)
		if err != nil {
			t.Fatalf("Enhance failed: %v", err)
		}
		if result.CacheHit {
			t.Error("bypassed requests must never hit the cache")
		}
	}
	if adapter.calls != 2 {
		t.Errorf("expected 2 adapter calls with cache bypassed, got %d", adapter.calls)
	}
}

func TestEnhanceSourceRestriction(t *testing.T) {
	facts := &fakeAdapter{kind: sources.KindFact, items: []sources.ContextItem{factItem("fact", 0.9)}}
	docs := &fakeAdapter{kind: sources.KindDoc, items: []sources.ContextItem{docItem("doc", 0.9)}}
	engine := newTestEngine(t, []sources.Adapter{facts, docs}, nil)

	prompt := "Wire structured logging into the worker pool"
	result, err := engine.Enhance(context.Background(), prompt, Options{Sources: []string{"fact"}})
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}

	if facts.calls != 1 {
		t.Errorf("fact adapter should run, got %d calls", facts.calls)
	}
	if docs.calls != 0 {
		t.Errorf("doc adapter should be skipped, got %d calls", docs.calls)
	}
	if result.ContextSummary.ItemCounts[string(sources.KindDoc)] != 0 {
		t.Errorf("unexpected doc items: %v", result.ContextSummary.ItemCounts)
	}
}

// slowAdapter sleeps through its deadline without honoring the context,
// the way a stuck network call would.
type slowAdapter struct {
	kind  sources.SourceKind
	delay time.Duration
	items []sources.ContextItem
}

func (s *slowAdapter) Kind() sources.SourceKind { return s.kind }

func (s *slowAdapter) Fetch(ctx context.Context, q sources.Query) ([]sources.ContextItem, error) {
	time.Sleep(s.delay)
	return s.items, nil
}

func TestEnhanceStuckAdapterDoesNotStallRequest(t *testing.T) {
	fast := &fakeAdapter{kind: sources.KindFact, items: []sources.ContextItem{
		factItem("project uses go 1.24", 0.9),
	}}
	stuck := &slowAdapter{kind: sources.KindDoc, delay: 500 * time.Millisecond, items: []sources.ContextItem{
		docItem("doc that arrived too late", 0.9),
	}}

	cfg := config.DefaultConfig()
	cfg.Sources.Docs.TimeoutMs = 50
	engine := newTestEngineWithConfig(t, cfg, []sources.Adapter{fast, stuck}, nil)

	start := time.Now()
	result, err := engine.Enhance(context.Background(), "Wire structured logging into the worker pool", Options{})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if elapsed >= stuck.delay {
		t.Errorf("request waited out the stuck adapter: took %v", elapsed)
	}
	if result.ContextSummary.ItemCounts[string(sources.KindDoc)] != 0 {
		t.Errorf("timed-out adapter's items must be discarded, got %v", result.ContextSummary.ItemCounts)
	}
	if result.ContextSummary.ItemCounts[string(sources.KindFact)] != 1 {
		t.Errorf("fast adapter's items must survive, got %v", result.ContextSummary.ItemCounts)
	}
}

func TestEnhanceVaguePromptGetsGuidance(t *testing.T) {
	engine := newTestEngine(t, []sources.Adapter{
		&fakeAdapter{kind: sources.KindDoc},
	}, nil)

	prompt := "please please help me do it now"
	result, err := engine.Enhance(context.Background(), prompt, Options{})
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if !strings.HasPrefix(result.EnhancedText, prompt) {
		t.Errorf("guidance must follow the original prompt, got %q", result.EnhancedText)
	}
	if result.EnhancedText == prompt {
		t.Error("a vague prompt with no context should carry a guidance note")
	}
	if !strings.Contains(result.EnhancedText, "no project context matched") {
		t.Errorf("expected guidance note, got %q", result.EnhancedText)
	}
}

func TestEnhanceCancelledContext(t *testing.T) {
	engine := newTestEngine(t, []sources.Adapter{
		&fakeAdapter{kind: sources.KindFact, items: []sources.ContextItem{factItem("x", 0.5)}},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Enhance(ctx, "Add metrics to the ingestion pipeline", Options{})
	if err == nil {
		t.Fatal("expected context error")
	}
}
