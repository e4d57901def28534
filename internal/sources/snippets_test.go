//go:build cgo

package sources

import (
	"context"
	"strings"
	"testing"

	"pce/internal/config"
)

func snippetsConfig() config.SnippetsSourceConfig {
	return config.SnippetsSourceConfig{
		Enabled:          true,
		MaxItems:         10,
		TimeoutMs:        3000,
		MaxFileSizeBytes: 1000000,
		MaxFilesScanned:  100,
		Ignore:           []string{"node_modules", "vendor"},
	}
}

func TestSnippetsAdapterExtractsRelevantFunctions(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "auth.go", `package main

func ValidateToken(token string) bool {
	return token != ""
}

func unrelatedHousekeeping() {
	_ = 42
}
`)

	adapter := NewSnippetsAdapter(tmpDir, snippetsConfig(), testLogger())
	items, err := adapter.Fetch(context.Background(), Query{Prompt: "validate the auth token"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected at least one snippet")
	}

	found := false
	for _, item := range items {
		if item.Kind != KindSnippet {
			t.Errorf("expected snippet kind, got %s", item.Kind)
		}
		if strings.Contains(item.Text, "ValidateToken") {
			found = true
		}
		if strings.Contains(item.Text, "unrelatedHousekeeping") {
			t.Error("irrelevant function should not be extracted")
		}
	}
	if !found {
		t.Error("expected ValidateToken snippet")
	}
}

func TestSnippetsAdapterSkipsIgnoredDirs(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "node_modules/lib.js", `function parseToken(token) { return token; }`)
	writeFile(t, tmpDir, ".git/hook.py", "def parse_token(token):\n    return token\n")

	adapter := NewSnippetsAdapter(tmpDir, snippetsConfig(), testLogger())
	items, err := adapter.Fetch(context.Background(), Query{Prompt: "parse token"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected ignored dirs to be skipped, got %d items", len(items))
	}
}

func TestSnippetsAdapterPythonAndJavascript(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "handlers.py", "def fetch_orders(session):\n    return session.query()\n")
	writeFile(t, tmpDir, "orders.js", "function renderOrders(orders) { return orders.map(render); }\n")

	adapter := NewSnippetsAdapter(tmpDir, snippetsConfig(), testLogger())
	items, err := adapter.Fetch(context.Background(), Query{Prompt: "fetch and render orders"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) < 2 {
		t.Fatalf("expected snippets from both files, got %d", len(items))
	}

	for _, item := range items {
		if !strings.HasPrefix(item.Text, "From ") {
			t.Errorf("snippet text missing provenance header: %q", item.Text)
		}
		if !strings.Contains(item.Origin, ":") {
			t.Errorf("origin missing line range: %q", item.Origin)
		}
	}
}

func TestSnippetsAdapterTruncatesLongFunctions(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("package main\n\nfunc processPayments() {\n")
	for i := 0; i < 80; i++ {
		sb.WriteString("\t_ = 1\n")
	}
	sb.WriteString("}\n")

	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "pay.go", sb.String())

	adapter := NewSnippetsAdapter(tmpDir, snippetsConfig(), testLogger())
	items, err := adapter.Fetch(context.Background(), Query{Prompt: "process payments"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 snippet, got %d", len(items))
	}
	if !strings.Contains(items[0].Text, "// ...") {
		t.Error("expected truncation marker in long snippet")
	}
	if got := strings.Count(items[0].Text, "\n"); got > snippetMaxLines+3 {
		t.Errorf("snippet too long: %d lines", got)
	}
}
