//go:build !cgo

package sources

import (
	"context"

	"pce/internal/config"
	"pce/internal/logging"
)

// SnippetsAdapter extracts function-level code snippets relevant to the
// prompt. This is a stub implementation for non-CGO builds: without the
// tree-sitter grammars the adapter contributes nothing.
type SnippetsAdapter struct {
	logger *logging.Logger
}

// NewSnippetsAdapter creates a snippet adapter rooted at repoRoot.
func NewSnippetsAdapter(repoRoot string, cfg config.SnippetsSourceConfig, logger *logging.Logger) *SnippetsAdapter {
	return &SnippetsAdapter{logger: logger}
}

// Kind implements Adapter.
func (a *SnippetsAdapter) Kind() SourceKind { return KindSnippet }

// Fetch is a stub that returns no snippets when CGO is disabled.
func (a *SnippetsAdapter) Fetch(ctx context.Context, q Query) ([]ContextItem, error) {
	a.logger.Debug("Snippet extraction unavailable without cgo", nil)
	return nil, nil
}
