// Package sources implements the context source adapters: project facts,
// documentation lookup, and code snippets. Adapters share one contract
// and independently cap and deduplicate what they return; a failing
// adapter degrades to an empty contribution, never a failed request.
package sources

import (
	"context"
	"sort"
)

// SourceKind identifies the provenance class of a context item.
type SourceKind string

const (
	// KindFact is a project-level fact (stack, manifest, layout)
	KindFact SourceKind = "fact"
	// KindSnippet is an extracted code snippet
	KindSnippet SourceKind = "snippet"
	// KindDoc is a documentation fragment
	KindDoc SourceKind = "doc"
)

// ContextItem is one unit of retrieved supporting material. Immutable
// once produced.
type ContextItem struct {
	Kind      SourceKind `json:"kind"`
	Text      string     `json:"text"`
	Relevance float64    `json:"relevance"`
	Origin    string     `json:"origin"`
}

// Query carries what an adapter needs to fetch context for one request.
type Query struct {
	Prompt     string
	Frameworks []string
}

// Adapter is the uniform context-source contract. Fetch errors are
// recovered by the orchestrator: the source contributes nothing and the
// request proceeds.
type Adapter interface {
	Kind() SourceKind
	Fetch(ctx context.Context, q Query) ([]ContextItem, error)
}

// topByRelevance sorts items by relevance descending (stable on text for
// determinism) and keeps at most max.
func topByRelevance(items []ContextItem, max int) []ContextItem {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Relevance != items[j].Relevance {
			return items[i].Relevance > items[j].Relevance
		}
		return items[i].Text < items[j].Text
	})
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return items
}
