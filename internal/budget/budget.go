// Package budget fits retrieved context items into a token allowance.
// Token counts are estimated from text length; the pipeline never calls
// a tokenizer. Items that cannot fit whole are summarized when an LLM
// is configured and hard-truncated otherwise.
package budget

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"pce/internal/llm"
	"pce/internal/logging"
	"pce/internal/sources"
)

// charsPerToken is the estimation ratio. Four characters per token is
// the usual English-text approximation.
const charsPerToken = 4

// EstimateTokens returns the approximate token count of text.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Bundle is the budgeted context selection for one request.
type Bundle struct {
	Items       []sources.ContextItem
	TotalTokens int
	// Summarized is true when the selection is lossy: at least one
	// item was paraphrased, truncated, or dropped.
	Summarized bool
	// Dropped counts items that did not fit at all.
	Dropped int
	// Shortened counts items that were summarized or truncated.
	Shortened int
	// KindCounts holds how many kept items each source kind contributed.
	KindCounts map[sources.SourceKind]int
}

// Budgeter applies a token allowance to context items. A nil completer
// disables summarization; oversized items are truncated instead.
type Budgeter struct {
	completer llm.Completer
	logger    *logging.Logger
}

// NewBudgeter creates a budgeter. completer may be nil.
func NewBudgeter(completer llm.Completer, logger *logging.Logger) *Budgeter {
	return &Budgeter{completer: completer, logger: logger}
}

// Apply selects the most relevant items that fit within maxTokens.
// Items are considered in relevance order; an item that does not fit
// the remaining budget is dropped, not partially included. The one
// exception is an item that alone exceeds the entire allowance: it is
// summarized (or truncated) down to the allowance so that a single
// highly relevant oversized document still contributes.
func (b *Budgeter) Apply(ctx context.Context, items []sources.ContextItem, maxTokens int) Bundle {
	bundle := Bundle{KindCounts: make(map[sources.SourceKind]int)}
	if maxTokens <= 0 || len(items) == 0 {
		return bundle
	}

	sorted := make([]sources.ContextItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Relevance > sorted[j].Relevance
	})

	for _, item := range sorted {
		itemTokens := EstimateTokens(item.Text)

		shortened := false
		if itemTokens > maxTokens {
			item = b.shrink(ctx, item, maxTokens)
			itemTokens = EstimateTokens(item.Text)
			shortened = true
		}

		if bundle.TotalTokens+itemTokens > maxTokens {
			bundle.Dropped++
			continue
		}

		if shortened {
			bundle.Shortened++
		}
		bundle.Items = append(bundle.Items, item)
		bundle.TotalTokens += itemTokens
		bundle.KindCounts[item.Kind]++
	}

	bundle.Summarized = bundle.Shortened > 0 || bundle.Dropped > 0

	return bundle
}

// shrink reduces an oversized item to at most maxTokens, preferring an
// LLM paraphrase over blind truncation when a completer is configured.
func (b *Budgeter) shrink(ctx context.Context, item sources.ContextItem, maxTokens int) sources.ContextItem {
	if b.completer != nil {
		summary, err := b.summarize(ctx, item.Text, maxTokens)
		if err != nil {
			b.logger.Warn("Summarization failed, truncating", map[string]interface{}{
				"origin": item.Origin,
				"error":  err.Error(),
			})
		} else if summary != "" && EstimateTokens(summary) <= maxTokens {
			item.Text = summary
			return item
		}
	}

	item.Text = truncateToTokens(item.Text, maxTokens)
	return item
}

func (b *Budgeter) summarize(ctx context.Context, text string, maxTokens int) (string, error) {
	messages := []llm.Message{
		{
			Role:    "system",
			Content: "Condense the following technical context. Keep concrete identifiers, versions, and API names. Output only the condensed text.",
		},
		{Role: "user", Content: text},
	}

	out, err := b.completer.Complete(ctx, messages, llm.CompleteOptions{
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// truncateToTokens cuts text to the estimated token allowance, breaking
// at the last line boundary when one exists in the tail. The cut never
// splits a multi-byte rune.
func truncateToTokens(text string, maxTokens int) string {
	maxChars := maxTokens * charsPerToken
	if len(text) <= maxChars {
		return text
	}
	for maxChars > 0 && !utf8.RuneStart(text[maxChars]) {
		maxChars--
	}
	cut := text[:maxChars]
	if idx := strings.LastIndex(cut, "\n"); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return cut
}
