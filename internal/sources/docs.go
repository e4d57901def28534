package sources

import (
	"context"
	"fmt"
	"strings"

	"pce/internal/config"
	"pce/internal/docsclient"
	"pce/internal/logging"
	"pce/internal/relevance"
)

// DocsAdapter fetches documentation fragments for the frameworks
// detected in a prompt. One library contributes at most one item.
type DocsAdapter struct {
	client docsclient.Client
	cfg    config.DocsSourceConfig
	logger *logging.Logger
}

// NewDocsAdapter creates a documentation adapter over the given client.
func NewDocsAdapter(client docsclient.Client, cfg config.DocsSourceConfig, logger *logging.Logger) *DocsAdapter {
	return &DocsAdapter{client: client, cfg: cfg, logger: logger}
}

// Kind implements Adapter.
func (a *DocsAdapter) Kind() SourceKind { return KindDoc }

// Fetch implements Adapter. Resolution or fetch failures for one
// framework skip that framework; only a fully failed fetch reports an
// error.
func (a *DocsAdapter) Fetch(ctx context.Context, q Query) ([]ContextItem, error) {
	if len(q.Frameworks) == 0 {
		return nil, nil
	}

	topic := topicFromPrompt(q.Prompt)

	var items []ContextItem
	seenLibraries := make(map[string]bool)
	var failures int

	for _, framework := range q.Frameworks {
		select {
		case <-ctx.Done():
			return items, ctx.Err()
		default:
		}

		refs, err := a.client.ResolveLibrary(ctx, framework)
		if err != nil {
			failures++
			a.logger.Warn("Library resolution failed", map[string]interface{}{
				"framework": framework,
				"error":     err.Error(),
			})
			continue
		}
		if len(refs) == 0 {
			continue
		}

		ref := bestRef(refs, framework)
		if seenLibraries[ref.ID] {
			continue
		}
		seenLibraries[ref.ID] = true

		result, err := a.client.GetDocs(ctx, ref, topic, a.cfg.MaxDocTokens)
		if err != nil {
			failures++
			a.logger.Warn("Documentation fetch failed", map[string]interface{}{
				"library": ref.ID,
				"error":   err.Error(),
			})
			continue
		}
		if strings.TrimSpace(result.Content) == "" {
			continue
		}

		items = append(items, ContextItem{
			Kind:      KindDoc,
			Text:      fmt.Sprintf("%s documentation:\n%s", ref.Name, strings.TrimSpace(result.Content)),
			Relevance: docRelevance(q.Prompt, ref, result.Content),
			Origin:    "docs:" + ref.ID,
		})
	}

	if len(items) == 0 && failures > 0 {
		return nil, fmt.Errorf("all %d documentation lookups failed", failures)
	}

	return topByRelevance(items, a.cfg.MaxItems), nil
}

// bestRef prefers an exact name match, then the highest trust score.
func bestRef(refs []docsclient.LibraryRef, framework string) docsclient.LibraryRef {
	best := refs[0]
	for _, ref := range refs {
		if strings.EqualFold(ref.Name, framework) {
			return ref
		}
		if ref.TrustScore > best.TrustScore {
			best = ref
		}
	}
	return best
}

// docRelevance blends the provider's trust score with lexical overlap
// between the prompt and the fetched content.
func docRelevance(prompt string, ref docsclient.LibraryRef, content string) float64 {
	trust := ref.TrustScore
	if trust <= 0 || trust > 1 {
		trust = 0.5
	}
	return 0.5*trust + 0.5*relevance.Score(prompt, content)
}

// topicFromPrompt reduces the prompt to its distinct content terms so
// the provider can scope the documentation fetch.
func topicFromPrompt(prompt string) string {
	terms := relevance.Tokenize(prompt)
	seen := make(map[string]bool, len(terms))
	var distinct []string
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		distinct = append(distinct, t)
		if len(distinct) == 6 {
			break
		}
	}
	return strings.Join(distinct, " ")
}
