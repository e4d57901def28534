// Package enhance implements the enhancement pipeline: framework
// detection, cache probe, parallel context gathering, budgeting, and
// payload composition. No request-level failure escapes; the worst case
// is returning the original prompt with an empty context summary.
package enhance

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"pce/internal/budget"
	"pce/internal/config"
	"pce/internal/fingerprint"
	"pce/internal/logging"
	"pce/internal/patterns"
	"pce/internal/relevance"
	"pce/internal/sources"
	"pce/internal/storage"
)

// specificityGate is the lexical-specificity threshold above which an
// unenhanceable prompt is considered clear enough to return unmodified.
const specificityGate = 0.25

// vagueHint is appended when a prompt was both too vague to match any
// context source and too thin to stand on its own.
const vagueHint = "\n\n---\nNote: no project context matched this prompt. Naming a framework, file, or error message will produce better results."

// Options controls one enhancement request. Zero values fall back to
// the configured defaults.
type Options struct {
	// MaxContextTokens caps the assembled context size.
	MaxContextTokens int `json:"maxContextTokens,omitempty"`
	// Sources restricts which source kinds run (fact, snippet, doc).
	// Empty means all enabled sources.
	Sources []string `json:"sources,omitempty"`
	// Model is the downstream model the prompt targets. Part of the
	// cache key only.
	Model string `json:"model,omitempty"`
	// BypassCache skips both the cache probe and the cache write.
	BypassCache bool `json:"bypassCache,omitempty"`
}

// ContextSummary describes what went into an enhanced prompt.
type ContextSummary struct {
	ItemCounts  map[string]int `json:"itemCounts"`
	Summarized  bool           `json:"summarized"`
	TotalTokens int            `json:"totalTokens"`
}

// Result is the outcome of one enhancement request.
type Result struct {
	EnhancedText   string           `json:"enhancedText"`
	ContextSummary ContextSummary   `json:"contextSummary"`
	CacheHit       bool             `json:"cacheHit"`
	Fingerprint    string           `json:"fingerprint"`
	Frameworks     []string         `json:"frameworks,omitempty"`
	Matches        []patterns.Match `json:"matches,omitempty"`
}

// Engine orchestrates the enhancement pipeline. All collaborators are
// injected; a nil cache degrades to always-miss.
type Engine struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *patterns.Registry
	adapters []sources.Adapter
	budgeter *budget.Budgeter
	cache    *storage.Cache
}

// NewEngine wires the pipeline together.
func NewEngine(cfg *config.Config, logger *logging.Logger, registry *patterns.Registry, adapters []sources.Adapter, budgeter *budget.Budgeter, cache *storage.Cache) *Engine {
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		adapters: adapters,
		budgeter: budgeter,
		cache:    cache,
	}
}

// Enhance runs one request through the pipeline. The returned error is
// reserved for context cancellation; every internal failure degrades to
// a usable result instead.
func (e *Engine) Enhance(ctx context.Context, prompt string, opts Options) (*Result, error) {
	start := time.Now()
	prompt = strings.TrimSpace(prompt)

	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = e.cfg.Budget.MaxContextTokens
	}

	if len(prompt) < e.cfg.Budget.MinPromptLength {
		return passthrough(prompt), nil
	}

	matches := e.registry.Match(prompt)
	frameworks := frameworkNames(matches)

	key := string(fingerprint.Compute(prompt, fingerprint.Options{
		MaxContextTokens: opts.MaxContextTokens,
		Sources:          opts.Sources,
		Model:            opts.Model,
	}, frameworks))

	if !opts.BypassCache {
		if res, ok := e.probeCache(key); ok {
			res.Frameworks = frameworks
			res.Matches = matches
			e.logger.Debug("Cache hit", map[string]interface{}{
				"fingerprint": key,
				"durationMs":  time.Since(start).Milliseconds(),
			})
			return res, nil
		}
	}

	items := e.gather(ctx, sources.Query{Prompt: prompt, Frameworks: frameworks}, opts.Sources)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundle := e.budgeter.Apply(ctx, items, opts.MaxContextTokens)

	e.reportDetection(matches, bundle)

	result := &Result{
		Fingerprint: key,
		Frameworks:  frameworks,
		Matches:     matches,
		ContextSummary: ContextSummary{
			ItemCounts:  itemCounts(bundle),
			Summarized:  bundle.Summarized,
			TotalTokens: bundle.TotalTokens,
		},
	}

	if len(bundle.Items) == 0 {
		// Nothing to add. A sufficiently specific prompt stands on
		// its own rather than being wrapped in empty boilerplate; a
		// vague one gets a hint about why nothing was found.
		if relevance.Specificity(prompt) >= specificityGate {
			result.EnhancedText = prompt
			e.logger.Debug("Quality gate: returning prompt unmodified", map[string]interface{}{
				"fingerprint": key,
			})
		} else {
			result.EnhancedText = prompt + vagueHint
		}
		return result, nil
	}

	result.EnhancedText = compose(prompt, bundle)

	if !opts.BypassCache {
		e.writeCache(key, result)
	}

	e.logger.Info("Prompt enhanced", map[string]interface{}{
		"fingerprint": key,
		"items":       len(bundle.Items),
		"tokens":      bundle.TotalTokens,
		"summarized":  bundle.Summarized,
		"durationMs":  time.Since(start).Milliseconds(),
	})

	return result, nil
}

// passthrough is the result for prompts too short to enhance.
func passthrough(prompt string) *Result {
	return &Result{
		EnhancedText:   prompt,
		ContextSummary: ContextSummary{ItemCounts: emptyCounts()},
	}
}

// probeCache returns a cached result when one exists. Cache failures
// degrade to a miss.
func (e *Engine) probeCache(key string) (*Result, bool) {
	if e.cache == nil || !e.cfg.Cache.Enabled {
		return nil, false
	}

	entry, found, err := e.cache.Get(key)
	if err != nil {
		e.logger.Warn("Cache unavailable, proceeding without it", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}
	if !found {
		return nil, false
	}

	summary := ContextSummary{ItemCounts: emptyCounts()}
	if entry.ContextSummary != "" {
		if err := json.Unmarshal([]byte(entry.ContextSummary), &summary); err != nil {
			e.logger.Warn("Corrupt cached summary, ignoring", map[string]interface{}{
				"fingerprint": key,
				"error":       err.Error(),
			})
			summary = ContextSummary{ItemCounts: emptyCounts()}
		}
	}

	return &Result{
		EnhancedText:   entry.EnhancedText,
		ContextSummary: summary,
		CacheHit:       true,
		Fingerprint:    key,
	}, true
}

func (e *Engine) writeCache(key string, result *Result) {
	if e.cache == nil || !e.cfg.Cache.Enabled {
		return
	}

	summaryJSON, err := json.Marshal(result.ContextSummary)
	if err != nil {
		summaryJSON = []byte("{}")
	}

	ttl := time.Duration(e.cfg.Cache.TtlSeconds) * time.Second
	if err := e.cache.Put(key, result.EnhancedText, string(summaryJSON), ttl); err != nil {
		e.logger.Warn("Cache write failed", map[string]interface{}{
			"fingerprint": key,
			"error":       err.Error(),
		})
	}
}

type adapterResult struct {
	kind  sources.SourceKind
	items []sources.ContextItem
	err   error
}

// gather fans the enabled adapters out in parallel, each under its own
// timeout, and merges whatever settled successfully. A timed-out
// adapter's late result is discarded with its context.
func (e *Engine) gather(ctx context.Context, q sources.Query, only []string) []sources.ContextItem {
	adapters := e.enabledAdapters(only)
	if len(adapters) == 0 {
		return nil
	}

	results := make(chan adapterResult, len(adapters))

	for _, adapter := range adapters {
		go func(a sources.Adapter) {
			actx, cancel := context.WithTimeout(ctx, e.timeoutFor(a.Kind()))
			defer cancel()

			fetched := make(chan adapterResult, 1)
			go func() {
				items, err := a.Fetch(actx, q)
				fetched <- adapterResult{kind: a.Kind(), items: items, err: err}
			}()

			select {
			case res := <-fetched:
				results <- res
			case <-actx.Done():
				// An adapter that ignores cancellation keeps running,
				// but its eventual send lands in the buffered channel
				// and is never read.
				results <- adapterResult{kind: a.Kind(), err: actx.Err()}
			}
		}(adapter)
	}

	var merged []sources.ContextItem
	for range adapters {
		res := <-results
		if res.err != nil {
			e.logger.Warn("Context source failed, proceeding without it", map[string]interface{}{
				"source": string(res.kind),
				"error":  res.err.Error(),
			})
			continue
		}
		merged = append(merged, res.items...)
	}

	return merged
}

// enabledAdapters filters the wired adapters by configuration and by
// the request's source restriction.
func (e *Engine) enabledAdapters(only []string) []sources.Adapter {
	requested := make(map[string]bool, len(only))
	for _, s := range only {
		requested[strings.ToLower(s)] = true
	}

	var out []sources.Adapter
	for _, a := range e.adapters {
		if !e.kindEnabled(a.Kind()) {
			continue
		}
		if len(requested) > 0 && !requested[string(a.Kind())] {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (e *Engine) kindEnabled(kind sources.SourceKind) bool {
	switch kind {
	case sources.KindFact:
		return e.cfg.Sources.Facts.Enabled
	case sources.KindSnippet:
		return e.cfg.Sources.Snippets.Enabled
	case sources.KindDoc:
		return e.cfg.Sources.Docs.Enabled
	}
	return false
}

func (e *Engine) timeoutFor(kind sources.SourceKind) time.Duration {
	ms := 5000
	switch kind {
	case sources.KindFact:
		ms = e.cfg.Sources.Facts.TimeoutMs
	case sources.KindSnippet:
		ms = e.cfg.Sources.Snippets.TimeoutMs
	case sources.KindDoc:
		ms = e.cfg.Sources.Docs.TimeoutMs
	}
	if ms <= 0 {
		ms = 5000
	}
	return time.Duration(ms) * time.Millisecond
}

// reportDetection feeds the detection outcome back to the registry. A
// detection counts as successful when the gathered context actually
// contains documentation for some detected framework; detections that
// produced nothing usable are negative signal.
func (e *Engine) reportDetection(matches []patterns.Match, bundle budget.Bundle) {
	if len(matches) == 0 {
		return
	}
	successful := bundle.KindCounts[sources.KindDoc] > 0
	for _, m := range matches {
		e.registry.RecordOutcome(m.PatternID, successful)
	}
}

// frameworkNames reduces matches to their distinct pattern IDs, best
// match first. The ID doubles as the name documentation is resolved
// under.
func frameworkNames(matches []patterns.Match) []string {
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if seen[m.PatternID] {
			continue
		}
		seen[m.PatternID] = true
		out = append(out, m.PatternID)
	}
	return out
}

func itemCounts(bundle budget.Bundle) map[string]int {
	counts := emptyCounts()
	for kind, n := range bundle.KindCounts {
		counts[string(kind)] = n
	}
	return counts
}

func emptyCounts() map[string]int {
	return map[string]int{
		string(sources.KindFact):    0,
		string(sources.KindSnippet): 0,
		string(sources.KindDoc):     0,
	}
}

// sectionTitles orders and labels the composed context sections.
var sectionTitles = []struct {
	kind  sources.SourceKind
	title string
}{
	{sources.KindFact, "Project facts"},
	{sources.KindDoc, "Documentation"},
	{sources.KindSnippet, "Related code"},
}

// compose assembles the final enhanced payload: the original prompt
// followed by the budgeted context grouped by source kind.
func compose(prompt string, bundle budget.Bundle) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n---\nRelevant context:\n")

	for _, section := range sectionTitles {
		var sectionItems []sources.ContextItem
		for _, item := range bundle.Items {
			if item.Kind == section.kind {
				sectionItems = append(sectionItems, item)
			}
		}
		if len(sectionItems) == 0 {
			continue
		}
		sort.SliceStable(sectionItems, func(i, j int) bool {
			return sectionItems[i].Relevance > sectionItems[j].Relevance
		})

		sb.WriteString("\n## ")
		sb.WriteString(section.title)
		sb.WriteString("\n")
		for _, item := range sectionItems {
			sb.WriteString("- ")
			sb.WriteString(strings.ReplaceAll(strings.TrimSpace(item.Text), "\n", "\n  "))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
