// Package fingerprint computes deterministic cache keys for enhancement
// requests. Identical inputs always produce identical keys, across calls
// and across process restarts.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint is a stable hex-encoded cache key.
type Fingerprint string

// Options captures the request options that participate in the cache key.
// Fields are serialized in a fixed order; zero values serialize to a
// canonical empty representation so the function never fails.
type Options struct {
	MaxContextTokens int
	Sources          []string
	Model            string
}

// Compute derives the fingerprint for (prompt, options, frameworks).
// The prompt is case- and whitespace-normalized so trivially different
// spellings of the same request still hit the cache. Framework order does
// not affect the result.
func Compute(prompt string, opts Options, frameworks []string) Fingerprint {
	h := sha256.New()

	h.Write([]byte("prompt:"))
	h.Write([]byte(NormalizePrompt(prompt)))
	h.Write([]byte{0})

	h.Write([]byte("maxTokens:"))
	h.Write([]byte(strconv.Itoa(opts.MaxContextTokens)))
	h.Write([]byte{0})

	h.Write([]byte("sources:"))
	h.Write([]byte(canonicalList(opts.Sources)))
	h.Write([]byte{0})

	h.Write([]byte("model:"))
	h.Write([]byte(strings.ToLower(strings.TrimSpace(opts.Model))))
	h.Write([]byte{0})

	h.Write([]byte("frameworks:"))
	h.Write([]byte(canonicalList(frameworks)))

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// NormalizePrompt lowercases the prompt and collapses all whitespace runs
// to single spaces.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// canonicalList lowercases, deduplicates, and sorts entries, then joins
// them with a separator that cannot appear in a normalized entry.
func canonicalList(values []string) string {
	seen := make(map[string]bool, len(values))
	normalized := make([]string, 0, len(values))
	for _, v := range values {
		n := strings.ToLower(strings.TrimSpace(v))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	sort.Strings(normalized)
	return strings.Join(normalized, "\x1f")
}
