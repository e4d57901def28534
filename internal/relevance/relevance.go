// Package relevance scores lexical overlap between a prompt and candidate
// context. Scoring is statistical, not semantic: it is the deliberate
// stand-in for an embedding model and degrades nowhere.
package relevance

import (
	"strings"
	"unicode"
)

// stopwords is a set of common English words excluded from scoring.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "is": true, "it": true, "as": true,
	"be": true, "was": true, "are": true, "were": true, "has": true, "have": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "this": true, "that": true,
	"these": true, "those": true, "not": true, "no": true, "if": true,
	"then": true, "else": true, "when": true, "which": true, "who": true,
	"what": true, "where": true, "how": true, "can": true, "i": true,
	"my": true, "me": true, "we": true, "you": true, "your": true, "so": true,
	"about": true, "into": true, "up": true, "out": true, "some": true,
	"want": true, "need": true, "like": true, "make": true, "use": true,
	"using": true, "please": true, "help": true,
}

// synonyms maps common programming abbreviations to their full forms so
// that "auth" in a prompt matches "authentication" in a doc fragment.
var synonyms = map[string]string{
	"auth":   "authentication",
	"db":     "database",
	"err":    "error",
	"config": "configuration",
	"env":    "environment",
	"repo":   "repository",
	"msg":    "message",
	"req":    "request",
	"res":    "response",
	"resp":   "response",
	"ctx":    "context",
	"fn":     "function",
	"func":   "function",
	"pkg":    "package",
	"cmd":    "command",
	"arg":    "argument",
	"args":   "arguments",
	"param":  "parameter",
	"params": "parameters",
	"btn":    "button",
	"nav":    "navigation",
	"impl":   "implementation",
	"init":   "initialize",
	"lib":    "library",
	"dev":    "development",
	"prod":   "production",
	"dep":    "dependency",
	"deps":   "dependencies",
}

// suffixes to strip for simple stemming, ordered longest first.
var stemmingSuffixes = []string{
	"ation", "tion", "ment", "ness", "able", "ible",
	"ing", "ous", "ive", "ful", "less",
	"ed", "ly", "er", "al", "es", "s",
}

// stem strips common English suffixes. Only applied to words of 5+ chars;
// the result must keep at least 3 chars.
func stem(word string) string {
	if len(word) < 5 {
		return word
	}
	for _, suffix := range stemmingSuffixes {
		if strings.HasSuffix(word, suffix) {
			s := word[:len(word)-len(suffix)]
			if len(s) >= 3 {
				return foldStem(s)
			}
		}
	}
	return foldStem(word)
}

// foldStem collapses spelling variants left over after suffix removal
// so both sides of an inflection pair land on the same stem: "caching"
// and "cache" both become "cach", "strategies" and "strategy" both
// become "strategy".
func foldStem(s string) string {
	if strings.HasSuffix(s, "i") {
		return s[:len(s)-1] + "y"
	}
	if strings.HasSuffix(s, "e") && len(s) > 4 {
		return s[:len(s)-1]
	}
	return s
}

// Tokenize splits text into lowercase tokens, dropping stopwords and
// single-character tokens. Each surviving token contributes its stemmed
// form and synonym expansion as well.
func Tokenize(text string) []string {
	text = strings.ToLower(text)

	raw := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var tokens []string
	for _, t := range raw {
		if len(t) < 2 || stopwords[t] {
			continue
		}
		tokens = append(tokens, t)
		if s := stem(t); s != t {
			tokens = append(tokens, s)
		}
		if syn, ok := synonyms[t]; ok {
			tokens = append(tokens, syn)
		}
	}

	return tokens
}

// TermSet builds the deduplicated token set for a text.
func TermSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokenize(text) {
		set[t] = true
	}
	return set
}

// Score returns how relevant candidate text is to a query, in [0,1].
// It is the fraction of distinct query terms covered by the candidate —
// coverage rather than Jaccard, so long candidates are not penalized for
// containing extra material.
func Score(query, candidate string) float64 {
	queryTerms := TermSet(query)
	if len(queryTerms) == 0 {
		return 0
	}

	candidateTerms := TermSet(candidate)
	matched := 0
	for term := range queryTerms {
		if candidateTerms[term] {
			matched++
		}
	}

	return float64(matched) / float64(len(queryTerms))
}

// Specificity estimates how much concrete signal a prompt carries, in
// [0,1]. A prompt with many distinct non-stopword terms is specific
// enough to stand on its own; a two-word prompt is not. Saturates at
// eight distinct terms.
func Specificity(prompt string) float64 {
	distinct := len(TermSet(prompt))
	const saturation = 8
	if distinct >= saturation {
		return 1.0
	}
	return float64(distinct) / float64(saturation)
}
