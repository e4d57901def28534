// Package patterns implements the adaptive detection registry. Patterns
// carry learned confidence weights that converge toward their observed
// success rate; all mutation flows through a single-writer queue so the
// hot match path never takes a lock.
package patterns

import (
	_ "embed"
	"fmt"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// State represents a pattern's trust level based on accumulated evidence.
type State string

const (
	// StateUnproven is the starting state for every pattern
	StateUnproven State = "unproven"
	// StateTrusted means the pattern has enough usage and a high weight
	StateTrusted State = "trusted"
	// StateDemoted means the weight fell below the minimum success rate;
	// the pattern is excluded from matching but retained for recovery
	StateDemoted State = "demoted"
)

// Pattern is one weighted detection rule for a framework or library.
type Pattern struct {
	ID           string    `json:"id"`
	Category     string    `json:"category"`
	Expr         string    `json:"expr"`
	Weight       float64   `json:"weight"`
	SuccessCount int       `json:"successCount"`
	UsageCount   int       `json:"usageCount"`
	LastUpdated  time.Time `json:"lastUpdated"`
	State        State     `json:"state"`

	matcher *regexp.Regexp
}

// Compile compiles the pattern expression. Must be called before matching.
func (p *Pattern) Compile() error {
	re, err := regexp.Compile(p.Expr)
	if err != nil {
		return fmt.Errorf("pattern %s: %w", p.ID, err)
	}
	p.matcher = re
	return nil
}

// clone returns a deep copy safe to hand out in snapshots.
func (p *Pattern) clone() *Pattern {
	cp := *p
	return &cp
}

// Match is one detection result from Registry.Match.
type Match struct {
	PatternID string  `json:"patternId"`
	Category  string  `json:"category"`
	Weight    float64 `json:"weight"`
	Strength  float64 `json:"strength"`
	Score     float64 `json:"score"`
}

// LearningEvent records one observed outcome for a pattern.
type LearningEvent struct {
	PatternID     string    `json:"patternId"`
	WasSuccessful bool      `json:"wasSuccessful"`
	Timestamp     time.Time `json:"timestamp"`
}

//go:embed patterns.toml
var seedCatalog []byte

type seedFile struct {
	Patterns []seedPattern `toml:"patterns"`
}

type seedPattern struct {
	ID       string  `toml:"id"`
	Category string  `toml:"category"`
	Expr     string  `toml:"expr"`
	Weight   float64 `toml:"weight"`
}

// SeedPatterns returns the built-in detection catalog, compiled and in
// the unproven state.
func SeedPatterns() ([]*Pattern, error) {
	var sf seedFile
	if err := toml.Unmarshal(seedCatalog, &sf); err != nil {
		return nil, fmt.Errorf("decode seed catalog: %w", err)
	}

	patterns := make([]*Pattern, 0, len(sf.Patterns))
	for _, sp := range sf.Patterns {
		p := &Pattern{
			ID:          sp.ID,
			Category:    sp.Category,
			Expr:        sp.Expr,
			Weight:      sp.Weight,
			State:       StateUnproven,
			LastUpdated: time.Now(),
		}
		if err := p.Compile(); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}

	return patterns, nil
}
