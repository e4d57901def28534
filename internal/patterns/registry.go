package patterns

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"pce/internal/config"
	"pce/internal/logging"
)

// Store persists patterns and learning events. Implementations must be
// safe for use from the registry's writer goroutine only.
type Store interface {
	LoadPatterns() ([]*Pattern, error)
	UpsertPattern(p *Pattern) error
	AppendEvent(ev LearningEvent) error
	PruneEvents(keep int) error
}

type cmdKind int

const (
	cmdUsage cmdKind = iota
	cmdOutcome
	cmdSync
)

type command struct {
	kind      cmdKind
	patternID string
	ok        bool
	ts        time.Time
	reply     chan struct{}
}

// Registry holds the weighted detection patterns. Reads go through an
// immutable snapshot; all writes are applied by a single goroutine that
// owns the authoritative state, so concurrent learning events cannot be
// lost. Match results may lag behind in-flight updates.
type Registry struct {
	cfg    config.LearningConfig
	logger *logging.Logger
	store  Store

	snapshot atomic.Value // []*Pattern

	commands  chan command
	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates a registry from the store's persisted patterns,
// falling back to the built-in seed catalog when the store is empty or
// nil. The update goroutine starts immediately.
func NewRegistry(cfg config.LearningConfig, logger *logging.Logger, store Store) (*Registry, error) {
	var loaded []*Pattern
	if store != nil {
		var err error
		loaded, err = store.LoadPatterns()
		if err != nil {
			return nil, fmt.Errorf("load patterns: %w", err)
		}
	}

	if len(loaded) == 0 {
		seeded, err := SeedPatterns()
		if err != nil {
			return nil, err
		}
		loaded = seeded
		if store != nil {
			for _, p := range seeded {
				if err := store.UpsertPattern(p); err != nil {
					logger.Warn("Failed to persist seed pattern", map[string]interface{}{
						"pattern": p.ID,
						"error":   err.Error(),
					})
				}
			}
		}
	}

	owned := make(map[string]*Pattern, len(loaded))
	for _, p := range loaded {
		if p.matcher == nil {
			if err := p.Compile(); err != nil {
				return nil, err
			}
		}
		owned[p.ID] = p
	}

	r := &Registry{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		commands: make(chan command, 256),
		done:     make(chan struct{}),
	}
	r.publish(owned)

	go r.run(owned)

	return r, nil
}

// Match returns all non-demoted patterns matching the text, sorted by
// weight*strength descending. Ties are broken by the older pattern
// winning, preferring stability over recency. Each returned match records
// a usage tick asynchronously; success is reported later via
// RecordOutcome.
func (r *Registry) Match(text string) []Match {
	snap := r.snap()

	var matches []Match
	for _, p := range snap {
		if p.State == StateDemoted {
			continue
		}
		hits := p.matcher.FindAllStringIndex(text, 3)
		if len(hits) == 0 {
			continue
		}

		strength := 0.5 + 0.25*float64(len(hits)-1)
		if strength > 1.0 {
			strength = 1.0
		}

		matches = append(matches, Match{
			PatternID: p.ID,
			Category:  p.Category,
			Weight:    p.Weight,
			Strength:  strength,
			Score:     p.Weight * strength,
		})

		r.enqueue(command{kind: cmdUsage, patternID: p.ID, ts: time.Now()})
	}

	lastUpdated := make(map[string]time.Time, len(snap))
	for _, p := range snap {
		lastUpdated[p.ID] = p.LastUpdated
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return lastUpdated[matches[i].PatternID].Before(lastUpdated[matches[j].PatternID])
	})

	return matches
}

// DetectFrameworks returns the IDs of all patterns matching the text,
// best score first.
func (r *Registry) DetectFrameworks(text string) []string {
	matches := r.Match(text)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.PatternID)
	}
	return ids
}

// RecordOutcome feeds one learning event into the registry. The weight
// update is applied asynchronously by the writer goroutine.
func (r *Registry) RecordOutcome(patternID string, wasSuccessful bool) {
	r.enqueue(command{kind: cmdOutcome, patternID: patternID, ok: wasSuccessful, ts: time.Now()})
}

// Patterns returns a point-in-time copy of all patterns, sorted by ID.
func (r *Registry) Patterns() []*Pattern {
	snap := r.snap()
	out := make([]*Pattern, len(snap))
	for i, p := range snap {
		out[i] = p.clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sync blocks until all previously enqueued updates have been applied.
func (r *Registry) Sync() {
	reply := make(chan struct{})
	select {
	case r.commands <- command{kind: cmdSync, reply: reply}:
		<-reply
	case <-r.done:
	}
}

// Close stops the writer goroutine after draining pending updates.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.commands)
		<-r.done
	})
}

func (r *Registry) enqueue(cmd command) {
	defer func() {
		// Enqueueing after Close is a no-op, not a crash
		_ = recover()
	}()
	select {
	case r.commands <- cmd:
	default:
		// Queue full: dropping a tick loses one sample, never correctness
		r.logger.Warn("Pattern update queue full, dropping update", map[string]interface{}{
			"pattern": cmd.patternID,
		})
	}
}

func (r *Registry) snap() []*Pattern {
	return r.snapshot.Load().([]*Pattern)
}

func (r *Registry) publish(owned map[string]*Pattern) {
	out := make([]*Pattern, 0, len(owned))
	for _, p := range owned {
		cp := p.clone()
		cp.matcher = p.matcher
		out = append(out, cp)
	}
	r.snapshot.Store(out)
}

// run is the single writer. It owns the authoritative pattern state;
// every mutation happens here and nowhere else.
func (r *Registry) run(owned map[string]*Pattern) {
	defer close(r.done)

	for cmd := range r.commands {
		switch cmd.kind {
		case cmdSync:
			close(cmd.reply)

		case cmdUsage:
			p, ok := owned[cmd.patternID]
			if !ok {
				continue
			}
			p.UsageCount++
			r.persist(p)
			r.publish(owned)

		case cmdOutcome:
			p, ok := owned[cmd.patternID]
			if !ok {
				r.logger.Warn("Learning event for unknown pattern", map[string]interface{}{
					"pattern": cmd.patternID,
				})
				continue
			}
			r.applyOutcome(p, cmd.ok, cmd.ts)
			r.persist(p)
			r.recordEvent(LearningEvent{PatternID: cmd.patternID, WasSuccessful: cmd.ok, Timestamp: cmd.ts})
			r.publish(owned)
		}
	}
}

// applyOutcome nudges the weight toward the outcome with an exponential
// moving average. A single outlier cannot snap the weight; convergence
// takes accumulated evidence.
func (r *Registry) applyOutcome(p *Pattern, wasSuccessful bool, ts time.Time) {
	outcome := 0.0
	if wasSuccessful {
		outcome = 1.0
		p.SuccessCount++
	}

	p.Weight += r.cfg.LearningRate * (outcome - p.Weight)
	if p.Weight < 0 {
		p.Weight = 0
	}
	if p.Weight > 1 {
		p.Weight = 1
	}
	p.LastUpdated = ts

	prev := p.State
	switch {
	case p.Weight < r.cfg.MinSuccessRate:
		p.State = StateDemoted
	case p.UsageCount >= r.cfg.MinUsage && p.Weight >= r.cfg.TrustedThreshold:
		p.State = StateTrusted
	case p.State == StateDemoted:
		// Recovered above the floor but not yet trusted
		p.State = StateUnproven
	}

	if p.State != prev {
		r.logger.Info("Pattern state changed", map[string]interface{}{
			"pattern": p.ID,
			"from":    string(prev),
			"to":      string(p.State),
			"weight":  p.Weight,
		})
	}
}

func (r *Registry) persist(p *Pattern) {
	if r.store == nil {
		return
	}
	if err := r.store.UpsertPattern(p); err != nil {
		r.logger.Warn("Failed to persist pattern", map[string]interface{}{
			"pattern": p.ID,
			"error":   err.Error(),
		})
	}
}

func (r *Registry) recordEvent(ev LearningEvent) {
	if r.store == nil {
		return
	}
	if err := r.store.AppendEvent(ev); err != nil {
		r.logger.Warn("Failed to append learning event", map[string]interface{}{
			"pattern": ev.PatternID,
			"error":   err.Error(),
		})
		return
	}
	if err := r.store.PruneEvents(r.cfg.MaxEvents); err != nil {
		r.logger.Warn("Failed to prune learning events", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
