package storage

import (
	"fmt"
	"time"

	"pce/internal/patterns"
)

// PatternStore persists detection patterns and learning events. It
// implements patterns.Store and is only ever driven by the registry's
// single writer goroutine.
type PatternStore struct {
	db *DB
}

// NewPatternStore creates a pattern store over the given database.
func NewPatternStore(db *DB) *PatternStore {
	return &PatternStore{db: db}
}

// LoadPatterns returns all persisted patterns, compiled.
func (s *PatternStore) LoadPatterns() ([]*patterns.Pattern, error) {
	rows, err := s.db.Query(`
		SELECT id, category, expr, weight, success_count, usage_count, state, last_updated
		FROM patterns
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	defer rows.Close()

	var out []*patterns.Pattern
	for rows.Next() {
		var p patterns.Pattern
		var state, lastUpdated string
		if err := rows.Scan(&p.ID, &p.Category, &p.Expr, &p.Weight,
			&p.SuccessCount, &p.UsageCount, &state, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p.State = patterns.State(state)
		p.LastUpdated, err = time.Parse(time.RFC3339, lastUpdated)
		if err != nil {
			return nil, fmt.Errorf("invalid last_updated for pattern %s: %w", p.ID, err)
		}
		if err := p.Compile(); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}

	return out, rows.Err()
}

// UpsertPattern writes the pattern's current state.
func (s *PatternStore) UpsertPattern(p *patterns.Pattern) error {
	_, err := s.db.Exec(`
		INSERT INTO patterns (id, category, expr, weight, success_count, usage_count, state, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			weight = excluded.weight,
			success_count = excluded.success_count,
			usage_count = excluded.usage_count,
			state = excluded.state,
			last_updated = excluded.last_updated
	`, p.ID, p.Category, p.Expr, p.Weight, p.SuccessCount, p.UsageCount,
		string(p.State), p.LastUpdated.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert pattern %s: %w", p.ID, err)
	}
	return nil
}

// AppendEvent records one learning event.
func (s *PatternStore) AppendEvent(ev patterns.LearningEvent) error {
	success := 0
	if ev.WasSuccessful {
		success = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO learning_events (pattern_id, was_successful, created_at)
		VALUES (?, ?, ?)
	`, ev.PatternID, success, ev.Timestamp.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append learning event: %w", err)
	}
	return nil
}

// PruneEvents keeps only the most recent `keep` events, evicting the
// oldest first.
func (s *PatternStore) PruneEvents(keep int) error {
	_, err := s.db.Exec(`
		DELETE FROM learning_events
		WHERE id NOT IN (
			SELECT id FROM learning_events ORDER BY id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("prune learning events: %w", err)
	}
	return nil
}

// EventCount returns the number of retained learning events.
func (s *PatternStore) EventCount() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM learning_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count learning events: %w", err)
	}
	return n, nil
}
