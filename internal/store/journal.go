package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an intervention id is unknown.
var ErrNotFound = errors.New("not found")

// Intervention outcomes.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Sample is one trigger tick.
type Sample struct {
	At           time.Time
	Ratio        float64
	Normalized   float64
	Level        float64
	State        string
	Mood         string
	SourceStatus string
}

// Transition is a change of discrete state.
type Transition struct {
	At    time.Time
	From  string
	To    string
	Level float64
}

// Intervention is one mentor session.
type Intervention struct {
	ID         string     `json:"id"`
	Trigger    string     `json:"trigger"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Prompt     string     `json:"prompt"`
	Response   string     `json:"response"`
	Outcome    string     `json:"outcome"`
}

// Summary aggregates the journal since a point in time.
type Summary struct {
	Samples       int            `json:"samples"`
	MeanRatio     float64        `json:"mean_ratio"`
	MaxRatio      float64        `json:"max_ratio"`
	StateSamples  map[string]int `json:"state_samples"`
	Transitions   int            `json:"transitions"`
	Interventions int            `json:"interventions"`
	Rejected      int            `json:"rejected"`
}

// RecordSample appends a tick.
func (s *Store) RecordSample(ctx context.Context, smp Sample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (ts, ratio, normalized, level, state, mood, source_status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		smp.At.UnixMilli(), smp.Ratio, smp.Normalized, smp.Level, smp.State, smp.Mood, smp.SourceStatus)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// RecordTransition appends a state change.
func (s *Store) RecordTransition(ctx context.Context, tr Transition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (ts, from_state, to_state, level) VALUES (?, ?, ?, ?)`,
		tr.At.UnixMilli(), tr.From, tr.To, tr.Level)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// StartIntervention inserts a running intervention. An empty ID gets a new
// UUID; the ID used is returned.
func (s *Store) StartIntervention(ctx context.Context, iv Intervention) (string, error) {
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	if iv.Outcome == "" {
		iv.Outcome = OutcomeRunning
	}
	var finished sql.NullInt64
	if iv.FinishedAt != nil {
		finished = sql.NullInt64{Int64: iv.FinishedAt.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interventions (id, trigger_kind, started_at, finished_at, prompt, response, outcome) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.Trigger, iv.StartedAt.UnixMilli(), finished, iv.Prompt, iv.Response, iv.Outcome)
	if err != nil {
		return "", fmt.Errorf("insert intervention: %w", err)
	}
	return iv.ID, nil
}

// FinishIntervention stores the outcome of a running intervention.
func (s *Store) FinishIntervention(ctx context.Context, id, response, outcome string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interventions SET finished_at = ?, response = ?, outcome = ? WHERE id = ?`,
		at.UnixMilli(), response, outcome, id)
	if err != nil {
		return fmt.Errorf("update intervention: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update intervention: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("intervention %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecentInterventions returns up to limit interventions, newest first.
func (s *Store) RecentInterventions(ctx context.Context, limit int) ([]Intervention, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trigger_kind, started_at, finished_at, prompt, response, outcome
		   FROM interventions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query interventions: %w", err)
	}
	defer rows.Close()

	var out []Intervention
	for rows.Next() {
		var iv Intervention
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&iv.ID, &iv.Trigger, &started, &finished, &iv.Prompt, &iv.Response, &iv.Outcome); err != nil {
			return nil, fmt.Errorf("scan intervention: %w", err)
		}
		iv.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			iv.FinishedAt = &t
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// Summarize aggregates everything recorded at or after since.
func (s *Store) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	sum := Summary{StateSamples: map[string]int{}}
	ms := since.UnixMilli()

	var mean, maxRatio sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(ratio), MAX(ratio) FROM samples WHERE ts >= ?`, ms).
		Scan(&sum.Samples, &mean, &maxRatio); err != nil {
		return sum, fmt.Errorf("summarize samples: %w", err)
	}
	sum.MeanRatio = mean.Float64
	sum.MaxRatio = maxRatio.Float64

	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM samples WHERE ts >= ? GROUP BY state`, ms)
	if err != nil {
		return sum, fmt.Errorf("summarize states: %w", err)
	}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			rows.Close()
			return sum, fmt.Errorf("scan state: %w", err)
		}
		sum.StateSamples[state] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return sum, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transitions WHERE ts >= ?`, ms).Scan(&sum.Transitions); err != nil {
		return sum, fmt.Errorf("summarize transitions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) FROM interventions WHERE started_at >= ?`,
		OutcomeRejected, ms).Scan(&sum.Interventions, &sum.Rejected); err != nil {
		return sum, fmt.Errorf("summarize interventions: %w", err)
	}
	return sum, nil
}

// Prune deletes samples, transitions and finished interventions older than
// before and reports how many rows went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	ms := before.UnixMilli()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, q := range []string{
		`DELETE FROM samples WHERE ts < ?`,
		`DELETE FROM transitions WHERE ts < ?`,
		`DELETE FROM interventions WHERE started_at < ? AND outcome != 'running'`,
	} {
		res, err := tx.ExecContext(ctx, q, ms)
		if err != nil {
			return 0, fmt.Errorf("prune: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return total, nil
}
