package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/tiny-world/internal/agent"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	RunActive = "active"
	RunHalted = "halted"
)

// RunRow is the persisted summary of a simulation.
type RunRow struct {
	ID           string    `json:"id"`
	Scene        string    `json:"scene"`
	MemoryWindow int       `json:"memory_window"`
	Agents       []string  `json:"agents"`
	Rounds       int       `json:"rounds"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateRun inserts a new run.
func (s *Store) CreateRun(ctx context.Context, r RunRow) error {
	if r.Status == "" {
		r.Status = RunActive
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO runs (id, scene, memory_window, agents, rounds, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, NOW(), NOW())`,
		r.ID, r.Scene, r.MemoryWindow, r.Agents, r.Status,
	)
	if err != nil {
		return fmt.Errorf("create run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRow, error) {
	var r RunRow
	err := s.db.QueryRow(ctx, `
		SELECT id, scene, memory_window, agents, rounds, status, created_at, updated_at
		FROM runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.Scene, &r.MemoryWindow, &r.Agents, &r.Rounds, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &r, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, scene, memory_window, agents, rounds, status, created_at, updated_at
		FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.Scene, &r.MemoryWindow, &r.Agents, &r.Rounds, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTurns returns the stored turns of a run in round and roster order.
func (s *Store) ListTurns(ctx context.Context, runID string) ([]agent.TurnResult, error) {
	rows, err := s.db.Query(ctx, `
		SELECT agent, round, thought, speech, action
		FROM turns WHERE run_id = $1
		ORDER BY round, seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []agent.TurnResult
	for rows.Next() {
		var t agent.TurnResult
		if err := rows.Scan(&t.Agent, &t.Round, &t.Thought, &t.Speech, &t.Action); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TurnCompleted stores one committed turn.
func (s *Store) TurnCompleted(ctx context.Context, runID string, res agent.TurnResult) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO turns (run_id, round, seq, agent, thought, speech, action)
		VALUES ($1, $2,
			(SELECT COUNT(*) FROM turns WHERE run_id = $1 AND round = $2),
			$3, $4, $5, $6)
		ON CONFLICT (run_id, round, agent) DO NOTHING`,
		runID, res.Round, res.Agent, res.Thought, res.Speech, res.Action,
	)
	if err != nil {
		return fmt.Errorf("save turn %s/%d: %w", res.Agent, res.Round, err)
	}
	return nil
}

// RoundCompleted records the round outcome and advances the run summary.
func (s *Store) RoundCompleted(ctx context.Context, runID string, rec agent.RoundRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin round tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO rounds (run_id, round, turns, aborted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, round) DO UPDATE SET turns = EXCLUDED.turns, aborted = EXCLUDED.aborted`,
		runID, rec.Round, len(rec.Results), rec.Aborted,
	); err != nil {
		return fmt.Errorf("save round %d: %w", rec.Round, err)
	}

	if rec.Aborted {
		_, err = tx.Exec(ctx, `UPDATE runs SET status = $2, updated_at = NOW() WHERE id = $1`, runID, RunHalted)
	} else {
		_, err = tx.Exec(ctx, `UPDATE runs SET rounds = $2, updated_at = NOW() WHERE id = $1`, runID, rec.Round)
	}
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	return tx.Commit(ctx)
}
