package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/evaluation"
	"github.com/nidhogg/campus-eval/internal/orchestrator"
	"github.com/nidhogg/campus-eval/internal/task"
)

var (
	_ orchestrator.Sink     = (*Store)(nil)
	_ orchestrator.Notifier = (*Store)(nil)
)

// Run is one stored run row.
type Run struct {
	ID         string              `json:"id"`
	State      string              `json:"state"`
	Total      int                 `json:"total"`
	Completed  int                 `json:"completed"`
	Day        string              `json:"day"`
	Summary    *evaluation.Summary `json:"summary,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// Record upserts one judged task, creating the run row on first use and
// storing any prerequisite failure edges it carries.
func (s *Store) Record(ctx context.Context, runID string, res evaluation.Result) error {
	detail, err := json.Marshal(res.Detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO runs (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING`, runID); err != nil {
		return fmt.Errorf("ensure run: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO task_results (run_id, task_id, task_type, outcome, is_trigger, task_output, detail, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, task_id) DO UPDATE SET
			task_type = EXCLUDED.task_type,
			outcome = EXCLUDED.outcome,
			is_trigger = EXCLUDED.is_trigger,
			task_output = EXCLUDED.task_output,
			detail = EXCLUDED.detail,
			evaluated_at = EXCLUDED.evaluated_at`,
		runID, res.TaskID, string(res.TaskType), string(res.Outcome), res.Trigger(),
		res.TaskOutput, detail, res.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	deps, _ := res.Detail["affects_downstream_tasks"].([]string)
	if len(deps) > 0 {
		batch := &pgx.Batch{}
		for _, d := range deps {
			batch.Queue(`
				INSERT INTO prerequisite_failures (run_id, failed_task, dependent)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING`, runID, res.TaskID, d)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert failure edges: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}
	return nil
}

// Notify stores the final run status.
func (s *Store) Notify(ctx context.Context, st orchestrator.Status) error {
	summary, err := json.Marshal(st.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO runs (id, state, total, completed, day, summary, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()), $8)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			total = EXCLUDED.total,
			completed = EXCLUDED.completed,
			day = EXCLUDED.day,
			summary = EXCLUDED.summary,
			finished_at = EXCLUDED.finished_at`,
		st.RunID, string(st.State), st.Total, st.Completed, st.Day, summary, st.StartedAt, st.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	s.logger.Info("run stored", zap.String("run", st.RunID), zap.String("state", string(st.State)))
	return nil
}

// Results lists a run's judged tasks in evaluation order.
func (s *Store) Results(ctx context.Context, runID string) ([]evaluation.Result, error) {
	rows, err := s.db.Query(ctx, `
		SELECT task_id, task_type, outcome, task_output, detail, evaluated_at
		FROM task_results
		WHERE run_id = $1
		ORDER BY evaluated_at ASC, task_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []evaluation.Result
	for rows.Next() {
		var (
			res     evaluation.Result
			typ     string
			outcome string
			detail  []byte
		)
		if err := rows.Scan(&res.TaskID, &typ, &outcome, &res.TaskOutput, &detail, &res.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.TaskType = task.Type(typ)
		res.Outcome = evaluation.Outcome(outcome)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &res.Detail); err != nil {
				s.logger.Warn("decode result detail", zap.String("task", res.TaskID), zap.Error(err))
			}
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// FailureEdges returns failed task -> dependents recorded for a run.
func (s *Store) FailureEdges(ctx context.Context, runID string) (map[string][]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT failed_task, dependent
		FROM prerequisite_failures
		WHERE run_id = $1
		ORDER BY failed_task, dependent`, runID)
	if err != nil {
		return nil, fmt.Errorf("list failure edges: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var failed, dep string
		if err := rows.Scan(&failed, &dep); err != nil {
			return nil, fmt.Errorf("scan failure edge: %w", err)
		}
		out[failed] = append(out[failed], dep)
	}
	return out, rows.Err()
}

// Runs lists the most recent runs.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id::text, state, total, completed, day, summary, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			summary []byte
		)
		if err := rows.Scan(&r.ID, &r.State, &r.Total, &r.Completed, &r.Day, &summary, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if len(summary) > 0 {
			var sum evaluation.Summary
			if json.Unmarshal(summary, &sum) == nil {
				r.Summary = &sum
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
