package orchestrator

import (
	"context"
	"time"

	"github.com/nidhogg/campus-eval/internal/chat"
	"github.com/nidhogg/campus-eval/internal/evaluation"
)

// RunState tracks a run's lifecycle.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunDone      RunState = "done"
	RunCancelled RunState = "cancelled"
)

// Status is a point-in-time view of a run, safe to share.
type Status struct {
	RunID       string             `json:"run_id"`
	State       RunState           `json:"state"`
	Total       int                `json:"total"`
	Completed   int                `json:"completed"`
	Skipped     int                `json:"skipped"`
	CurrentTask string             `json:"current_task,omitempty"`
	Day         string             `json:"day,omitempty"`
	Summary     evaluation.Summary `json:"summary"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
}

// Agent produces the student's next reply.
type Agent interface {
	Generate(ctx context.Context, history []chat.Message) (string, error)
}

// Sink receives every judged task.
type Sink interface {
	Record(ctx context.Context, runID string, res evaluation.Result) error
}

// Notifier announces a finished run.
type Notifier interface {
	Notify(ctx context.Context, st Status) error
}

// Event is a judged task as published on the message bus.
type Event struct {
	RunID     string             `json:"run_id"`
	TaskID    string             `json:"task_id"`
	TaskType  string             `json:"task_type"`
	Outcome   evaluation.Outcome `json:"outcome"`
	Detail    map[string]any     `json:"detail,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewEvent converts a result for publication.
func NewEvent(runID string, res evaluation.Result) *Event {
	return &Event{
		RunID:     runID,
		TaskID:    res.TaskID,
		TaskType:  string(res.TaskType),
		Outcome:   res.Outcome,
		Detail:    res.Detail,
		Timestamp: res.EvaluatedAt,
	}
}
