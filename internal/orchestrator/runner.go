package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/evaluation"
	"github.com/nidhogg/campus-eval/internal/task"
)

// DefaultMaxRounds bounds agent rounds per task when none is configured.
const DefaultMaxRounds = 10

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	// RunID names the run. A random id is used when empty.
	RunID     string
	MaxRounds int
	// Done holds results from an earlier run. Those tasks are skipped and
	// their results carried into the summary.
	Done []evaluation.Result
}

// Runner drives the agent through a task list one task at a time.
type Runner struct {
	orch       *Orchestrator
	agent      Agent
	dispatcher *Dispatcher
	notifiers  []Notifier
	cfg        RunnerConfig
	logger     *zap.Logger

	mu      sync.RWMutex
	status  Status
	results []evaluation.Result
}

// NewRunner creates a runner. dispatcher may be nil.
func NewRunner(orch *Orchestrator, agent Agent, dispatcher *Dispatcher, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(0, 0, logger)
	}
	return &Runner{
		orch:       orch,
		agent:      agent,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		status:     Status{RunID: cfg.RunID, State: RunPending},
	}
}

// AddNotifier registers a notifier called when the run ends.
func (r *Runner) AddNotifier(n Notifier) {
	r.notifiers = append(r.notifiers, n)
}

// Status returns a snapshot of the run.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Results returns the results so far, in task order.
func (r *Runner) Results() []evaluation.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.results)
}

// Result returns the latest result for one task.
func (r *Runner) Result(taskID string) (evaluation.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].TaskID == taskID {
			return r.results[i], true
		}
	}
	return evaluation.Result{}, false
}

// Run executes every task in order and returns the run summary. It stops
// early only when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, tasks []*task.Spec) (evaluation.Summary, error) {
	done := make(map[string]bool, len(r.cfg.Done))
	for _, res := range r.cfg.Done {
		done[res.TaskID] = true
	}

	now := time.Now()
	r.mu.Lock()
	r.status.State = RunRunning
	r.status.Total = len(tasks)
	r.status.StartedAt = &now
	r.results = append(r.results[:0], r.cfg.Done...)
	r.status.Skipped = len(r.cfg.Done)
	r.status.Summary = evaluation.Summarize(r.results, nil)
	r.mu.Unlock()

	r.logger.Info("run started",
		zap.String("run", r.status.RunID),
		zap.Int("tasks", len(tasks)),
		zap.Int("skipped", len(done)))

	var runErr error
	for _, s := range tasks {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if s == nil || done[s.ID] {
			continue
		}

		r.mu.Lock()
		r.status.CurrentTask = s.ID
		r.mu.Unlock()

		res := r.RunTask(ctx, s)
		r.dispatcher.Dispatch(context.WithoutCancel(ctx), r.status.RunID, res)

		r.mu.Lock()
		r.results = append(r.results, res)
		r.status.Completed++
		r.status.Day = r.orch.Day()
		r.status.Summary = evaluation.Summarize(r.results, nil)
		r.mu.Unlock()
	}

	st := r.finish(runErr)
	r.notify(context.WithoutCancel(ctx), st)
	r.logger.Info("run finished",
		zap.String("run", st.RunID),
		zap.String("state", string(st.State)),
		zap.Int("correct", st.Summary.Correct),
		zap.Int("total", st.Summary.Total),
		zap.Float64("accuracy", st.Summary.Accuracy))
	return st.Summary, runErr
}

// RunTask plays one task to completion. The task is force-completed when
// the agent fails, the round budget runs out, or ctx is cancelled.
func (r *Runner) RunTask(ctx context.Context, s *task.Spec) evaluation.Result {
	if err := r.orch.Reset(ctx, s); err != nil {
		r.logger.Error("reset task", zap.Error(err))
		res := evaluation.Result{TaskID: s.ID, TaskType: s.Type, Outcome: evaluation.Unknown, EvaluatedAt: time.Now()}
		res.Set("error", err.Error())
		return res
	}

	for round := 1; round <= r.cfg.MaxRounds; round++ {
		if ctx.Err() != nil {
			break
		}
		reply, err := r.agent.Generate(ctx, r.orch.History())
		if err != nil {
			r.logger.Warn("agent failed",
				zap.String("task", s.ID), zap.Int("round", round), zap.Error(err))
			break
		}
		if turn := r.orch.Interact(ctx, reply); turn.Done {
			res, err := r.orch.Complete(ctx)
			if err != nil {
				break
			}
			return res
		}
	}

	r.logger.Info("task force-completed", zap.String("task", s.ID), zap.String("state", r.orch.State().String()))
	return r.orch.ForceComplete(ctx)
}

func (r *Runner) finish(err error) Status {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.CurrentTask = ""
	r.status.FinishedAt = &now
	r.status.State = RunDone
	if err != nil {
		r.status.State = RunCancelled
	}
	return r.status
}

func (r *Runner) notify(ctx context.Context, st Status) {
	for _, n := range r.notifiers {
		if err := n.Notify(ctx, st); err != nil {
			r.logger.Warn("notify", zap.String("notifier", fmt.Sprintf("%T", n)), zap.Error(err))
		}
	}
}
