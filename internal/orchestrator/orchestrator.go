package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/cascade"
	"github.com/nidhogg/campus-eval/internal/chat"
	"github.com/nidhogg/campus-eval/internal/checkpoint"
	"github.com/nidhogg/campus-eval/internal/evaluation"
	"github.com/nidhogg/campus-eval/internal/inject"
	"github.com/nidhogg/campus-eval/internal/precheck"
	"github.com/nidhogg/campus-eval/internal/router"
	"github.com/nidhogg/campus-eval/internal/task"
)

// Task outputs recorded when a task ends outside the state machine.
const (
	OutputPrerequisite = "Set to incorrect due to the pre task"
	OutputForced       = "Task stopped before the agent finished"
)

// ErrNoTask is returned when an operation needs a task and none is active.
var ErrNoTask = errors.New("no active task")

// Options configures an Orchestrator.
type Options struct {
	// Checkpoints persists state after every task. Nil disables checkpoints.
	Checkpoints *checkpoint.Manager
	// Resume loads the checkpoint before the first task.
	Resume bool
}

// Turn is the outcome of one agent round.
type Turn struct {
	Inject []chat.Message
	Result *campus.ToolResult
	Done   bool
}

// Orchestrator runs tasks one at a time against a single world. It owns the
// action log, precheck findings and cascade map for the run and is not safe
// for concurrent use.
type Orchestrator struct {
	world   *campus.World
	engine  *evaluation.Engine
	checker *precheck.Checker
	cascade *cascade.Tracker
	opts    Options
	logger  *zap.Logger
	now     func() time.Time

	loaded bool
	day    string

	spec     *task.Spec
	router   *router.Router
	machine  *inject.Machine
	history  chat.History
	actions  []evaluation.ActionRecord
	findings []precheck.Finding
	output   string
	result   *evaluation.Result
}

// New creates an orchestrator. tracker may be shared with a graph mirror;
// a nil tracker gets a private one.
func New(world *campus.World, tracker *cascade.Tracker, opts Options, logger *zap.Logger) *Orchestrator {
	if tracker == nil {
		tracker = cascade.New(nil, logger)
	}
	return &Orchestrator{
		world:   world,
		engine:  evaluation.NewEngine(logger),
		checker: precheck.NewChecker(logger),
		cascade: tracker,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Task returns the active task, or nil.
func (o *Orchestrator) Task() *task.Spec { return o.spec }

// Day returns the current simulated day.
func (o *Orchestrator) Day() string { return o.day }

// History returns a copy of the active task's transcript.
func (o *Orchestrator) History() []chat.Message { return o.history.Items() }

// Actions returns a copy of the active task's action log.
func (o *Orchestrator) Actions() []evaluation.ActionRecord {
	return append([]evaluation.ActionRecord(nil), o.actions...)
}

// Findings returns the active task's precheck findings.
func (o *Orchestrator) Findings() []precheck.Finding {
	return append([]precheck.Finding(nil), o.findings...)
}

// State returns the injection state of the active task.
func (o *Orchestrator) State() inject.State {
	if o.machine == nil {
		return inject.Completed
	}
	return o.machine.State()
}

// Done reports whether the active task has a result.
func (o *Orchestrator) Done() bool { return o.result != nil }

// Reset prepares the world for s and writes the opening transcript.
func (o *Orchestrator) Reset(ctx context.Context, s *task.Spec) (err error) {
	if s == nil {
		return ErrNoTask
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("reset panicked", zap.String("task", s.ID), zap.Any("panic", r))
			o.machine = nil
			err = fmt.Errorf("reset task %s: panic: %v", s.ID, r)
		}
	}()
	o.ensureLoaded()

	o.spec = s
	o.history.Reset()
	o.actions = nil
	o.findings = nil
	o.output = ""
	o.result = nil

	allowed := s.Systems()
	o.router = router.New(o.world, allowed, o.logger)

	newDay := false
	if date := s.SimulationDate(); date != "" && date != o.day {
		o.world.DailyReset(date)
		o.day = date
		newDay = true
	}
	if len(s.WorldStateChange) > 0 {
		o.world.ApplyChanges(s.WorldStateChange)
	}
	if s.SourceBuildingID != "" {
		if res := o.world.SetInitialLocation(s.SourceBuildingID); !res.OK() {
			o.logger.Warn("set initial location", zap.String("task", s.ID), zap.String("message", res.Message))
		}
	}

	o.findings = o.checker.Run(s, o.world, o.now())

	o.machine = inject.New(inject.Content{
		SystemPrompt: router.SystemPrompt(allowed),
		Day:          o.day,
		Time:         string(s.RequireTime),
		Place:        string(s.RequirePlace),
		Instruction:  s.Instruction,
	})
	o.history.Inject(o.machine.Start(inject.Flags{
		NewDay:   newDay,
		HasTime:  s.RequireTime != "",
		HasPlace: s.RequirePlace != "",
	})...)

	o.world.SetTaskContext(campus.TaskContext{
		TaskID:     s.ID,
		Details:    s.Details,
		Targets:    reservationTargets(s),
		TargetDate: s.SimulationDate(),
	})

	o.logger.Info("task started",
		zap.String("task", s.ID),
		zap.String("type", string(s.Type)),
		zap.Bool("new_day", newDay),
		zap.Int("precheck_findings", len(o.findings)))
	return nil
}

// Interact feeds one agent reply through the state machine. At most one
// action is dispatched per call.
func (o *Orchestrator) Interact(ctx context.Context, reply string) (turn Turn) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("interact panicked", zap.Any("panic", r))
			res := o.unknown(fmt.Sprintf("interact panic: %v", r))
			o.result = &res
			turn = Turn{Done: true}
		}
	}()
	o.ensureLoaded()
	if o.spec == nil || o.machine == nil || o.result != nil {
		return Turn{Done: o.result != nil}
	}

	o.history.Inject(chat.Agent(reply))
	step := o.machine.Handle(reply, env{o})
	o.history.Inject(step.Inject...)
	if step.Done {
		o.output = step.Output
	}
	return Turn{Inject: step.Inject, Result: step.Result, Done: step.Done}
}

// Complete judges the active task. Calling it again returns the same result.
func (o *Orchestrator) Complete(ctx context.Context) (res evaluation.Result, err error) {
	if o.spec == nil {
		return evaluation.Result{}, ErrNoTask
	}
	if o.result != nil {
		return *o.result, nil
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("complete panicked", zap.String("task", o.spec.ID), zap.Any("panic", r))
			res, err = o.unknown(fmt.Sprintf("complete panic: %v", r)), nil
			o.result = &res
		}
	}()
	res = o.judge(ctx)
	o.result = &res
	if err := o.SaveCheckpoint(ctx); err != nil {
		o.logger.Warn("save checkpoint", zap.String("task", o.spec.ID), zap.Error(err))
	}
	return res, nil
}

// ForceComplete ends the active task now and always returns a result.
func (o *Orchestrator) ForceComplete(ctx context.Context) (res evaluation.Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("force complete panicked", zap.Any("panic", r))
			res = o.unknown(fmt.Sprintf("force complete panic: %v", r))
			o.result = &res
		}
	}()

	if o.spec == nil {
		return o.unknown(ErrNoTask.Error())
	}
	if o.result == nil && o.output == "" {
		o.output = OutputForced
	}
	res, _ = o.Complete(ctx)
	return res
}

// SaveCheckpoint persists the world and the run's carry-over state.
func (o *Orchestrator) SaveCheckpoint(ctx context.Context) error {
	if o.opts.Checkpoints == nil {
		return nil
	}
	return o.opts.Checkpoints.Save(o.world.Snapshot(), checkpoint.TaskState{
		FailedPrerequisites: o.cascade.Snapshot(),
		FailureOrder:        o.cascade.Order(),
		CurrentDay:          o.day,
	})
}

func (o *Orchestrator) judge(ctx context.Context) evaluation.Result {
	s := o.spec
	in := o.input()

	if s.Trigger() {
		res := o.base(evaluation.Unknown)
		res.Set("is_trigger_task", true)
		res.Set("skip_evaluation", true)
		res.Set("task_id", s.ID)
		o.logger.Info("trigger task skipped", zap.String("task", s.ID))
		return res
	}

	var res evaluation.Result
	if failed, ok := o.cascade.AffectedBy(s.ID); ok {
		res = o.base(evaluation.Incorrect)
		res.TaskOutput = OutputPrerequisite
		res.Set("failed_due_to_prerequisite", true)
		res.Set("failed_prerequisite_task_id", failed)
		res.Set("error_reason", fmt.Sprintf("Task failed because prerequisite task '%s' failed", failed))
		o.logger.Info("task failed by prerequisite", zap.String("task", s.ID), zap.String("prerequisite", failed))
	} else if s.RequirePrecheck && len(o.findings) > 0 {
		res = o.base(evaluation.Incorrect)
		o.logger.Info("task failed by precheck", zap.String("task", s.ID))
	} else {
		res = o.engine.Evaluate(in)
		res.TaskOutput = o.output
	}

	o.enhance(&res, in)

	if res.Outcome == evaluation.Incorrect {
		if deps := o.cascade.Record(ctx, s.ID, s.PreTaskFor); len(deps) > 0 {
			res.Set("affects_downstream_tasks", deps)
		}
	}
	o.logger.Info("task completed", zap.String("task", s.ID), zap.String("outcome", string(res.Outcome)))
	return res
}

// enhance attaches the debug view of the task. A failure here never changes
// the outcome.
func (o *Orchestrator) enhance(res *evaluation.Result, in evaluation.Input) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("enhance result", zap.String("task", o.spec.ID), zap.Any("panic", r))
		}
	}()

	s := o.spec
	res.Set("ground_truth", s.GroundTruth.Value())
	if out := evaluation.TaskOutput(in); out != nil {
		res.Set("task_output", out)
	}
	if s.RequirePlace != "" {
		res.Set("final_location", o.world.CurrentLocationID())
	}
	if s.RequirePrecheck {
		res.Set("precheck_required", true)
		res.Set("precheck_failed", len(o.findings) > 0)
		if len(o.findings) > 0 {
			res.Set("precheck_failure_details", o.Findings())
		}
	}
}

func (o *Orchestrator) input() evaluation.Input {
	in := evaluation.Input{Spec: o.spec, View: o.world, Actions: o.actions}
	if m, ok := o.history.LastAgent(); ok {
		in.LastReply = m.Content
	}
	return in
}

func (o *Orchestrator) base(out evaluation.Outcome) evaluation.Result {
	return evaluation.Result{
		TaskID:      o.spec.ID,
		TaskType:    o.spec.Type,
		Outcome:     out,
		TaskOutput:  o.output,
		EvaluatedAt: o.now(),
	}
}

func (o *Orchestrator) unknown(reason string) evaluation.Result {
	res := evaluation.Result{Outcome: evaluation.Unknown, TaskOutput: o.output, EvaluatedAt: o.now()}
	if o.spec != nil {
		res.TaskID, res.TaskType = o.spec.ID, o.spec.Type
	}
	res.Set("error", reason)
	return res
}

// ensureLoaded restores the checkpoint once per orchestrator. Any load
// failure falls back to a fresh run.
func (o *Orchestrator) ensureLoaded() {
	if o.loaded {
		return
	}
	o.loaded = true
	if o.opts.Checkpoints == nil || !o.opts.Resume {
		return
	}

	st, err := o.opts.Checkpoints.Load()
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		o.logger.Debug("no checkpoint to resume", zap.String("dir", o.opts.Checkpoints.Dir()))
		return
	}
	if err != nil {
		o.logger.Warn("load checkpoint, starting fresh", zap.Error(err))
		return
	}
	if st.World != nil {
		if err := o.world.Restore(*st.World); err != nil {
			o.logger.Warn("restore world, starting fresh", zap.Error(err))
		}
	}
	if st.Task != nil {
		o.cascade.Restore(st.Task.FailedPrerequisites, st.Task.FailureOrder)
		o.day = st.Task.CurrentDay
	}
	o.logger.Info("resumed from checkpoint",
		zap.String("day", o.day), zap.Int("failed_prerequisites", o.cascade.Len()))
}

// env adapts the orchestrator to the state machine.
type env struct{ o *Orchestrator }

func (e env) Execute(text string) campus.ToolResult {
	res := e.o.router.Execute(text)
	e.o.actions = append(e.o.actions, evaluation.NewActionRecord(text, res, e.o.now()))
	return res
}

func (e env) AtPlace() bool {
	return e.o.world.CurrentLocationID() == string(e.o.spec.RequirePlace)
}

// reservationTargets lists the bookings a reservation task expects, so the
// desk can lay out the task's availability puzzle.
func reservationTargets(s *task.Spec) []map[string]any {
	gt := s.GroundTruth.Fields
	if gt == nil {
		return nil
	}
	var out []map[string]any
	for _, key := range []string{"expected_reservation_outcome", "reservation_made"} {
		v, ok := gt.Get(key)
		if !ok {
			continue
		}
		switch v := v.(type) {
		case map[string]any:
			out = append(out, v)
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					out = append(out, m)
				}
			}
		}
	}
	if len(out) == 0 && gt.Has("location_id") {
		out = append(out, gt.Plain())
	}
	return out
}
