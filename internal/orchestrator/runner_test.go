package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/chat"
	"github.com/nidhogg/campus-eval/internal/evaluation"
	"github.com/nidhogg/campus-eval/internal/task"
)

type scriptedAgent struct {
	replies []string
	err     error
	calls   int
}

func (a *scriptedAgent) Generate(_ context.Context, history []chat.Message) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	if len(history) == 0 {
		return "", errors.New("empty history")
	}
	if len(a.replies) == 0 {
		return "Let me think.", nil
	}
	r := a.replies[0]
	a.replies = a.replies[1:]
	return r, nil
}

type memorySink struct {
	mu      sync.Mutex
	runs    map[string]int
	results []evaluation.Result
	err     error
}

func (s *memorySink) Record(_ context.Context, runID string, res evaluation.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = map[string]int{}
	}
	s.runs[runID]++
	s.results = append(s.results, res)
	return s.err
}

type memoryNotifier struct{ got []Status }

func (n *memoryNotifier) Notify(_ context.Context, st Status) error {
	n.got = append(n.got, st)
	return nil
}

func quizSpec(id, answer string) *task.Spec {
	return &task.Spec{ID: id, Type: task.TypeQuiz, Instruction: "Pick one.", GroundTruth: task.GroundTruth{Answer: answer}}
}

func newRunner(agent Agent, sinks []Sink, cfg RunnerConfig) *Runner {
	d := NewDispatcher(2, time.Second, zap.NewNop())
	for _, s := range sinks {
		d.Add(s)
	}
	return NewRunner(newOrch(newWorld(), Options{}), agent, d, cfg, zap.NewNop())
}

func TestRunnerRunsTasks(t *testing.T) {
	agent := &scriptedAgent{replies: []string{sendReply, finishReply, "<action>Answer: B</action>"}}
	sink := &memorySink{}
	notifier := &memoryNotifier{}
	r := newRunner(agent, []Sink{sink}, RunnerConfig{})
	r.AddNotifier(notifier)

	sum, err := r.Run(context.Background(), []*task.Spec{emailSpec("e1"), quizSpec("q1", "B")})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 2 || sum.Correct != 2 || sum.Accuracy != 1 {
		t.Errorf("got summary %+v", sum)
	}

	st := r.Status()
	if st.State != RunDone || st.Completed != 2 || st.FinishedAt == nil || st.CurrentTask != "" {
		t.Errorf("got status %+v", st)
	}
	if len(sink.results) != 2 || sink.runs[st.RunID] != 2 {
		t.Errorf("sink got %d results, runs %v", len(sink.results), sink.runs)
	}
	if len(notifier.got) != 1 || notifier.got[0].RunID != st.RunID {
		t.Errorf("notifier got %+v", notifier.got)
	}
	if res, ok := r.Result("q1"); !ok || res.Outcome != evaluation.Correct {
		t.Errorf("got %+v, %v", res, ok)
	}
}

func TestRunnerRoundBudget(t *testing.T) {
	agent := &scriptedAgent{}
	r := newRunner(agent, nil, RunnerConfig{MaxRounds: 3})
	res := r.RunTask(context.Background(), emailSpec("e"))
	if agent.calls != 3 {
		t.Errorf("got %d agent calls, want 3", agent.calls)
	}
	if res.TaskOutput != OutputForced || res.Outcome != evaluation.Incorrect {
		t.Errorf("got %s %q", res.Outcome, res.TaskOutput)
	}
}

func TestRunnerAgentError(t *testing.T) {
	agent := &scriptedAgent{err: errors.New("rate limited")}
	r := newRunner(agent, nil, RunnerConfig{MaxRounds: 5})
	res := r.RunTask(context.Background(), emailSpec("e"))
	if agent.calls != 1 || res.TaskOutput != OutputForced {
		t.Errorf("got %d calls, output %q", agent.calls, res.TaskOutput)
	}
}

func TestRunnerSkipsDone(t *testing.T) {
	prior := evaluation.Result{TaskID: "e1", Outcome: evaluation.Incorrect}
	agent := &scriptedAgent{replies: []string{"<action>Answer: A</action>"}}
	r := newRunner(agent, nil, RunnerConfig{Done: []evaluation.Result{prior}})

	sum, err := r.Run(context.Background(), []*task.Spec{emailSpec("e1"), quizSpec("q1", "A")})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 2 || sum.Correct != 1 || sum.Incorrect != 1 {
		t.Errorf("got %+v", sum)
	}
	if st := r.Status(); st.Skipped != 1 || st.Completed != 1 {
		t.Errorf("got status %+v", st)
	}
	if agent.calls != 1 {
		t.Errorf("got %d agent calls", agent.calls)
	}
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	notifier := &memoryNotifier{}
	r := newRunner(&scriptedAgent{}, nil, RunnerConfig{})
	r.AddNotifier(notifier)

	if _, err := r.Run(ctx, []*task.Spec{emailSpec("e")}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
	if st := r.Status(); st.State != RunCancelled || len(r.Results()) != 0 {
		t.Errorf("got %+v", st)
	}
	if len(notifier.got) != 1 {
		t.Error("cancelled run not announced")
	}
}

func TestDispatcherCollectsErrors(t *testing.T) {
	d := NewDispatcher(1, time.Second, zap.NewNop())
	ok, bad := &memorySink{}, &memorySink{err: errors.New("db down")}
	d.Add(ok)
	d.Add(bad)

	errs := d.Dispatch(context.Background(), "run", evaluation.Result{TaskID: "t"})
	if len(errs) != 1 {
		t.Errorf("got %v", errs)
	}
	if len(ok.results) != 1 || len(bad.results) != 1 {
		t.Error("not every sink was called")
	}
}

func TestFileSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if got, err := ReadResults(dir); err != nil || got != nil {
		t.Fatalf("missing file: got %v, %v", got, err)
	}

	s, err := NewFileSink(dir)
	if err != nil {
		t.Fatal(err)
	}
	trig := evaluation.Result{TaskID: "t0", Outcome: evaluation.Unknown}
	trig.Set("is_trigger_task", true)
	for _, res := range []evaluation.Result{trig, {TaskID: "t1", Outcome: evaluation.Correct}} {
		if err := s.Record(context.Background(), "run", res); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(filepath.Join(dir, ResultsFile), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"run_id":"run","task_id":"t2","out`)
	f.Close()

	got, err := ReadResults(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[0].Trigger() || got[1].Outcome != evaluation.Correct {
		t.Errorf("got %+v", got)
	}
}
