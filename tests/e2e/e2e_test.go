//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/cascade"
	"github.com/nidhogg/campus-eval/internal/chat"
	"github.com/nidhogg/campus-eval/internal/evaluation"
	"github.com/nidhogg/campus-eval/internal/graph"
	"github.com/nidhogg/campus-eval/internal/orchestrator"
	pgstore "github.com/nidhogg/campus-eval/internal/store"
	"github.com/nidhogg/campus-eval/internal/task"
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	// 1. Start Neo4j
	uri, neo4jCleanup, err := startNeo4j(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neo4j: %v\n", err)
		return 1
	}
	defer neo4jCleanup()
	testNeo4jURI = uri

	// 2. Start PostgreSQL
	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		return 1
	}
	defer pgCleanup()

	testPGStore, err = pgstore.New(ctx, pgDSN, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pg store: %v\n", err)
		return 1
	}
	defer testPGStore.Close()

	if err := testPGStore.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}

	// 3. Start Redis
	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		return 1
	}
	defer redisCleanup()
	testRedisURL = redisURL

	return m.Run()
}

func newGraph(t *testing.T, runID string) *graph.Graph {
	t.Helper()
	ctx := context.Background()
	g, err := graph.New(ctx, testNeo4jURI, "", "", runID, testLogger)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	t.Cleanup(func() { g.Close(ctx) })
	if err := g.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return g
}

func TestStoreRecordAndResults(t *testing.T) {
	ctx := context.Background()
	runID := uuid.NewString()

	failed := evaluation.Result{
		TaskID: "p", TaskType: task.TypeEmail, Outcome: evaluation.Incorrect,
		EvaluatedAt: time.Now().Add(-time.Second),
	}
	failed.Set("affects_downstream_tasks", []string{"q", "r"})
	ok := evaluation.Result{TaskID: "s", TaskType: task.TypeQuiz, Outcome: evaluation.Correct, EvaluatedAt: time.Now()}

	for _, res := range []evaluation.Result{failed, ok} {
		if err := testPGStore.Record(ctx, runID, res); err != nil {
			t.Fatalf("record %s: %v", res.TaskID, err)
		}
	}
	// Re-recording replaces the row.
	failed.TaskOutput = "retried"
	if err := testPGStore.Record(ctx, runID, failed); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	results, err := testPGStore.Results(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].TaskID != "p" || results[1].TaskID != "s" {
		t.Fatalf("got results %+v", results)
	}
	if results[0].TaskOutput != "retried" || results[0].Outcome != evaluation.Incorrect {
		t.Errorf("got %+v", results[0])
	}

	edges, err := testPGStore.FailureEdges(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(edges["p"], []string{"q", "r"}) {
		t.Errorf("got edges %v", edges)
	}
}

func TestStoreNotifyRuns(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)
	end := time.Now()
	st := orchestrator.Status{
		RunID:      uuid.NewString(),
		State:      orchestrator.RunDone,
		Total:      3,
		Completed:  3,
		Day:        "Week 1, Monday",
		Summary:    evaluation.Summary{Total: 3, Correct: 2, Incorrect: 1, Accuracy: 2.0 / 3},
		StartedAt:  &start,
		FinishedAt: &end,
	}
	if err := testPGStore.Notify(ctx, st); err != nil {
		t.Fatal(err)
	}

	runs, err := testPGStore.Runs(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	i := slices.IndexFunc(runs, func(r pgstore.Run) bool { return r.ID == st.RunID })
	if i < 0 {
		t.Fatalf("run %s not listed", st.RunID)
	}
	got := runs[i]
	if got.State != "done" || got.Completed != 3 || got.Summary == nil || got.Summary.Correct != 2 {
		t.Errorf("got run %+v", got)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not stored")
	}
}

func TestGraphRecordFailure(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t, uuid.NewString())

	if err := g.RecordFailure(ctx, "p", []string{"q", "r"}); err != nil {
		t.Fatal(err)
	}
	if err := g.RecordFailure(ctx, "q", []string{"u"}); err != nil {
		t.Fatal(err)
	}
	// Duplicate edges merge.
	if err := g.RecordFailure(ctx, "p", []string{"q"}); err != nil {
		t.Fatal(err)
	}

	down, err := g.Downstream(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"q", "r", "u"}; !slices.Equal(down, want) {
		t.Errorf("downstream got %v, want %v", down, want)
	}

	up, err := g.Upstream(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"p", "q"}; !slices.Equal(up, want) {
		t.Errorf("upstream got %v, want %v", up, want)
	}

	other := newGraph(t, uuid.NewString())
	if got, _ := other.Downstream(ctx, "p"); len(got) != 0 {
		t.Errorf("runs leak into each other: %v", got)
	}
}

func TestEventBusPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	bus, err := orchestrator.NewEventBus(ctx, testRedisURL, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer bus.Close()

	runID := uuid.NewString()
	for _, id := range []string{"a", "b"} {
		res := evaluation.Result{TaskID: id, Outcome: evaluation.Correct, EvaluatedAt: time.Now()}
		if err := bus.Record(ctx, runID, res); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	events := bus.Subscribe(ctx, runID)
	var got []string
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.TaskID)
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", got)
		}
	}
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("got %v", got)
	}
}

type scriptedAgent struct {
	mu      sync.Mutex
	replies []string
}

func (a *scriptedAgent) Generate(_ context.Context, _ []chat.Message) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.replies) == 0 {
		return `<action>Action: finish()</action>`, nil
	}
	r := a.replies[0]
	a.replies = a.replies[1:]
	return r, nil
}

// A failed prerequisite reaches Postgres, Neo4j and Redis through one run.
func TestRunWithBackends(t *testing.T) {
	ctx := context.Background()
	runID := uuid.NewString()
	logger := zap.NewNop()

	g := newGraph(t, runID)
	bus, err := orchestrator.NewEventBus(ctx, testRedisURL, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer bus.Close()

	world := campus.NewWorld(campus.DefaultData(), logger)
	orch := orchestrator.New(world, cascade.New(g, logger), orchestrator.Options{}, logger)

	d := orchestrator.NewDispatcher(4, 5*time.Second, logger)
	d.Add(testPGStore)
	d.Add(bus)

	// The agent finishes p without sending anything, so p fails and q
	// fails with it.
	agent := &scriptedAgent{}
	runner := orchestrator.NewRunner(orch, agent, d, orchestrator.RunnerConfig{RunID: runID, MaxRounds: 3}, logger)
	runner.AddNotifier(testPGStore)

	tasks := []*task.Spec{
		{
			ID: "p", Type: task.TypeEmail, Instruction: "Email a@b.com.", PreTaskFor: "q",
			GroundTruth: task.GroundTruth{Fields: task.NewObject("recipient", "a@b.com", "subject", "Hi", "body", "Body")},
		},
		{ID: "q", Type: task.TypeQuiz, Instruction: "Pick one.", GroundTruth: task.GroundTruth{Answer: "A"}},
	}
	sum, err := runner.Run(ctx, tasks)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Incorrect != 2 {
		t.Errorf("got summary %+v", sum)
	}

	results, err := testPGStore.Results(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("stored %d results", len(results))
	}
	if results[1].TaskOutput != orchestrator.OutputPrerequisite {
		t.Errorf("q output %q", results[1].TaskOutput)
	}

	edges, err := testPGStore.FailureEdges(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(edges["p"], []string{"q"}) {
		t.Errorf("stored edges %v", edges)
	}

	down, err := g.Downstream(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(down, []string{"q"}) {
		t.Errorf("graph edges %v", down)
	}

	subCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	events := bus.Subscribe(subCtx, runID)
	for _, want := range []string{"p", "q"} {
		select {
		case ev := <-events:
			if ev.TaskID != want || ev.Outcome != evaluation.Incorrect {
				t.Errorf("got event %+v, want %s incorrect", ev, want)
			}
		case <-subCtx.Done():
			t.Fatalf("no event for %s", want)
		}
	}
}
