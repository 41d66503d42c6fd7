package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/checkpoint"
	"github.com/nidhogg/campus-eval/internal/evaluation"
	"github.com/nidhogg/campus-eval/internal/inject"
	"github.com/nidhogg/campus-eval/internal/precheck"
	"github.com/nidhogg/campus-eval/internal/task"
)

const (
	sendReply   = `<action>Action: email.send_email(recipient="a@b.com", subject="Hi", body="Body")</action>`
	finishReply = `<action>Action: finish()</action>`
)

func newWorld() *campus.World {
	return campus.NewWorld(campus.DefaultData(), zap.NewNop())
}

func newOrch(w *campus.World, opts Options) *Orchestrator {
	return New(w, nil, opts, zap.NewNop())
}

func emailSpec(id string) *task.Spec {
	return &task.Spec{
		ID:          id,
		Type:        task.TypeEmail,
		Instruction: "Email a@b.com.",
		GroundTruth: task.GroundTruth{Fields: task.NewObject("recipient", "a@b.com", "subject", "Hi", "body", "Body")},
	}
}

func play(t *testing.T, o *Orchestrator, s *task.Spec, replies ...string) evaluation.Result {
	t.Helper()
	ctx := context.Background()
	if err := o.Reset(ctx, s); err != nil {
		t.Fatalf("reset %s: %v", s.ID, err)
	}
	for _, r := range replies {
		o.Interact(ctx, r)
	}
	if !o.Done() && o.State() != inject.Completed {
		return o.ForceComplete(ctx)
	}
	res, err := o.Complete(ctx)
	if err != nil {
		t.Fatalf("complete %s: %v", s.ID, err)
	}
	return res
}

func transcript(o *Orchestrator) string {
	var b strings.Builder
	for _, m := range o.History() {
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func TestEmailTaskCorrect(t *testing.T) {
	o := newOrch(newWorld(), Options{})
	res := play(t, o, emailSpec("e1"), sendReply, finishReply)

	if res.Outcome != evaluation.Correct {
		t.Fatalf("got %s, want correct (detail %v)", res.Outcome, res.Detail)
	}
	if res.TaskOutput != inject.OutputCompleted {
		t.Errorf("got output %q", res.TaskOutput)
	}
	if acts := o.Actions(); len(acts) != 1 || acts[0].System != evaluation.SystemEmail || !acts[0].Succeeded {
		t.Errorf("got actions %+v", acts)
	}
	if _, ok := res.Detail["ground_truth"]; !ok {
		t.Error("missing ground_truth detail")
	}
	if _, ok := res.Detail["task_output"]; !ok {
		t.Error("missing task_output detail")
	}
}

func TestOneActionPerRound(t *testing.T) {
	o := newOrch(newWorld(), Options{})
	if err := o.Reset(context.Background(), emailSpec("e1")); err != nil {
		t.Fatal(err)
	}
	turn := o.Interact(context.Background(), sendReply+"\n"+sendReply)
	if turn.Result == nil || len(o.Actions()) != 1 {
		t.Errorf("got %d actions", len(o.Actions()))
	}
}

func TestPrecheckForcesIncorrect(t *testing.T) {
	w := newWorld()
	w.Email.Send("a@b.com", "Hi", "Body", "")
	s := emailSpec("pre")
	s.RequirePrecheck = true

	o := newOrch(w, Options{})
	res := play(t, o, s, finishReply)
	if res.Outcome != evaluation.Incorrect {
		t.Fatalf("got %s, want incorrect", res.Outcome)
	}
	if res.Detail["precheck_failed"] != true || res.Detail["precheck_required"] != true {
		t.Errorf("got detail %v", res.Detail)
	}
	findings, _ := res.Detail["precheck_failure_details"].([]precheck.Finding)
	if len(findings) != 1 || findings[0].Found != "a@b.com" {
		t.Errorf("got findings %+v", findings)
	}
}

func TestPrecheckCleanWorld(t *testing.T) {
	s := emailSpec("pre")
	s.RequirePrecheck = true
	res := play(t, newOrch(newWorld(), Options{}), s, sendReply, finishReply)
	if res.Outcome != evaluation.Correct || res.Detail["precheck_failed"] != false {
		t.Errorf("got %s, detail %v", res.Outcome, res.Detail)
	}
}

func TestCascade(t *testing.T) {
	o := newOrch(newWorld(), Options{})

	p := emailSpec("P")
	p.PreTaskFor = "Q, R"
	res := play(t, o, p, finishReply)
	if res.Outcome != evaluation.Incorrect {
		t.Fatalf("P: got %s", res.Outcome)
	}
	if deps, _ := res.Detail["affects_downstream_tasks"].([]string); !slices.Equal(deps, []string{"Q", "R"}) {
		t.Errorf("P: got downstream %v", res.Detail["affects_downstream_tasks"])
	}

	for _, id := range []string{"Q", "R"} {
		res := play(t, o, emailSpec(id), sendReply, finishReply)
		if res.Outcome != evaluation.Incorrect {
			t.Errorf("%s: got %s, want incorrect", id, res.Outcome)
		}
		if res.Detail["failed_prerequisite_task_id"] != "P" || res.Detail["failed_due_to_prerequisite"] != true {
			t.Errorf("%s: got detail %v", id, res.Detail)
		}
		if res.TaskOutput != OutputPrerequisite {
			t.Errorf("%s: got output %q", id, res.TaskOutput)
		}
		want := "Task failed because prerequisite task 'P' failed"
		if res.Detail["error_reason"] != want {
			t.Errorf("%s: got reason %v", id, res.Detail["error_reason"])
		}
	}

	if res := play(t, o, emailSpec("S"), sendReply, finishReply); res.Outcome != evaluation.Correct {
		t.Errorf("S: got %s, want correct", res.Outcome)
	}
}

func TestCascadeIsTransitive(t *testing.T) {
	o := newOrch(newWorld(), Options{})
	p := emailSpec("P")
	p.PreTaskFor = "Q"
	play(t, o, p, finishReply)

	q := emailSpec("Q")
	q.PreTaskFor = "T"
	res := play(t, o, q, sendReply, finishReply)
	if deps, _ := res.Detail["affects_downstream_tasks"].([]string); !slices.Equal(deps, []string{"T"}) {
		t.Errorf("got %v", res.Detail)
	}
	if res := play(t, o, emailSpec("T"), sendReply, finishReply); res.Detail["failed_prerequisite_task_id"] != "Q" {
		t.Errorf("T: got %v", res.Detail)
	}
}

func TestTriggerTask(t *testing.T) {
	s := &task.Spec{ID: "trig", Type: task.TypeTrigger, IsTrigger: true}
	res := play(t, newOrch(newWorld(), Options{}), s, finishReply)
	if res.Outcome != evaluation.Unknown || !res.Trigger() {
		t.Fatalf("got %+v", res)
	}
	if res.Detail["skip_evaluation"] != true || res.Detail["task_id"] != "trig" {
		t.Errorf("got detail %v", res.Detail)
	}
}

func TestQuizAnswer(t *testing.T) {
	s := &task.Spec{ID: "q", Type: task.TypeQuiz, Instruction: "Pick one.", GroundTruth: task.GroundTruth{Answer: "B"}}
	res := play(t, newOrch(newWorld(), Options{}), s, "<action>Answer: B</action>")
	if res.Outcome != evaluation.Correct {
		t.Errorf("got %s, detail %v", res.Outcome, res.Detail)
	}
}

func TestForceComplete(t *testing.T) {
	o := newOrch(newWorld(), Options{})
	if res := o.ForceComplete(context.Background()); res.Outcome != evaluation.Unknown || res.Detail["error"] == nil {
		t.Errorf("no task: got %+v", res)
	}
	if _, err := o.Complete(context.Background()); err != ErrNoTask {
		t.Errorf("got %v, want ErrNoTask", err)
	}

	if err := o.Reset(context.Background(), emailSpec("e")); err != nil {
		t.Fatal(err)
	}
	res := o.ForceComplete(context.Background())
	if res.Outcome != evaluation.Incorrect || res.TaskOutput != OutputForced {
		t.Errorf("got %s %q", res.Outcome, res.TaskOutput)
	}
	again := o.ForceComplete(context.Background())
	if again.Outcome != res.Outcome || !again.EvaluatedAt.Equal(res.EvaluatedAt) {
		t.Error("second completion produced a different result")
	}
	if turn := o.Interact(context.Background(), sendReply); !turn.Done || len(o.Actions()) != 0 {
		t.Error("interact after completion dispatched an action")
	}
}

func TestEntryPointsRecoverPanics(t *testing.T) {
	ctx := context.Background()

	broken := New(nil, nil, Options{}, zap.NewNop())
	if err := broken.Reset(ctx, emailSpec("r")); err == nil || !strings.Contains(err.Error(), "panic") {
		t.Errorf("reset: got %v, want panic error", err)
	}

	o := newOrch(newWorld(), Options{})
	if err := o.Reset(ctx, emailSpec("i")); err != nil {
		t.Fatal(err)
	}
	o.router = nil
	if turn := o.Interact(ctx, sendReply); !turn.Done {
		t.Errorf("interact: got %+v, want done", turn)
	}
	res, err := o.Complete(ctx)
	if err != nil || res.Outcome != evaluation.Unknown || res.TaskID != "i" {
		t.Errorf("after interact panic: got %+v, %v", res, err)
	}

	o = newOrch(newWorld(), Options{})
	if err := o.Reset(ctx, emailSpec("c")); err != nil {
		t.Fatal(err)
	}
	o.cascade = nil
	res, err = o.Complete(ctx)
	if err != nil || res.Outcome != evaluation.Unknown {
		t.Fatalf("complete: got %+v, %v", res, err)
	}
	if msg, _ := res.Detail["error"].(string); !strings.Contains(msg, "complete panic") {
		t.Errorf("got error detail %q", msg)
	}
}

func TestInteractBeforeReset(t *testing.T) {
	o := newOrch(newWorld(), Options{})
	if turn := o.Interact(context.Background(), sendReply); turn.Done || turn.Result != nil {
		t.Errorf("got %+v", turn)
	}
	if err := o.Reset(context.Background(), nil); err != ErrNoTask {
		t.Errorf("got %v", err)
	}
}

func TestNewDayAnnouncedOnce(t *testing.T) {
	o := newOrch(newWorld(), Options{})
	s := emailSpec("d1")
	s.RequireTime = "Week 1, Tuesday, 10:00"
	if err := o.Reset(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	want := "Current date: Week 1, Tuesday. Your current location: Lakeside Dormitory (B083)."
	if !strings.Contains(transcript(o), want) {
		t.Errorf("missing day announcement in:\n%s", transcript(o))
	}
	if o.Day() != "Week 1, Tuesday" {
		t.Errorf("got day %q", o.Day())
	}

	s2 := emailSpec("d2")
	s2.RequireTime = "Week 1, Tuesday, 14:00"
	if err := o.Reset(context.Background(), s2); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(transcript(o), "Current date:") {
		t.Error("day announced twice")
	}
	if !strings.Contains(transcript(o), "Current time: Week 1, Tuesday, 14:00") {
		t.Errorf("missing time in:\n%s", transcript(o))
	}
}

func TestLocationGate(t *testing.T) {
	o := newOrch(newWorld(), Options{})
	s := emailSpec("loc")
	s.RequireTime = "Week 1, Monday, 09:00"
	s.RequirePlace = campus.HomeBuildingID
	ctx := context.Background()

	if err := o.Reset(ctx, s); err != nil {
		t.Fatal(err)
	}
	if o.State() != inject.TimeContextNeeded {
		t.Fatalf("got state %s", o.State())
	}
	o.Interact(ctx, "Understood.")
	o.Interact(ctx, "I am home.")
	if o.State() != inject.TaskContentSent {
		t.Fatalf("got state %s", o.State())
	}
	if !strings.Contains(transcript(o), s.Instruction) {
		t.Error("instruction not revealed")
	}
	o.Interact(ctx, sendReply)
	if turn := o.Interact(ctx, finishReply); !turn.Done {
		t.Fatal("finish did not complete the task")
	}
	res, _ := o.Complete(ctx)
	if res.Outcome != evaluation.Correct || res.Detail["final_location"] != campus.HomeBuildingID {
		t.Errorf("got %s, detail %v", res.Outcome, res.Detail)
	}
}

func TestDisallowedSystem(t *testing.T) {
	o := newOrch(newWorld(), Options{})
	s := emailSpec("e")
	s.AvailableSystems = []string{task.SystemCalendar}
	if err := o.Reset(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	turn := o.Interact(context.Background(), sendReply)
	if turn.Result == nil || turn.Result.OK() {
		t.Fatalf("got %+v", turn.Result)
	}
	if !strings.Contains(turn.Result.Message, "not available") {
		t.Errorf("got message %q", turn.Result.Message)
	}
}

func TestCheckpointResume(t *testing.T) {
	mgr := checkpoint.NewManager(t.TempDir(), zap.NewNop())
	o := newOrch(newWorld(), Options{Checkpoints: mgr, Resume: true})

	p := emailSpec("P")
	p.PreTaskFor = "Q"
	p.RequireTime = "Week 2, Monday, 10:00"
	play(t, o, p, finishReply)

	if _, err := os.Stat(filepath.Join(mgr.Dir(), checkpoint.TaskStateFile)); err != nil {
		t.Fatalf("checkpoint not written: %v", err)
	}

	resumed := newOrch(newWorld(), Options{Checkpoints: mgr, Resume: true})
	res := play(t, resumed, emailSpec("Q"), sendReply, finishReply)
	if res.Detail["failed_prerequisite_task_id"] != "P" {
		t.Errorf("cascade not restored: %v", res.Detail)
	}
	if resumed.Day() != "Week 2, Monday" {
		t.Errorf("got day %q", resumed.Day())
	}

	fresh := newOrch(newWorld(), Options{Checkpoints: mgr})
	if res := play(t, fresh, emailSpec("Q"), sendReply, finishReply); res.Outcome != evaluation.Correct {
		t.Errorf("resume disabled: got %s", res.Outcome)
	}
}

func TestCorruptCheckpointStartsFresh(t *testing.T) {
	mgr := checkpoint.NewManager(t.TempDir(), zap.NewNop())
	if err := os.MkdirAll(mgr.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mgr.Dir(), checkpoint.WorldFile), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	o := newOrch(newWorld(), Options{Checkpoints: mgr, Resume: true})
	if res := play(t, o, emailSpec("e"), sendReply, finishReply); res.Outcome != evaluation.Correct {
		t.Errorf("got %s", res.Outcome)
	}
}

func TestReservationTargets(t *testing.T) {
	s := &task.Spec{ID: "r", GroundTruth: task.GroundTruth{Fields: task.NewObject(
		"expected_reservation_outcome", []any{map[string]any{"seat_id": "S1"}, "junk"},
	)}}
	if got := reservationTargets(s); len(got) != 1 || got[0]["seat_id"] != "S1" {
		t.Errorf("got %v", got)
	}
	flat := &task.Spec{GroundTruth: task.GroundTruth{Fields: task.NewObject("location_id", "B001", "item_name", "Room")}}
	if got := reservationTargets(flat); len(got) != 1 || got[0]["item_name"] != "Room" {
		t.Errorf("got %v", got)
	}
}
