package task

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const jsonTasks = `{
  "metadata": {"version": 2},
  "7": {
    "task_type": "multi_system",
    "instruction": "Book a seat then tell Ana.",
    "require_time": "Week 3, Tuesday 09:00",
    "require_place": false,
    "require_sequence": true,
    "ground_truth": {
      "reservation_made": {"seat_id": "S1"},
      "email_sent": {"recipient": "ana@campus.edu"},
      "calendar_event": {"title_contains": "study"}
    },
    "pre_task_for": " 8, ,9 "
  },
  "8": {
    "task_id": "quiz-1",
    "task_type": "quiz_question",
    "ground_truth": "C",
    "options": {"A": "red", "B": {"value": "blue"}, "C": {"value": 3}}
  },
  "9": {
    "task_type": "trigger",
    "ground_truth": null
  }
}`

func TestLoadJSONObject(t *testing.T) {
	specs, err := Load(writeTemp(t, "tasks.json", jsonTasks))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("got %d specs, want 3", len(specs))
	}

	first := specs[0]
	if first.ID != "7" {
		t.Errorf("ID = %q, want sample key 7", first.ID)
	}
	if first.RequirePlace != "" {
		t.Errorf("boolean require_place should decode as unset, got %q", first.RequirePlace)
	}
	if got := first.SimulationDate(); got != "Week 3, Tuesday" {
		t.Errorf("SimulationDate = %q", got)
	}
	keys := first.GroundTruth.Fields.Keys()
	want := []string{"reservation_made", "email_sent", "calendar_event"}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("ground truth keys = %v, want %v", keys, want)
		}
	}
	deps := first.Dependents()
	if len(deps) != 2 || deps[0] != "8" || deps[1] != "9" {
		t.Errorf("Dependents = %v", deps)
	}

	quiz := specs[1]
	if quiz.ID != "quiz-1" {
		t.Errorf("explicit task_id lost: %q", quiz.ID)
	}
	if quiz.GroundTruth.IsObject() || quiz.GroundTruth.Answer != "C" {
		t.Errorf("quiz ground truth = %+v", quiz.GroundTruth)
	}
	if quiz.Options["B"] != "blue" || quiz.Options["C"] != "3" || quiz.Options["A"] != "red" {
		t.Errorf("options = %v", quiz.Options)
	}
	if quiz.Systems() == nil || len(quiz.Systems()) != 0 {
		t.Errorf("quiz should default to no systems, got %v", quiz.Systems())
	}

	trig := specs[2]
	if !trig.Trigger() {
		t.Error("trigger type should imply trigger")
	}
	if !trig.GroundTruth.IsObject() || trig.GroundTruth.Fields.Len() != 0 {
		t.Errorf("null ground truth should become an empty object, got %+v", trig.GroundTruth)
	}
}

func TestLoadJSONArray(t *testing.T) {
	body := `[{"task_id": "a", "task_type": "email_sending", "ground_truth": {"recipient": "x@y.z"}}, {"task_type": "walking_simple"}]`
	specs, err := Load(writeTemp(t, "tasks.json", body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
	if specs[1].ID != "1" {
		t.Errorf("array task id = %q, want index 1", specs[1].ID)
	}
	if got := specs[0].Systems(); len(got) != 1 || got[0] != SystemEmail {
		t.Errorf("email default systems = %v", got)
	}
}

func TestLoadYAML(t *testing.T) {
	body := `
metadata:
  source: test
s2:
  task_type: calendar_management
  require_time: "Week 1, Monday 10:00"
  require_place: B083
  available_systems: []
  ground_truth:
    event_title: Review
    location: Library
    time: Week 1, Monday 14:00
s1:
  task_type: quiz_question
  ground_truth: B
  options:
    A: {value: yes}
    B: no
`
	specs, err := Load(writeTemp(t, "tasks.yaml", body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
	cal := specs[0]
	if cal.ID != "s2" || cal.RequirePlace != "B083" {
		t.Errorf("calendar task = %+v", cal)
	}
	if cal.AvailableSystems == nil || len(cal.Systems()) != 0 {
		t.Errorf("explicit empty allow-list should stay empty, got %v", cal.Systems())
	}
	if keys := cal.GroundTruth.Fields.Keys(); len(keys) != 3 || keys[0] != "event_title" {
		t.Errorf("yaml key order = %v", keys)
	}
	if specs[1].GroundTruth.Answer != "B" {
		t.Errorf("quiz answer = %q", specs[1].GroundTruth.Answer)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestObjectMarshalKeepsOrder(t *testing.T) {
	o := NewObject("z", 1, "a", "two")
	o.Set("z", 3)
	b, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"z":3,"a":"two"}` {
		t.Errorf("got %s", b)
	}
}

func TestSimulationDateFallback(t *testing.T) {
	s := &Spec{Details: map[string]any{"target_date": "Week 2, Friday"}}
	if got := s.SimulationDate(); got != "Week 2, Friday" {
		t.Errorf("SimulationDate = %q", got)
	}
	s.RequireTime = "sometime"
	if got := s.SimulationDate(); got != "Week 2, Friday" {
		t.Errorf("unmatched time should fall back, got %q", got)
	}
}

func TestCriteriaList(t *testing.T) {
	one := map[string]any{"seat_id": "S1"}
	if got, ok := CriteriaList(one); !ok || len(got) != 1 || got[0]["seat_id"] != "S1" {
		t.Errorf("single object: got %v, %v", got, ok)
	}
	if got, ok := CriteriaList([]any{one, map[string]any{"seat_id": "S2"}}); !ok || len(got) != 2 {
		t.Errorf("list: got %v, %v", got, ok)
	}
	if _, ok := CriteriaList([]any{one, "x"}); ok {
		t.Error("mixed list accepted")
	}
	if _, ok := CriteriaList("x"); ok {
		t.Error("scalar accepted")
	}
}
