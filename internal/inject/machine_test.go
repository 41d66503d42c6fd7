package inject

import (
	"testing"

	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/chat"
)

type fakeEnv struct {
	at       bool
	arriveOn string // action text that moves the agent to the place
	executed []string
}

func (e *fakeEnv) Execute(text string) campus.ToolResult {
	e.executed = append(e.executed, text)
	if text == e.arriveOn {
		e.at = true
	}
	return campus.Success("ran "+text, nil)
}

func (e *fakeEnv) AtPlace() bool { return e.at }

func contents(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTransitionsAreMonotonic(t *testing.T) {
	for k, c := range table {
		if c.Next < k.state {
			t.Errorf("%s --%d--> %s moves backwards", k.state, k.event, c.Next)
		}
		if c.Next == k.state && k.state != LocationValidationNeeded && k.state != TaskContentSent {
			t.Errorf("unexpected self-loop on %s", k.state)
		}
	}
}

func TestTransitionCells(t *testing.T) {
	tests := []struct {
		state State
		event Event
		place bool
		next  State
		eff   []Effect
	}{
		{TimeContextNeeded, EventReply, true, LocationValidationNeeded, []Effect{InjectTime}},
		{TimeContextNeeded, EventReply, false, TaskContentSent, []Effect{InjectInstruction}},
		{LocationValidationNeeded, EventAtPlace, true, TaskContentSent, []Effect{InjectInstruction}},
		{LocationValidationNeeded, EventExecute, true, LocationValidationNeeded, []Effect{RunAction}},
		{LocationValidationNeeded, EventArrived, true, TaskContentReady, nil},
		{LocationValidationNeeded, EventFinish, true, Completed, []Effect{CompletePremature}},
		{LocationValidationNeeded, EventInvalid, true, LocationValidationNeeded, []Effect{InjectTime}},
		{TaskContentReady, EventReply, false, TaskContentSent, []Effect{InjectInstruction}},
		{TaskContentSent, EventFinish, false, Completed, []Effect{CompleteTask}},
		{TaskContentSent, EventExecute, true, TaskContentSent, []Effect{RunAction}},
		{TaskContentSent, EventInvalid, false, TaskContentSent, []Effect{InjectInvalidHint}},
	}
	for _, tt := range tests {
		c, ok := Transition(tt.state, tt.event, tt.place)
		if !ok {
			t.Errorf("%s/%d/%v: missing cell", tt.state, tt.event, tt.place)
			continue
		}
		if c.Next != tt.next || len(c.Effects) != len(tt.eff) {
			t.Errorf("%s/%d/%v: got %+v", tt.state, tt.event, tt.place, c)
			continue
		}
		for i := range tt.eff {
			if c.Effects[i] != tt.eff[i] {
				t.Errorf("%s/%d/%v: effect %d got %d want %d", tt.state, tt.event, tt.place, i, c.Effects[i], tt.eff[i])
			}
		}
	}
	if _, ok := Transition(Completed, EventExecute, false); ok {
		t.Error("completed state accepts events")
	}
}

func TestStartShortCircuits(t *testing.T) {
	base := Content{SystemPrompt: "SYS", Day: "Week 2, Monday", Time: "Week 2, Monday, 09:00", Place: "B001", Instruction: "Do it."}
	tests := []struct {
		name    string
		flags   Flags
		content Content
		state   State
		want    []string
	}{
		{
			name:  "new day with time only",
			flags: Flags{NewDay: true, HasTime: true},
			state: TaskContentSent,
			want: []string{
				"user:SYS", "agent:Understand.",
				"user:Current date: Week 2, Monday. Your current location: Lakeside Dormitory (B083).", "agent:Understood.",
				"user:Current time: Week 2, Monday, 09:00", "agent:Understood.",
				"user:Do it.",
			},
		},
		{
			name:  "time and place",
			flags: Flags{HasTime: true, HasPlace: true},
			state: TimeContextNeeded,
			want:  []string{"user:SYS", "agent:Understand.", "user:Current time: Week 2, Monday, 09:00"},
		},
		{
			name:    "place only",
			flags:   Flags{HasPlace: true},
			content: Content{SystemPrompt: "SYS", Place: "B001", Instruction: "Do it."},
			state:   LocationValidationNeeded,
			want:    []string{"user:SYS", "agent:Understand.", "user:Current time: Unknown time"},
		},
		{
			name:  "neither",
			flags: Flags{},
			state: TaskContentSent,
			want:  []string{"user:SYS", "agent:Understand.", "user:Do it."},
		},
		{
			name:    "empty instruction without time injects nothing",
			flags:   Flags{},
			content: Content{SystemPrompt: "SYS"},
			state:   TaskContentSent,
			want:    []string{"user:SYS", "agent:Understand."},
		},
		{
			name:    "new day falls back to first day",
			flags:   Flags{NewDay: true},
			content: Content{SystemPrompt: "SYS", Instruction: "Go."},
			state:   TaskContentSent,
			want: []string{
				"user:SYS", "agent:Understand.",
				"user:Current date: Week 1, Monday. Your current location: Lakeside Dormitory (B083).", "agent:Understood.",
				"user:Go.",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.content
			if c.SystemPrompt == "" {
				c = base
			}
			m := New(c)
			got := contents(m.Start(tt.flags))
			if !equal(got, tt.want) {
				t.Errorf("got %q\nwant %q", got, tt.want)
			}
			if m.State() != tt.state {
				t.Errorf("got state %s, want %s", m.State(), tt.state)
			}
		})
	}
}

func TestEmptyInstructionFallsBackToTime(t *testing.T) {
	m := New(Content{SystemPrompt: "SYS", Time: "Week 1, Tuesday, 14:00"})
	got := contents(m.Start(Flags{HasTime: true}))
	last := got[len(got)-1]
	if last != "user:Current time: Week 1, Tuesday, 14:00" {
		t.Errorf("got last %q", last)
	}
}

func TestLocationLoop(t *testing.T) {
	m := New(Content{SystemPrompt: "SYS", Time: "Week 1, Monday, 10:00", Place: "B001", Instruction: "Book a room."})
	m.Start(Flags{HasTime: true, HasPlace: true})
	env := &fakeEnv{arriveOn: `geography.walk_to(path_info={"path": ["B083", "B001"]})`}

	step := m.Handle("Understood.", env)
	if m.State() != LocationValidationNeeded || !equal(contents(step.Inject), []string{"user:Current time: Week 1, Monday, 10:00"}) {
		t.Fatalf("after time ack: state %s inject %q", m.State(), contents(step.Inject))
	}

	step = m.Handle("I am not sure", env)
	if m.State() != LocationValidationNeeded || len(step.Inject) != 1 {
		t.Fatalf("invalid reply: state %s inject %q", m.State(), contents(step.Inject))
	}

	step = m.Handle(`Action: map.find_optimal_path(source_building_id="B083", target_building_id="B001")`, env)
	if m.State() != LocationValidationNeeded || step.Result == nil {
		t.Fatalf("non-arriving action: state %s", m.State())
	}

	step = m.Handle(`<action>Action: geography.walk_to(path_info={"path": ["B083", "B001"]})</action>`, env)
	if m.State() != TaskContentReady {
		t.Fatalf("arriving action: got state %s", m.State())
	}

	step = m.Handle("ok", env)
	if m.State() != TaskContentSent || !equal(contents(step.Inject), []string{"user:Book a room."}) {
		t.Fatalf("content ready: state %s inject %q", m.State(), contents(step.Inject))
	}

	step = m.Handle("Action: finish()", env)
	if !step.Done || step.Output != OutputCompleted || m.State() != Completed {
		t.Errorf("finish: got %+v state %s", step, m.State())
	}
	if len(env.executed) != 2 {
		t.Errorf("got %d executed actions, want 2", len(env.executed))
	}
}

func TestLocationLoopAlreadyThere(t *testing.T) {
	m := New(Content{SystemPrompt: "SYS", Place: "B083", Instruction: "Read."})
	m.Start(Flags{HasPlace: true})
	step := m.Handle("Action: finish()", &fakeEnv{at: true})
	if m.State() != TaskContentSent || !equal(contents(step.Inject), []string{"user:Read."}) {
		t.Errorf("got state %s inject %q", m.State(), contents(step.Inject))
	}
}

func TestPrematureFinish(t *testing.T) {
	m := New(Content{SystemPrompt: "SYS", Place: "B001", Instruction: "Read."})
	m.Start(Flags{HasPlace: true})
	step := m.Handle("Action: finish()", &fakeEnv{})
	if !step.Done || step.Output != OutputPremature || m.State() != Completed {
		t.Errorf("got %+v state %s", step, m.State())
	}
}

func TestTaskContentSent(t *testing.T) {
	m := New(Content{SystemPrompt: "SYS", Instruction: "Quiz?"})
	m.Start(Flags{})
	env := &fakeEnv{}

	step := m.Handle("hmm", env)
	if !equal(contents(step.Inject), []string{"user:" + invalidHint}) {
		t.Errorf("invalid: got %q", contents(step.Inject))
	}
	step = m.Handle(`Action: email.view_inbox()`, env)
	if step.Result == nil || !equal(contents(step.Inject), []string{"user:ran email.view_inbox()"}) {
		t.Errorf("execute: got %q", contents(step.Inject))
	}
	step = m.Handle("Answer: B", env)
	if !step.Done || step.Output != OutputCompleted {
		t.Errorf("answer: got %+v", step)
	}
	if step := m.Handle("Action: finish()", env); step.Done || len(step.Inject) != 0 {
		t.Errorf("completed machine still reacting: %+v", step)
	}
}
