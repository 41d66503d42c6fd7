package inject

import (
	"fmt"
	"strings"

	"github.com/nidhogg/campus-eval/internal/action"
	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/chat"
)

// State is the position in the context-injection sequence. States are
// ordered; a task never moves to a lower state.
type State int

const (
	SystemPromptSent State = iota
	DailyContextNeeded
	DailyContextSent
	TimeContextNeeded
	TimeContextSent
	LocationValidationNeeded
	TaskContentReady
	TaskContentSent
	Completed
)

var stateNames = [...]string{
	"system_prompt_sent", "daily_context_needed", "daily_context_sent",
	"time_context_needed", "time_context_sent", "location_validation_needed",
	"task_content_ready", "task_content_sent", "completed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Event is what happened in one round.
type Event int

const (
	EventReply   Event = iota // any agent reply, content not inspected
	EventAtPlace              // agent already stands at the required place
	EventExecute              // reply parsed to an action
	EventArrived              // the executed action brought the agent to the place
	EventFinish               // reply parsed to finish() or an answer
	EventInvalid              // reply did not parse
)

// Effect is a side effect a transition requests.
type Effect int

const (
	InjectInstruction Effect = iota
	InjectTime
	InjectInvalidHint
	RunAction
	CompletePremature
	CompleteTask
)

// Cell is one entry of the transition table.
type Cell struct {
	Next    State
	Effects []Effect
}

type key struct {
	state         State
	event         Event
	placeRequired bool
}

var table = func() map[key]Cell {
	t := map[key]Cell{
		{TimeContextNeeded, EventReply, true}:  {LocationValidationNeeded, []Effect{InjectTime}},
		{TimeContextNeeded, EventReply, false}: {TaskContentSent, []Effect{InjectInstruction}},

		{LocationValidationNeeded, EventAtPlace, true}: {TaskContentSent, []Effect{InjectInstruction}},
		{LocationValidationNeeded, EventExecute, true}: {LocationValidationNeeded, []Effect{RunAction}},
		{LocationValidationNeeded, EventArrived, true}: {TaskContentReady, nil},
		{LocationValidationNeeded, EventFinish, true}:  {Completed, []Effect{CompletePremature}},
		{LocationValidationNeeded, EventInvalid, true}: {LocationValidationNeeded, []Effect{InjectTime}},
	}
	for _, place := range []bool{true, false} {
		t[key{TaskContentReady, EventReply, place}] = Cell{TaskContentSent, []Effect{InjectInstruction}}
		t[key{TaskContentSent, EventFinish, place}] = Cell{Completed, []Effect{CompleteTask}}
		t[key{TaskContentSent, EventExecute, place}] = Cell{TaskContentSent, []Effect{RunAction}}
		t[key{TaskContentSent, EventInvalid, place}] = Cell{TaskContentSent, []Effect{InjectInvalidHint}}
	}
	return t
}()

// Transition looks up one cell of the table.
func Transition(s State, e Event, placeRequired bool) (Cell, bool) {
	c, ok := table[key{s, e, placeRequired}]
	return c, ok
}

// Task outputs recorded when a task ends through the state machine.
const (
	OutputCompleted = "Task completed by agent"
	OutputPremature = "Task finished prematurely by agent before reaching location"
)

const (
	fallbackDay = "Week 1, Monday"
	invalidHint = "Invalid action. Please provide a valid Action."
)

// Content is everything the machine may reveal for one task.
type Content struct {
	SystemPrompt string
	Day          string // simulated day announced on a new day
	Time         string // required time, "" when none
	Place        string // required building id, "" when none
	Instruction  string
}

// Flags pick the short-circuit path at task start.
type Flags struct {
	NewDay   bool
	HasTime  bool
	HasPlace bool
}

// Env is what the machine needs from the running task.
type Env interface {
	// Execute dispatches an action and records it.
	Execute(text string) campus.ToolResult
	// AtPlace reports whether the agent stands at the required place.
	AtPlace() bool
}

// Step is the result of handling one agent reply.
type Step struct {
	Inject []chat.Message
	Result *campus.ToolResult // set when an action ran
	Done   bool
	Output string
}

// Machine drives context injection for one task. Not safe for concurrent use.
type Machine struct {
	state   State
	content Content
}

// New creates a machine positioned before Start.
func New(c Content) *Machine {
	return &Machine{state: SystemPromptSent, content: c}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Start returns the opening transcript and moves to the first state that
// waits on the agent.
func (m *Machine) Start(f Flags) []chat.Message {
	msgs := []chat.Message{chat.User(m.content.SystemPrompt), chat.Agent("Understand.")}
	m.state = SystemPromptSent

	if f.NewDay {
		day := m.content.Day
		if day == "" {
			day = fallbackDay
		}
		m.state = DailyContextNeeded
		msgs = append(msgs,
			chat.User(fmt.Sprintf("Current date: %s. Your current location: %s (%s).", day, campus.HomeBuildingName, campus.HomeBuildingID)),
			chat.Agent("Understood."))
		m.state = DailyContextSent
	}

	switch {
	case f.HasTime && !f.HasPlace:
		msgs = append(msgs, chat.User(m.timeMessage()), chat.Agent("Understood."))
		m.state = TimeContextSent
		msgs = m.appendInstruction(msgs)
		m.state = TaskContentSent
	case f.HasTime:
		msgs = append(msgs, chat.User(m.timeMessage()))
		m.state = TimeContextNeeded
	case f.HasPlace:
		msgs = append(msgs, chat.User(m.timeMessage()))
		m.state = LocationValidationNeeded
	default:
		msgs = m.appendInstruction(msgs)
		m.state = TaskContentSent
	}
	return msgs
}

// Handle advances the machine with the agent's latest reply.
func (m *Machine) Handle(reply string, env Env) Step {
	var step Step
	place := m.content.Place != ""

	var ev Event
	var parsed action.Parsed
	switch m.state {
	case TimeContextNeeded, TaskContentReady:
		ev = EventReply
	case LocationValidationNeeded:
		if env.AtPlace() {
			ev = EventAtPlace
			break
		}
		parsed = action.Parse(reply)
		ev = classify(parsed)
	case TaskContentSent:
		parsed = action.Parse(reply)
		ev = classify(parsed)
	default:
		return step
	}

	m.apply(ev, place, parsed, env, &step)
	if ev == EventExecute && m.state == LocationValidationNeeded && env.AtPlace() {
		m.apply(EventArrived, place, parsed, env, &step)
	}
	return step
}

func (m *Machine) apply(ev Event, place bool, parsed action.Parsed, env Env, step *Step) {
	cell, ok := Transition(m.state, ev, place)
	if !ok {
		return
	}
	for _, eff := range cell.Effects {
		switch eff {
		case InjectInstruction:
			step.Inject = m.appendInstruction(step.Inject)
		case InjectTime:
			step.Inject = append(step.Inject, chat.User(m.timeMessage()))
		case InjectInvalidHint:
			step.Inject = append(step.Inject, chat.User(invalidHint))
		case RunAction:
			res := env.Execute(parsed.Content)
			step.Result = &res
			step.Inject = append(step.Inject, chat.User(res.Message))
		case CompletePremature:
			step.Done, step.Output = true, OutputPremature
		case CompleteTask:
			step.Done, step.Output = true, OutputCompleted
		}
	}
	m.state = cell.Next
}

func classify(p action.Parsed) Event {
	switch p.Kind {
	case action.Execute:
		return EventExecute
	case action.Finish, action.Answer:
		return EventFinish
	default:
		return EventInvalid
	}
}

func (m *Machine) timeMessage() string {
	t := m.content.Time
	if t == "" {
		t = "Unknown time"
	}
	return "Current time: " + t
}

// instruction is the task text; an empty instruction falls back to the
// time when one is set, else nothing is revealed.
func (m *Machine) instruction() string {
	if strings.TrimSpace(m.content.Instruction) != "" {
		return m.content.Instruction
	}
	if m.content.Time != "" {
		return "Current time: " + m.content.Time
	}
	return ""
}

func (m *Machine) appendInstruction(msgs []chat.Message) []chat.Message {
	if s := m.instruction(); s != "" {
		msgs = append(msgs, chat.User(s))
	}
	return msgs
}
