package evaluation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/action"
	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/task"
)

// Input is everything an evaluator may inspect once a task ends.
type Input struct {
	Spec      *task.Spec
	View      campus.View
	Actions   []ActionRecord
	LastReply string // the agent's final message
}

type evaluator func(in Input, res *Result) (Outcome, error)

var evaluators = map[task.Type]evaluator{
	task.TypeEmail:       evalEmail,
	task.TypeCourse:      evalCourse,
	task.TypeWalking:     evalWalking,
	task.TypeNavigation:  evalWalking,
	task.TypeCalendar:    evalCalendar,
	task.TypeReservation: evalReservation,
	task.TypeQuiz:        evalQuiz,
	task.TypeMultiSystem: evalMultiSystem,
}

// Engine dispatches a finished task to its evaluator.
type Engine struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates an evaluation engine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger, now: time.Now}
}

// Evaluate judges one task. It never panics: evaluator failures yield
// Unknown with an "error" detail.
func (e *Engine) Evaluate(in Input) (res Result) {
	res = Result{TaskID: in.Spec.ID, TaskType: in.Spec.Type, Outcome: Unknown, EvaluatedAt: e.now()}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = Unknown
			res.Set("error", fmt.Sprintf("evaluator panic: %v", r))
			e.logger.Error("evaluator panicked", zap.String("task", in.Spec.ID), zap.Any("panic", r))
		}
	}()

	eval, ok := evaluators[in.Spec.Type]
	if !ok {
		res.Set("reason", fmt.Sprintf("no evaluator for task type %q", in.Spec.Type))
		return res
	}
	out, err := eval(in, &res)
	if err != nil {
		res.Outcome = Unknown
		res.Set("error", err.Error())
		e.logger.Warn("evaluation failed", zap.String("task", in.Spec.ID), zap.Error(err))
		return res
	}
	res.Outcome = out
	e.logger.Debug("task evaluated",
		zap.String("task", in.Spec.ID), zap.String("type", string(in.Spec.Type)), zap.String("outcome", string(out)))
	return res
}

func evalEmail(in Input, _ *Result) (Outcome, error) {
	gt := in.Spec.GroundTruth.Fields
	if gt == nil {
		return Unknown, errNotObject
	}
	latest, ok := in.View.LatestEmail()
	if !ok {
		return Incorrect, nil
	}
	if latest.Recipient == gt.String("recipient") &&
		latest.Subject == gt.String("subject") &&
		latest.Body == unescape(gt.String("body")) {
		return Correct, nil
	}
	return Incorrect, nil
}

func evalCourse(in Input, _ *Result) (Outcome, error) {
	gt := in.Spec.GroundTruth.Fields
	if gt == nil {
		return Unknown, errNotObject
	}
	expected, _ := task.CriteriaList(gt.Map("expected_schedule_outcome")["selected_sections"])
	draft := in.View.Draft()
	if len(draft) != len(expected) {
		return Incorrect, nil
	}
	for _, want := range expected {
		code, pass := task.AsString(want["course_code"]), task.AsString(want["assigned_pass"])
		found := false
		for _, d := range draft {
			if d.CourseCode == code && d.AssignedPass == pass {
				found = true
				break
			}
		}
		if !found {
			return Incorrect, nil
		}
	}
	return Correct, nil
}

// StitchPath joins walk segments, dropping the repeated building where one
// segment starts where the previous ended.
func StitchPath(history [][]string) []string {
	var out []string
	for _, seg := range history {
		if len(out) > 0 && len(seg) > 0 && out[len(out)-1] == seg[0] {
			seg = seg[1:]
		}
		out = append(out, seg...)
	}
	return out
}

func evalWalking(in Input, res *Result) (Outcome, error) {
	gt := in.Spec.GroundTruth.Fields
	if gt == nil {
		return Unknown, errNotObject
	}
	pos := in.View.Position()
	v, _ := gt.Get("path_taken")
	expected := stringList(v)
	if len(expected) == 0 {
		target := task.AsString(gt.Map("expected_outcome")["target_location_id"])
		if target != "" && pos.LocationID == target {
			return Correct, nil
		}
		return Incorrect, nil
	}

	agent := StitchPath(pos.WalkHistory)
	if slices.Equal(agent, expected) {
		return Correct, nil
	}
	res.Set("error_reason", "Path taken does not match expected path.")
	res.Set("expected_path", expected)
	res.Set("agent_path", agent)
	return Incorrect, nil
}

// calendarExpectation reads title, location and time from details, falling
// back to the ground truth.
func calendarExpectation(s *task.Spec) (title, location, when string) {
	pick := func(key string) string {
		if v := s.DetailString(key); v != "" {
			return v
		}
		return s.GroundTruth.Fields.String(key)
	}
	return pick("event_title"), pick("location"), pick("time")
}

func evalCalendar(in Input, _ *Result) (Outcome, error) {
	title, location, when := calendarExpectation(in.Spec)
	if when == "" {
		return Unknown, errors.New("calendar task has no expected time")
	}
	calendarID := in.Spec.DetailString("calendar_id")
	if calendarID == "" {
		calendarID = "self"
	}
	for _, ev := range in.View.CalendarEvents(calendarID) {
		if ev.Title == title && ev.Location == location && DateMatches(when, ev.Time) {
			return Correct, nil
		}
	}
	return Incorrect, nil
}

// expectedBookings accepts expected_reservation_outcome or a flat object
// carrying location_id.
func expectedBookings(gt *task.Object) []map[string]any {
	if v, ok := gt.Get("expected_reservation_outcome"); ok {
		list, _ := task.CriteriaList(v)
		return list
	}
	if gt.Has("location_id") {
		return []map[string]any{gt.Plain()}
	}
	return nil
}

func evalReservation(in Input, _ *Result) (Outcome, error) {
	gt := in.Spec.GroundTruth.Fields
	if gt == nil {
		return Unknown, errNotObject
	}
	bookings := in.View.Bookings(in.Spec.ID)
	if len(bookings) == 0 {
		return Incorrect, nil
	}
	expected := expectedBookings(gt)
	for _, b := range bookings {
		for _, want := range expected {
			if bookingFieldsMatch(b, want) {
				return Correct, nil
			}
		}
	}
	return Incorrect, nil
}

func evalQuiz(in Input, res *Result) (Outcome, error) {
	want := strings.ToUpper(strings.TrimSpace(in.Spec.GroundTruth.Answer))
	if want == "" {
		return Unknown, errors.New("quiz ground truth is not a letter")
	}
	p := action.Parse(in.LastReply)
	if p.Kind != action.Answer {
		return Incorrect, nil
	}
	res.Set("agent_answer", p.Content)
	if p.Content == want {
		return Correct, nil
	}
	return Incorrect, nil
}

// TaskOutput captures the observable end state a task type is judged on,
// for detail records. It returns nil when there is nothing to show.
func TaskOutput(in Input) any {
	v := in.View
	switch in.Spec.Type {
	case task.TypeEmail:
		if e, ok := v.LatestEmail(); ok {
			return map[string]any{"recipient": e.Recipient, "subject": e.Subject, "body": e.Body}
		}
	case task.TypeCourse:
		return map[string]any{"selected_sections": v.Draft()}
	case task.TypeWalking, task.TypeNavigation:
		pos := v.Position()
		return map[string]any{"current_location_id": pos.LocationID, "walk_history": pos.WalkHistory}
	case task.TypeCalendar:
		id := in.Spec.DetailString("calendar_id")
		if id == "" {
			id = "self"
		}
		return map[string]any{"calendar_events": v.CalendarEvents(id)}
	case task.TypeReservation:
		return map[string]any{"reservations": v.Bookings(in.Spec.ID)}
	case task.TypeQuiz:
		if p := action.Parse(in.LastReply); p.Kind == action.Answer {
			return map[string]any{"agent_answer": p.Content}
		}
	case task.TypeMultiSystem:
		return multiOutput(in)
	}
	return nil
}

func multiOutput(in Input) any {
	gt := in.Spec.GroundTruth.Fields
	if gt == nil {
		return nil
	}
	v := in.View
	out := map[string]any{}
	if gt.Has("email_sent") {
		if e, ok := v.LatestEmail(); ok {
			out["email"] = map[string]any{"recipient": e.Recipient, "subject": e.Subject, "body": e.Body}
		}
	}
	if gt.Has("reservation_made") {
		out["reservations"] = v.Bookings(in.Spec.ID)
	}
	if gt.Has("calendar_event") {
		id := task.AsString(gt.Map("calendar_event")["calendar_id"])
		if id == "" {
			id = "self"
		}
		out["calendar_events"] = v.CalendarEvents(id)
	}
	if gt.Has("location_reached") || gt.Has("walk_to") {
		pos := v.Position()
		geo := map[string]any{"current_location_id": pos.LocationID}
		if gt.Has("walk_to") {
			geo["walk_history"] = pos.WalkHistory
		}
		out["geography"] = geo
	}
	if gt.Has("course_selected") {
		out["course_selection"] = map[string]any{"selected_sections": v.Draft()}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
