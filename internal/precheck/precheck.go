package precheck

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/task"
)

// Finding is one ground-truth component already satisfied before the agent
// acted.
type Finding struct {
	System      string    `json:"system"`
	Component   string    `json:"component"`
	Expected    any       `json:"expected"`
	Found       any       `json:"found"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// Checker audits world state against a task's ground truth.
type Checker struct {
	logger *zap.Logger
}

// NewChecker creates a precheck checker.
func NewChecker(logger *zap.Logger) *Checker {
	return &Checker{logger: logger}
}

type check struct {
	system string
	key    string    // ground-truth key that enables the check for any type
	typ    task.Type // task type that always enables it
	run    func(gt *task.Object, s *task.Spec, v campus.View, now time.Time) []Finding
}

var checks = []check{
	{"email", "email_sent", task.TypeEmail, checkEmail},
	{"reservation", "reservation_made", task.TypeReservation, checkReservation},
	{"calendar", "calendar_event", task.TypeCalendar, checkCalendar},
	{"course_selection", "course_selected", task.TypeCourse, checkCourse},
	{"geography", "location_reached", task.TypeWalking, checkGeography},
}

// Run returns every finding for s. It does nothing unless the task asks
// for a precheck and its ground truth is an object. A failing subsystem
// check is logged and skipped.
func (c *Checker) Run(s *task.Spec, v campus.View, now time.Time) []Finding {
	gt := s.GroundTruth.Fields
	if !s.RequirePrecheck || gt == nil {
		return nil
	}
	var out []Finding
	for _, ch := range checks {
		if s.Type != ch.typ && !gt.Has(ch.key) {
			continue
		}
		out = append(out, c.safe(ch, gt, s, v, now)...)
	}
	if len(out) > 0 {
		c.logger.Warn("precheck found pre-satisfied ground truth",
			zap.String("task", s.ID), zap.Int("findings", len(out)))
	}
	return out
}

func (c *Checker) safe(ch check, gt *task.Object, s *task.Spec, v campus.View, now time.Time) (out []Finding) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("precheck failed", zap.String("system", ch.system), zap.String("task", s.ID), zap.Any("panic", r))
			out = nil
		}
	}()
	return ch.run(gt, s, v, now)
}

func checkEmail(gt *task.Object, _ *task.Spec, v campus.View, now time.Time) []Finding {
	latest, ok := v.LatestEmail()
	if !ok {
		return nil
	}
	want, component := "", ""
	switch {
	case gt.Has("recipient"):
		want, component = gt.String("recipient"), "recipient"
	case gt.Has("email_sent"):
		r, ok := gt.Map("email_sent")["recipient"]
		if !ok {
			return nil
		}
		want, component = task.AsString(r), "email_sent.recipient"
	default:
		return nil
	}
	if latest.Recipient != want {
		return nil
	}
	return []Finding{{
		System: "email", Component: component, Expected: want, Found: latest.Recipient, Timestamp: now,
		Description: fmt.Sprintf("Email recipient '%s' already satisfied before task execution", want),
	}}
}

func checkReservation(gt *task.Object, s *task.Spec, v campus.View, now time.Time) []Finding {
	bookings := v.Bookings(s.ID)
	if len(bookings) == 0 {
		return nil
	}
	const desc = "Reservation already satisfied before task execution"
	var out []Finding
	switch {
	case gt.Has("expected_reservation_outcome"):
		raw, _ := gt.Get("expected_reservation_outcome")
		expected, _ := task.CriteriaList(raw)
		for _, b := range bookings {
			for _, want := range expected {
				if matchAny(want, map[string]string{"seat_id": b.SeatID, "item_name": b.ItemName}) {
					out = append(out, Finding{System: "reservation", Component: "expected_reservation_outcome",
						Expected: want, Found: b, Timestamp: now, Description: desc})
				}
			}
		}
	case gt.Has("reservation_made"):
		want := gt.Map("reservation_made")
		for _, b := range bookings {
			if matchAll(want, map[string]string{"item_name": b.ItemName, "location_id": b.LocationID}) {
				out = append(out, Finding{System: "reservation", Component: "reservation_made",
					Expected: want, Found: b, Timestamp: now, Description: desc})
				break
			}
		}
	}
	return out
}

func checkCalendar(gt *task.Object, _ *task.Spec, v campus.View, now time.Time) []Finding {
	calendarID := "self"
	if id := task.AsString(gt.Map("calendar_event")["calendar_id"]); id != "" {
		calendarID = id
	}
	events := v.CalendarEvents(calendarID)
	const desc = "Calendar event already satisfied before task execution"
	found := func(e campus.Event) map[string]any {
		return map[string]any{"event_title": e.Title, "location": e.Location, "time": e.Time}
	}

	var out []Finding
	switch {
	case gt.Has("event_title"):
		want := map[string]any{"event_title": gt.String("event_title"), "location": gt.String("location"), "time": gt.String("time")}
		for _, e := range events {
			if e.Title == want["event_title"] && e.Location == want["location"] && e.Time == want["time"] {
				out = append(out, Finding{System: "calendar", Component: "event",
					Expected: want, Found: found(e), Timestamp: now, Description: desc})
			}
		}
	case gt.Has("calendar_event"):
		want := gt.Map("calendar_event")
		for _, e := range events {
			if t, ok := want["event_title_contains"]; ok && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(task.AsString(t))) {
				continue
			}
			if !matchAll(want, map[string]string{"time": e.Time, "location": e.Location}) {
				continue
			}
			out = append(out, Finding{System: "calendar", Component: "calendar_event",
				Expected: want, Found: found(e), Timestamp: now, Description: desc})
			break
		}
	}
	return out
}

func checkCourse(gt *task.Object, _ *task.Spec, v campus.View, now time.Time) []Finding {
	draft := v.Draft()
	const desc = "Course selection already satisfied before task execution"
	var out []Finding
	switch {
	case gt.Has("expected_schedule_outcome"):
		sections, _ := gt.Map("expected_schedule_outcome")["selected_sections"].([]any)
		for _, e := range sections {
			want, ok := e.(map[string]any)
			if !ok {
				continue
			}
			for _, d := range draft {
				if d.CourseCode == task.AsString(want["course_code"]) && d.AssignedPass == task.AsString(want["assigned_pass"]) {
					out = append(out, Finding{System: "course_selection", Component: "expected_schedule_outcome",
						Expected: want, Found: d, Timestamp: now, Description: desc})
				}
			}
		}
	case gt.Has("course_selected"):
		want := gt.Map("course_selected")
		code, ok := want["course_code"]
		if !ok {
			return nil
		}
		for _, d := range draft {
			if d.CourseCode != task.AsString(code) {
				continue
			}
			if p, ok := want["assigned_pass"]; ok && d.AssignedPass != task.AsString(p) {
				continue
			}
			out = append(out, Finding{System: "course_selection", Component: "course_selected",
				Expected: want, Found: d, Timestamp: now, Description: desc})
			break
		}
	}
	return out
}

func checkGeography(gt *task.Object, _ *task.Spec, v campus.View, now time.Time) []Finding {
	current := v.Position().LocationID
	const desc = "Target location already reached before task execution"
	var want, component string
	switch {
	case gt.Has("expected_outcome"):
		want, component = task.AsString(gt.Map("expected_outcome")["target_location_id"]), "expected_outcome.target_location_id"
	case gt.Has("location_reached"):
		want, component = task.AsString(gt.Map("location_reached")["current_location"]), "location_reached.current_location"
	}
	if want == "" || current != want {
		return nil
	}
	return []Finding{{System: "geography", Component: component, Expected: want, Found: current, Timestamp: now, Description: desc}}
}

// matchAny reports whether any key present in want equals the observed value.
func matchAny(want map[string]any, got map[string]string) bool {
	for k, g := range got {
		if w, ok := want[k]; ok && task.AsString(w) == g {
			return true
		}
	}
	return false
}

// matchAll reports whether every key present in want equals the observed value.
func matchAll(want map[string]any, got map[string]string) bool {
	for k, g := range got {
		if w, ok := want[k]; ok && task.AsString(w) != g {
			return false
		}
	}
	return true
}
