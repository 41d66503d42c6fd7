package evaluation

import (
	"errors"
	"slices"

	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/task"
)

var errNotObject = errors.New("ground truth is not an object")

// componentOrder is the order groups are checked and reported in.
var componentOrder = []string{
	SystemEmail, SystemReservation, SystemCalendar, SystemGeography, SystemWalkTo, SystemCourse,
}

// groups collects criteria per system group in key order. A group holding a
// value that is not an object is marked invalid and fails.
type groups struct {
	criteria map[string][]map[string]any
	invalid  map[string]bool
}

func groupCriteria(gt *task.Object) groups {
	g := groups{criteria: map[string][]map[string]any{}, invalid: map[string]bool{}}
	for _, key := range gt.Keys() {
		sys, ok := GroupOf(key)
		if !ok {
			continue
		}
		v, _ := gt.Get(key)
		list, ok := task.CriteriaList(v)
		if !ok {
			g.invalid[sys] = true
			continue
		}
		g.criteria[sys] = append(g.criteria[sys], list...)
	}
	return g
}

func (g groups) has(sys string) bool {
	return g.invalid[sys] || len(g.criteria[sys]) > 0
}

func evalMultiSystem(in Input, res *Result) (Outcome, error) {
	gt := in.Spec.GroundTruth.Fields
	if gt == nil {
		return Unknown, errNotObject
	}
	g := groupCriteria(gt)

	var failed []string
	for _, sys := range componentOrder {
		if !g.has(sys) {
			continue
		}
		if g.invalid[sys] || !checkComponent(sys, g.criteria[sys], in) {
			failed = append(failed, sys)
		}
	}
	if len(failed) > 0 {
		res.Set("failed_components", failed)
		if in.Spec.RequireSequence {
			res.Set("sequence_validation", "skipped due to component failures")
		}
		return Incorrect, nil
	}

	if in.Spec.RequireSequence {
		if err := ValidateSequence(gt.Keys(), in.Actions); err != nil {
			res.Set("sequence_validation_error", err.Error())
			return Incorrect, nil
		}
	}
	return Correct, nil
}

func checkComponent(sys string, crits []map[string]any, in Input) bool {
	v := in.View
	switch sys {
	case SystemEmail:
		return claimUnique(v.SentEmails(), crits, emailMatches)
	case SystemReservation:
		return claimUnique(v.Bookings(in.Spec.ID), crits, bookingMatches)
	case SystemCalendar:
		calendarID := "self"
		if id, ok := str(crits[0], "calendar_id"); ok && id != "" {
			calendarID = id
		}
		return claimUnique(v.CalendarEvents(calendarID), crits, eventMatches)
	case SystemCourse:
		return claimUnique(v.Draft(), crits, sectionMatches)
	case SystemGeography:
		pos := v.Position()
		visited := pos.Visited()
		for _, c := range crits {
			if want, ok := str(c, "current_location"); ok && pos.LocationID != want {
				return false
			}
			if want, ok := c["visited_locations"]; ok {
				for _, id := range stringList(want) {
					if !slices.Contains(visited, id) {
						return false
					}
				}
			}
		}
		return true
	case SystemWalkTo:
		current := v.Position().LocationID
		for _, c := range crits {
			if want, ok := str(c, "target_location_id"); ok && current != want {
				return false
			}
		}
		return true
	}
	return false
}

func emailMatches(e campus.SentEmail, c map[string]any) bool {
	if want, ok := str(c, "recipient"); ok && e.Recipient != want {
		return false
	}
	if want, ok := str(c, "recipient_contains"); ok && !containsFold(e.Recipient, want) {
		return false
	}
	if want, ok := str(c, "subject_contains"); ok && !containsFold(e.Subject, want) {
		return false
	}
	if want, ok := str(c, "body_contains"); ok && !containsFold(e.Body, unescape(want)) {
		return false
	}
	return true
}

// bookingMatches compares every present field. Multi-system criteria name
// the slot "time"; reservation ground truth names it "time_slot".
func bookingMatches(b campus.Booking, c map[string]any) bool {
	if want, ok := str(c, "time"); ok && b.TimeSlot != want {
		return false
	}
	return bookingFieldsMatch(b, c)
}

func bookingFieldsMatch(b campus.Booking, c map[string]any) bool {
	fields := []struct {
		key, got string
	}{
		{"seat_id", b.SeatID},
		{"item_name", b.ItemName},
		{"location_id", b.LocationID},
		{"time_slot", b.TimeSlot},
		{"date", b.Date},
	}
	for _, f := range fields {
		if want, ok := str(c, f.key); ok && f.got != want {
			return false
		}
	}
	return true
}

func eventMatches(e campus.Event, c map[string]any) bool {
	for _, key := range []string{"event_title_contains", "title_contains"} {
		if want, ok := str(c, key); ok && !containsFold(e.Title, unescape(want)) {
			return false
		}
	}
	if want, ok := str(c, "time"); ok && e.Time != want {
		return false
	}
	if want, ok := str(c, "location"); ok && e.Location != unescape(want) {
		return false
	}
	if want, ok := str(c, "date"); ok && !DateMatches(want, e.Time) {
		return false
	}
	return true
}

func sectionMatches(d campus.DraftEntry, c map[string]any) bool {
	code, ok := str(c, "course_code")
	if !ok || d.CourseCode != code {
		return false
	}
	if pass, ok := str(c, "assigned_pass"); ok && d.AssignedPass != pass {
		return false
	}
	return true
}
