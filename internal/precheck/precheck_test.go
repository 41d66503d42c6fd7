package precheck

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/task"
)

type fakeView struct {
	sent     []campus.SentEmail
	events   []campus.Event
	pos      campus.Position
	bookings []campus.Booking
	draft    []campus.DraftEntry
	broken   bool
}

func (f *fakeView) SentEmails() []campus.SentEmail { return f.sent }
func (f *fakeView) LatestEmail() (campus.SentEmail, bool) {
	if f.broken {
		panic("inbox corrupted")
	}
	if len(f.sent) == 0 {
		return campus.SentEmail{}, false
	}
	return f.sent[len(f.sent)-1], true
}
func (f *fakeView) CalendarEvents(string) []campus.Event { return f.events }
func (f *fakeView) Position() campus.Position           { return f.pos }
func (f *fakeView) Bookings(string) []campus.Booking    { return f.bookings }
func (f *fakeView) Draft() []campus.DraftEntry          { return f.draft }

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func prechecked(typ task.Type, kv ...any) *task.Spec {
	return &task.Spec{ID: "t1", Type: typ, RequirePrecheck: true, GroundTruth: task.GroundTruth{Fields: task.NewObject(kv...)}}
}

func run(s *task.Spec, v campus.View) []Finding {
	return NewChecker(zap.NewNop()).Run(s, v, now)
}

func TestEmailRecipientAlreadySent(t *testing.T) {
	s := prechecked(task.TypeEmail, "recipient", "a@b.com", "subject", "Hello")
	v := &fakeView{sent: []campus.SentEmail{{Recipient: "a@b.com"}}}

	got := run(s, v)
	if len(got) != 1 {
		t.Fatalf("got %d findings, want 1", len(got))
	}
	f := got[0]
	if f.System != "email" || f.Component != "recipient" || f.Expected != "a@b.com" || f.Found != "a@b.com" {
		t.Errorf("got %+v", f)
	}
	if !f.Timestamp.Equal(now) {
		t.Errorf("got timestamp %v", f.Timestamp)
	}

	s.RequirePrecheck = false
	if got := run(s, v); got != nil {
		t.Errorf("precheck disabled: got %+v", got)
	}
}

func TestEmailSentComponent(t *testing.T) {
	s := prechecked(task.TypeMultiSystem, "email_sent", map[string]any{"recipient": "a@b.com"})
	if got := run(s, &fakeView{sent: []campus.SentEmail{{Recipient: "c@d.com"}}}); len(got) != 0 {
		t.Errorf("other recipient: got %+v", got)
	}
	got := run(s, &fakeView{sent: []campus.SentEmail{{Recipient: "a@b.com"}}})
	if len(got) != 1 || got[0].Component != "email_sent.recipient" {
		t.Errorf("got %+v", got)
	}
}

func TestReservation(t *testing.T) {
	v := &fakeView{bookings: []campus.Booking{{LocationID: "B001", ItemName: "Room 1", SeatID: "S1"}}}
	s := prechecked(task.TypeReservation, "expected_reservation_outcome", []any{
		map[string]any{"seat_id": "S9", "item_name": "Room 1"},
	})
	if got := run(s, v); len(got) != 1 {
		t.Errorf("item name match: got %d findings", len(got))
	}

	s = prechecked(task.TypeReservation, "expected_reservation_outcome", map[string]any{"seat_id": "S1"})
	if got := run(s, v); len(got) != 1 {
		t.Errorf("single object outcome: got %d findings", len(got))
	}

	s = prechecked(task.TypeMultiSystem, "reservation_made", map[string]any{"item_name": "Room 1", "location_id": "B002"})
	if got := run(s, v); len(got) != 0 {
		t.Errorf("location differs: got %+v", got)
	}
}

func TestCalendar(t *testing.T) {
	v := &fakeView{events: []campus.Event{{Title: "Club Meeting", Location: "B010", Time: "Week 2, Friday, 18:00-19:00"}}}
	s := prechecked(task.TypeCalendar, "event_title", "Club Meeting", "location", "B010", "time", "Week 2, Friday, 18:00-19:00")
	if got := run(s, v); len(got) != 1 || got[0].Component != "event" {
		t.Errorf("got %+v", got)
	}
	s = prechecked(task.TypeMultiSystem, "calendar_event", map[string]any{"event_title_contains": "club", "location": "B010"})
	if got := run(s, v); len(got) != 1 || got[0].Component != "calendar_event" {
		t.Errorf("got %+v", got)
	}
}

func TestCourse(t *testing.T) {
	v := &fakeView{draft: []campus.DraftEntry{{CourseCode: "CS101", AssignedPass: "A"}}}
	s := prechecked(task.TypeMultiSystem, "course_selected", map[string]any{"course_code": "CS101", "assigned_pass": "B"})
	if got := run(s, v); len(got) != 0 {
		t.Errorf("pass differs: got %+v", got)
	}
	s = prechecked(task.TypeCourse, "expected_schedule_outcome", map[string]any{
		"selected_sections": []any{map[string]any{"course_code": "CS101", "assigned_pass": "A"}},
	})
	if got := run(s, v); len(got) != 1 {
		t.Errorf("got %d findings, want 1", len(got))
	}
}

func TestGeography(t *testing.T) {
	v := &fakeView{pos: campus.Position{LocationID: campus.HomeBuildingID}}
	s := prechecked(task.TypeWalking, "expected_outcome", map[string]any{"target_location_id": campus.HomeBuildingID})
	if got := run(s, v); len(got) != 1 || got[0].System != "geography" {
		t.Errorf("got %+v", got)
	}
	s = prechecked(task.TypeMultiSystem, "location_reached", map[string]any{"current_location": "B001"})
	if got := run(s, v); len(got) != 0 {
		t.Errorf("elsewhere: got %+v", got)
	}
}

func TestBrokenSubsystemIsSkipped(t *testing.T) {
	s := prechecked(task.TypeMultiSystem,
		"email_sent", map[string]any{"recipient": "a@b.com"},
		"location_reached", map[string]any{"current_location": "B083"})
	v := &fakeView{broken: true, pos: campus.Position{LocationID: "B083"}}
	got := run(s, v)
	if len(got) != 1 || got[0].System != "geography" {
		t.Errorf("got %+v", got)
	}
}

func TestLetterGroundTruthIgnored(t *testing.T) {
	s := &task.Spec{ID: "q", Type: task.TypeQuiz, RequirePrecheck: true, GroundTruth: task.GroundTruth{Answer: "A"}}
	if got := run(s, &fakeView{}); got != nil {
		t.Errorf("got %+v", got)
	}
}
