package campus

import (
	"encoding/json"
	"fmt"
)

// SnapshotVersion is bumped whenever a snapshot type changes shape.
const SnapshotVersion = 1

// ErrSnapshotVersion is returned when restoring a snapshot written by an
// incompatible version.
var ErrSnapshotVersion = fmt.Errorf("unsupported world snapshot version")

// EmailSnapshot is the persisted state of Email.
type EmailSnapshot struct {
	Sent   []SentEmail  `json:"sent"`
	Inbox  []InboxEmail `json:"inbox"`
	NextID int          `json:"next_id"`
}

// CalendarSnapshot is the persisted state of Calendar.
type CalendarSnapshot struct {
	Calendars map[string][]Event            `json:"calendars"`
	Advisor   map[string]map[string][]string `json:"advisor_availability"`
}

// AvailabilityEntry is one configured reservation availability.
type AvailabilityEntry struct {
	BuildingID string   `json:"building_id"`
	ItemName   string   `json:"item_name"`
	Times      []string `json:"available_times"`
}

// ReservationSnapshot is the persisted state of Reservation.
type ReservationSnapshot struct {
	Bookings   []Booking           `json:"bookings"`
	Configured []AvailabilityEntry `json:"configured"`
}

// CourseSnapshot is the persisted state of Registrar.
type CourseSnapshot struct {
	States map[string]CourseState `json:"states"`
	Draft  []DraftEntry           `json:"draft"`
}

// Snapshot is the complete mutable state of a World. Static data (map,
// books, catalogue) is reloaded from disk and not part of it.
type Snapshot struct {
	Version     int                 `json:"version"`
	CurrentDay  string              `json:"current_day"`
	Email       EmailSnapshot       `json:"email"`
	Calendar    CalendarSnapshot    `json:"calendar"`
	Geography   Position            `json:"geography"`
	Reservation ReservationSnapshot `json:"reservation"`
	Courses     CourseSnapshot      `json:"courses"`
}

// Marshal encodes the snapshot for storage.
func (s Snapshot) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// UnmarshalSnapshot decodes and version-checks a stored snapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode world snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrSnapshotVersion, s.Version)
	}
	return s, nil
}

func (e *Email) snapshot() EmailSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return EmailSnapshot{
		Sent:   append([]SentEmail{}, e.sent...),
		Inbox:  append([]InboxEmail{}, e.inbox...),
		NextID: e.nextID,
	}
}

func (e *Email) restore(s EmailSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append([]SentEmail(nil), s.Sent...)
	e.inbox = append([]InboxEmail(nil), s.Inbox...)
	e.nextID = s.NextID
}

func (c *Calendar) snapshot() CalendarSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := CalendarSnapshot{
		Calendars: make(map[string][]Event, len(c.calendars)),
		Advisor:   make(map[string]map[string][]string, len(c.advisor)),
	}
	for id, evs := range c.calendars {
		s.Calendars[id] = append([]Event{}, evs...)
	}
	for id, days := range c.advisor {
		s.Advisor[id] = make(map[string][]string, len(days))
		for d, slots := range days {
			s.Advisor[id][d] = append([]string{}, slots...)
		}
	}
	return s
}

func (c *Calendar) restore(s CalendarSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calendars = map[string][]Event{"self": {}}
	for id, evs := range s.Calendars {
		c.calendars[id] = append([]Event{}, evs...)
	}
	c.advisor = make(map[string]map[string][]string, len(s.Advisor))
	for id, days := range s.Advisor {
		c.advisor[id] = make(map[string][]string, len(days))
		for d, slots := range days {
			c.advisor[id][d] = append([]string{}, slots...)
		}
	}
}

func (g *Geography) restore(p Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.LocationID == "" {
		p.LocationID, p.LocationName = HomeBuildingID, HomeBuildingName
	}
	g.pos = p
}

func (r *Reservation) snapshot() ReservationSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := ReservationSnapshot{Bookings: append([]Booking{}, r.bookings...), Configured: []AvailabilityEntry{}}
	for k, times := range r.configured {
		s.Configured = append(s.Configured, AvailabilityEntry{BuildingID: k.Building, ItemName: k.Item, Times: append([]string{}, times...)})
	}
	return s
}

func (r *Reservation) restore(s ReservationSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings = append([]Booking(nil), s.Bookings...)
	r.configured = make(map[availabilityKey][]string, len(s.Configured))
	for _, e := range s.Configured {
		r.configured[availabilityKey{e.BuildingID, e.ItemName}] = append([]string{}, e.Times...)
	}
}

func (r *Registrar) snapshot() CourseSnapshot {
	return CourseSnapshot{States: r.States(), Draft: r.Draft()}
}

func (r *Registrar) restore(s CourseSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, st := range s.States {
		if cur, ok := r.states[code]; ok {
			*cur = st
		}
	}
	r.draft = append([]DraftEntry(nil), s.Draft...)
}
