package campus

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one calendar entry. Time uses "Week N, Day, HH:MM-HH:MM".
type Event struct {
	ID          string `json:"event_id"`
	Title       string `json:"event_title"`
	Location    string `json:"location"`
	Time        string `json:"time"`
	Description string `json:"description,omitempty"`
}

const (
	permAdd     = "add"
	permRemove  = "remove"
	permUpdate  = "update"
	permView    = "view"
	permAdvisor = "query_availability"
)

var advisorDaySlots = []string{
	"09:00-10:00", "10:00-11:00", "11:00-12:00",
	"13:00-14:00", "14:00-15:00", "15:00-16:00", "16:00-17:00",
}

// Calendar holds every identity's calendar. The student owns "self";
// club_* calendars accept additions, advisor_* calendars only answer
// availability queries, and any other calendar is read-only.
type Calendar struct {
	calendars map[string][]Event
	advisor   map[string]map[string][]string // advisorID -> date -> free slots
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewCalendar creates a calendar store with an empty "self" calendar.
func NewCalendar(logger *zap.Logger) *Calendar {
	return &Calendar{
		calendars: map[string][]Event{"self": {}},
		advisor:   make(map[string]map[string][]string),
		logger:    logger,
	}
}

func permitted(calendarID, action string) bool {
	switch {
	case calendarID == "self":
		return action != permAdvisor
	case strings.HasPrefix(calendarID, "club_"):
		return action == permAdd || action == permView
	case strings.HasPrefix(calendarID, "advisor_"):
		return action == permAdvisor
	default:
		return action == permView
	}
}

// AddEvent appends an event and returns its generated id.
func (c *Calendar) AddEvent(calendarID, title, location, when, description string) ToolResult {
	if calendarID == "" || title == "" || location == "" || when == "" {
		return Failure("All parameters (calendar_id, event_title, location, time) are required.")
	}
	if !permitted(calendarID, permAdd) {
		return Failure("You do not have permission to add events to calendar '%s'.", calendarID)
	}
	ev := Event{ID: uuid.New().String(), Title: title, Location: location, Time: when, Description: description}

	c.mu.Lock()
	c.calendars[calendarID] = append(c.calendars[calendarID], ev)
	c.mu.Unlock()

	c.logger.Debug("calendar event added", zap.String("calendar", calendarID), zap.String("event", ev.ID))
	return Success(fmt.Sprintf("Event '%s' has been successfully added to the calendar.", title), map[string]any{
		"event_id":    ev.ID,
		"calendar_id": calendarID,
	})
}

// RemoveEvent deletes an event from a calendar the student may edit.
func (c *Calendar) RemoveEvent(calendarID, eventID string) ToolResult {
	if calendarID == "" || eventID == "" {
		return Failure("Both calendar_id and event_id are required.")
	}
	if !permitted(calendarID, permRemove) {
		return Failure("You do not have permission to remove events from calendar '%s'.", calendarID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.calendars[calendarID]
	for i, ev := range events {
		if ev.ID == eventID {
			c.calendars[calendarID] = append(events[:i:i], events[i+1:]...)
			return Success(fmt.Sprintf("Event '%s' has been successfully removed from the calendar.", ev.Title), nil)
		}
	}
	return Failure("Event with ID '%s' not found in calendar '%s'.", eventID, calendarID)
}

// UpdateEvent overwrites the title, location, time or description of an event.
func (c *Calendar) UpdateEvent(calendarID, eventID string, changes map[string]any) ToolResult {
	if calendarID == "" || eventID == "" {
		return Failure("Both calendar_id and event_id are required.")
	}
	if !permitted(calendarID, permUpdate) {
		return Failure("You do not have permission to update events in calendar '%s'.", calendarID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.calendars[calendarID]
	for i := range events {
		ev := &events[i]
		if ev.ID != eventID {
			continue
		}
		if v, ok := changes["event_title"]; ok {
			ev.Title = fmt.Sprint(v)
		}
		if v, ok := changes["location"]; ok {
			ev.Location = fmt.Sprint(v)
		}
		if v, ok := changes["time"]; ok {
			ev.Time = fmt.Sprint(v)
		}
		if v, ok := changes["description"]; ok {
			ev.Description = fmt.Sprint(v)
		}
		return Success(fmt.Sprintf("Event '%s' has been successfully updated.", ev.Title), nil)
	}
	return Failure("Event with ID '%s' not found in calendar '%s'.", eventID, calendarID)
}

// ViewSchedule lists the events whose time mentions date.
func (c *Calendar) ViewSchedule(calendarID, date string) ToolResult {
	if calendarID == "" || date == "" {
		return Failure("Both calendar_id and date are required.")
	}
	if !permitted(calendarID, permView) {
		return Failure("You do not have permission to view calendar '%s'.", calendarID)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	listed := []map[string]any{}
	var b strings.Builder
	for _, ev := range c.calendars[calendarID] {
		if !strings.Contains(ev.Time, date) {
			continue
		}
		listed = append(listed, map[string]any{
			"event_id": ev.ID, "title": ev.Title, "location": ev.Location, "time": ev.Time, "description": ev.Description,
		})
		fmt.Fprintf(&b, "\n- %s at %s (%s)", ev.Title, ev.Location, ev.Time)
		if ev.Description != "" {
			fmt.Fprintf(&b, "\n  Description: %s", ev.Description)
		}
	}
	if len(listed) == 0 {
		return Success(fmt.Sprintf("No events found for %s in calendar '%s'.", date, calendarID), map[string]any{"events": listed})
	}
	return Success(fmt.Sprintf("Found %d event(s) for %s:%s", len(listed), date, b.String()), map[string]any{"events": listed})
}

// QueryAdvisorAvailability returns an advisor's free slots on date, either as
// configured by a world change or derived from the advisor's calendar.
func (c *Calendar) QueryAdvisorAvailability(advisorID, date string) ToolResult {
	if advisorID == "" || date == "" {
		return Failure("Both advisor_id and date are required.")
	}
	c.mu.RLock()
	slots, configured := c.advisor[advisorID][date]
	var busy []string
	if !configured {
		for _, ev := range c.calendars["advisor_"+advisorID] {
			if !strings.Contains(ev.Time, date) {
				continue
			}
			if parts := strings.Split(ev.Time, ", "); len(parts) >= 3 {
				busy = append(busy, parts[len(parts)-1])
			}
		}
	}
	c.mu.RUnlock()

	free := append([]string(nil), slots...)
	if !configured {
		for _, s := range advisorDaySlots {
			if !slices.Contains(busy, s) {
				free = append(free, s)
			}
		}
	}
	data := map[string]any{"advisor_id": advisorID, "date": date, "available_slots": free}
	if len(free) == 0 {
		return Success(fmt.Sprintf("Advisor %s has no available time slots on %s.", advisorID, date), data)
	}
	return Success(fmt.Sprintf("Advisor %s is available on %s during the following time slots: %s.",
		advisorID, date, strings.Join(free, ", ")), data)
}

// SetAdvisorAvailability pins the free slots for an advisor on a date.
func (c *Calendar) SetAdvisorAvailability(advisorID, date string, slots []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.advisor[advisorID] == nil {
		c.advisor[advisorID] = make(map[string][]string)
	}
	c.advisor[advisorID][date] = append([]string{}, slots...)
}

// Events returns a copy of one calendar's events.
func (c *Calendar) Events(calendarID string) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Event, len(c.calendars[calendarID]))
	copy(out, c.calendars[calendarID])
	return out
}
