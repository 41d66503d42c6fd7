package campus

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registration pass types.
const (
	PassS = "S-Pass"
	PassA = "A-Pass"
	PassB = "B-Pass"
)

// Popularity ceilings for registration. An S-Pass always succeeds; the
// others need the course's popularity to stay strictly below the ceiling.
const (
	APassCeiling = 95
	BPassCeiling = 85
)

// Course is one catalogue entry. Only the fields the registrar needs are
// typed; the rest is kept for browsing.
type Course struct {
	Code       string         `json:"course_code"`
	Name       string         `json:"course_name"`
	Credits    float64        `json:"credits"`
	Popularity *int           `json:"popularity_index,omitempty"`
	SeatsLeft  *int           `json:"seats_left,omitempty"`
	Capacity   *int           `json:"enrollment_capacity,omitempty"`
	Type       string         `json:"type,omitempty"`
	Instructor map[string]any `json:"instructor,omitempty"`
	Schedule   map[string]any `json:"schedule,omitempty"`
}

// CourseState is the mutable side of a catalogue entry.
type CourseState struct {
	Popularity int `json:"popularity_index"`
	SeatsLeft  int `json:"seats_left"`
}

// DraftEntry is one section in the draft schedule.
type DraftEntry struct {
	CourseCode   string `json:"course_code"`
	AssignedPass string `json:"assigned_pass,omitempty"`
}

// DefaultCourses is used when no catalogue file is available.
func DefaultCourses() []Course {
	pop, seats, capacity := 75, 25, 50
	return []Course{{
		Code: "CS101", Name: "Introduction to Computer Science", Credits: 3,
		Popularity: &pop, SeatsLeft: &seats, Capacity: &capacity, Type: "Compulsory",
		Instructor: map[string]any{"name": "Dr. Jane Smith", "id": "T001"},
		Schedule: map[string]any{
			"weeks": map[string]any{"start": 1, "end": 16},
			"days":  []any{"Monday", "Wednesday"},
			"time":  "10:00-11:30",
			"location": map[string]any{
				"building_id": "B001", "building_name": "Main Building", "room_number": "Room 101",
			},
		},
	}}
}

// Registrar runs browsing, the draft schedule and final registration.
type Registrar struct {
	catalogue []Course
	states    map[string]*CourseState
	draft     []DraftEntry
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRegistrar seeds course state from the catalogue.
func NewRegistrar(catalogue []Course, logger *zap.Logger) *Registrar {
	r := &Registrar{catalogue: catalogue, states: make(map[string]*CourseState, len(catalogue)), logger: logger}
	for _, c := range catalogue {
		st := &CourseState{Popularity: 50, SeatsLeft: 50}
		if c.Popularity != nil {
			st.Popularity = *c.Popularity
		}
		switch {
		case c.SeatsLeft != nil:
			st.SeatsLeft = *c.SeatsLeft
		case c.Capacity != nil:
			st.SeatsLeft = *c.Capacity
		}
		r.states[c.Code] = st
	}
	return r
}

func (r *Registrar) course(code string) (Course, bool) {
	for _, c := range r.catalogue {
		if c.Code == code {
			return c, true
		}
	}
	return Course{}, false
}

// SetPopularity updates a course's popularity index.
func (r *Registrar) SetPopularity(code string, v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[code]; ok {
		st.Popularity = v
	}
}

// SetSeatsLeft updates a course's remaining seats.
func (r *Registrar) SetSeatsLeft(code string, v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[code]; ok {
		st.SeatsLeft = v
	}
}

// Browse lists catalogue entries matching the optional filters
// (course_code substring, course_name case-insensitive substring, credits "<=N").
func (r *Registrar) Browse(filters map[string]any) ToolResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []map[string]any
	var sb strings.Builder
	for _, c := range r.catalogue {
		if !matchesFilters(c, filters) {
			continue
		}
		pop := 50
		if st, ok := r.states[c.Code]; ok {
			pop = st.Popularity
		}
		found = append(found, map[string]any{
			"course_code": c.Code, "course_name": c.Name, "credits": c.Credits, "popularity_index": pop,
			"type": c.Type, "instructor": c.Instructor, "schedule": c.Schedule,
		})
		fmt.Fprintf(&sb, "\n- %s: %s (Credits: %s, Popularity: %d)", c.Code, c.Name, strconv.FormatFloat(c.Credits, 'f', -1, 64), pop)
		fmt.Fprintf(&sb, "\n  Instructor: %s", field(c.Instructor, "name"))
		weeks, _ := c.Schedule["weeks"].(map[string]any)
		days, _ := stringList(c.Schedule["days"])
		fmt.Fprintf(&sb, "\n  Schedule: Weeks %s-%s, %s, %s", fieldOr(weeks, "start", "?"), fieldOr(weeks, "end", "?"),
			strings.Join(days, ", "), field(c.Schedule, "time"))
		loc, _ := c.Schedule["location"].(map[string]any)
		room := fieldOr(loc, "room", fieldOr(loc, "room_number", "N/A"))
		fmt.Fprintf(&sb, "\n  Location: %s, %s", field(loc, "building_name"), room)
	}
	if len(found) == 0 {
		return Failure("No courses found matching the specified criteria.")
	}
	return Success(fmt.Sprintf("Found %d course(s):%s", len(found), sb.String()), map[string]any{"courses": found})
}

func field(m map[string]any, key string) string { return fieldOr(m, key, "N/A") }

func fieldOr(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func matchesFilters(c Course, filters map[string]any) bool {
	if v, ok := filters["credits"].(string); ok {
		if _, limit, found := strings.Cut(v, "<="); found {
			if ceiling, err := strconv.ParseFloat(strings.TrimSpace(limit), 64); err == nil && c.Credits > ceiling {
				return false
			}
		}
	}
	if v, ok := filters["course_code"]; ok && !strings.Contains(c.Code, fmt.Sprint(v)) {
		return false
	}
	if v, ok := filters["course_name"]; ok && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(fmt.Sprint(v))) {
		return false
	}
	return true
}

// AddCourse puts a catalogue course in the draft.
func (r *Registrar) AddCourse(code string) ToolResult {
	if code == "" {
		return Failure("Section ID is required.")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.course(code); !ok {
		return Failure("Course '%s' does not exist.", code)
	}
	for _, e := range r.draft {
		if e.CourseCode == code {
			return Failure("Course '%s' is already in your draft schedule.", code)
		}
	}
	r.draft = append(r.draft, DraftEntry{CourseCode: code})
	return Success(fmt.Sprintf("Course '%s' has been successfully added to your draft schedule.", code), map[string]any{
		"course_code": code, "draft_count": len(r.draft),
	})
}

// RemoveCourse drops a course from the draft.
func (r *Registrar) RemoveCourse(code string) ToolResult {
	if code == "" {
		return Failure("Section ID is required.")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.draft {
		if e.CourseCode == code {
			r.draft = append(r.draft[:i:i], r.draft[i+1:]...)
			return Success(fmt.Sprintf("Course '%s' has been successfully removed from your draft schedule.", code), map[string]any{
				"course_code": code, "draft_count": len(r.draft),
			})
		}
	}
	return Failure("Course '%s' is not in your draft schedule.", code)
}

// AssignPass sets the registration pass for a drafted course.
func (r *Registrar) AssignPass(code, pass string) ToolResult {
	if code == "" || pass == "" {
		return Failure("Both section ID and pass type are required.")
	}
	if pass != PassS && pass != PassA && pass != PassB {
		return Failure("Pass type must be 'S-Pass', 'A-Pass', or 'B-Pass'.")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.draft {
		if r.draft[i].CourseCode == code {
			r.draft[i].AssignedPass = pass
			return Success(fmt.Sprintf("Pass type '%s' has been successfully assigned to course '%s'.", pass, code), map[string]any{
				"course_code": code, "pass_type": pass,
			})
		}
	}
	return Failure("Course '%s' is not in your draft schedule.", code)
}

// ViewDraft lists the draft schedule.
func (r *Registrar) ViewDraft() ToolResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.draft) == 0 {
		return Success("Your draft schedule is empty.", map[string]any{"courses": []map[string]any{}})
	}
	var sb strings.Builder
	sb.WriteString("Your current draft schedule:")
	courses := make([]map[string]any, 0, len(r.draft))
	for _, e := range r.draft {
		name := "Unknown Course"
		if c, ok := r.course(e.CourseCode); ok {
			name = c.Name
		}
		pass := " (No pass assigned)"
		if e.AssignedPass != "" {
			pass = fmt.Sprintf(" (Pass: %s)", e.AssignedPass)
		}
		fmt.Fprintf(&sb, "\n- %s: %s%s", e.CourseCode, name, pass)
		courses = append(courses, map[string]any{"course_code": e.CourseCode, "course_name": name, "assigned_pass": e.AssignedPass})
	}
	return Success(sb.String(), map[string]any{"courses": courses})
}

// Registers reports whether a pass gets a student into a course of the given popularity.
func Registers(pass string, popularity int) bool {
	switch pass {
	case PassS:
		return true
	case PassA:
		return popularity < APassCeiling
	case PassB:
		return popularity < BPassCeiling
	default:
		return false
	}
}

// SubmitDraft applies the pass rules to every drafted course.
func (r *Registrar) SubmitDraft() ToolResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.draft) == 0 {
		return Failure("Cannot submit empty draft schedule.")
	}

	results := make([]map[string]any, 0, len(r.draft))
	ok := 0
	for _, e := range r.draft {
		res := map[string]any{"course_code": e.CourseCode, "status": "Failed"}
		st, known := r.states[e.CourseCode]
		switch {
		case e.AssignedPass == "":
			res["reason"] = "No pass assigned"
		case !known:
			res["reason"] = "Course not found"
		case Registers(e.AssignedPass, st.Popularity):
			res["status"] = "Success"
			res["reason"] = "Registered with " + e.AssignedPass
			ok++
		default:
			res["reason"] = fmt.Sprintf("Course too popular for %s (popularity: %d)", e.AssignedPass, st.Popularity)
		}
		results = append(results, res)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Registration completed! %d/%d courses successfully registered:", ok, len(results))
	for _, res := range results {
		icon := "[FAILED]"
		if res["status"] == "Success" {
			icon = "[SUCCESS]"
		}
		fmt.Fprintf(&sb, "\n%s %s: %s - %s", icon, res["course_code"], res["status"], res["reason"])
	}
	r.logger.Info("draft submitted", zap.Int("registered", ok), zap.Int("total", len(results)))
	return Success(sb.String(), map[string]any{
		"total_courses":            len(results),
		"successful_registrations": ok,
		"results":                  results,
	})
}

// Draft returns a copy of the draft schedule.
func (r *Registrar) Draft() []DraftEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]DraftEntry(nil), r.draft...)
}

// States returns a copy of per-course popularity and seats.
func (r *Registrar) States() map[string]CourseState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]CourseState, len(r.states))
	for k, v := range r.states {
		out[k] = *v
	}
	return out
}
