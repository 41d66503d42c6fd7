package evaluation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/task"
)

// Outcome is the verdict for one task. Unknown means the verdict could not
// be determined and is never counted as a pass.
type Outcome string

const (
	Correct   Outcome = "correct"
	Incorrect Outcome = "incorrect"
	Unknown   Outcome = "unknown"
)

// Result is the judged outcome of one task.
type Result struct {
	TaskID      string         `json:"task_id"`
	TaskType    task.Type      `json:"task_type"`
	Outcome     Outcome        `json:"outcome"`
	TaskOutput  string         `json:"task_output,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

// Set stores one detail entry.
func (r *Result) Set(key string, v any) {
	if r.Detail == nil {
		r.Detail = make(map[string]any)
	}
	r.Detail[key] = v
}

// Trigger reports whether the result belongs to an unscored trigger task.
func (r Result) Trigger() bool {
	v, _ := r.Detail["is_trigger_task"].(bool)
	return v
}

// System groups used by action records, multi-system criteria and the
// sequence validator.
const (
	SystemEmail       = "email"
	SystemReservation = "reservation"
	SystemCalendar    = "calendar"
	SystemGeography   = "geography"
	SystemMap         = "map"
	SystemCourse      = "course"
	SystemInformation = "information"
	SystemWalkTo      = "walk_to"
	SystemUnknown     = "unknown"
)

// ActionRecord is one dispatched action in a task's log.
type ActionRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	System    string    `json:"system_type"`
	Action    string    `json:"action_content"`
	Succeeded bool      `json:"success"`
	Message   string    `json:"message"`
}

// NewActionRecord classifies an executed action.
func NewActionRecord(actionText string, res campus.ToolResult, at time.Time) ActionRecord {
	return ActionRecord{
		ID:        uuid.NewString(),
		Timestamp: at,
		System:    SystemOf(actionText),
		Action:    actionText,
		Succeeded: res.OK(),
		Message:   res.Message,
	}
}

// SystemOf maps an action text to its system group by substring.
func SystemOf(actionText string) string {
	s := strings.ToLower(actionText)
	switch {
	case strings.Contains(s, "email."):
		return SystemEmail
	case strings.Contains(s, "reservation."):
		return SystemReservation
	case strings.Contains(s, "calendar."):
		return SystemCalendar
	case strings.Contains(s, "geography."), strings.Contains(s, "walk_to"):
		return SystemGeography
	case strings.Contains(s, "map."):
		return SystemMap
	case strings.Contains(s, "course_selection."), strings.Contains(s, "draft."), strings.Contains(s, "registration."):
		return SystemCourse
	case strings.Contains(s, "bibliography."), strings.Contains(s, "data_system."):
		return SystemInformation
	default:
		return SystemUnknown
	}
}

// keyGroups maps ground-truth keys (full key or the text before the first
// underscore) to a system group.
var keyGroups = map[string]string{
	"email_sent":       SystemEmail,
	"email":            SystemEmail,
	"reservation_made": SystemReservation,
	"reservation":      SystemReservation,
	"calendar_event":   SystemCalendar,
	"calendar":         SystemCalendar,
	"location_reached": SystemGeography,
	"location":         SystemGeography,
	"course_selected":  SystemCourse,
	"course":           SystemCourse,
	"walk_to":          SystemWalkTo,
	"walk":             SystemWalkTo,
}

// GroupOf returns the system group a ground-truth key belongs to.
func GroupOf(key string) (string, bool) {
	if g, ok := keyGroups[key]; ok {
		return g, true
	}
	prefix, _, _ := strings.Cut(key, "_")
	g, ok := keyGroups[prefix]
	return g, ok
}

// Summary aggregates results for a run. Trigger tasks are counted apart and
// excluded from accuracy.
type Summary struct {
	Total     int     `json:"total"`
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Unknown   int     `json:"unknown"`
	Triggers  int     `json:"trigger_tasks"`
	Accuracy  float64 `json:"accuracy"`
}

// Summarize counts outcomes. A nil isTrigger falls back to Result.Trigger.
func Summarize(results []Result, isTrigger func(Result) bool) Summary {
	if isTrigger == nil {
		isTrigger = Result.Trigger
	}
	var s Summary
	for _, r := range results {
		if isTrigger(r) {
			s.Triggers++
			continue
		}
		s.Total++
		switch r.Outcome {
		case Correct:
			s.Correct++
		case Incorrect:
			s.Incorrect++
		default:
			s.Unknown++
		}
	}
	if s.Total > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Total)
	}
	return s
}
