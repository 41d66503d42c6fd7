package task

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Type identifies which evaluator judges a task.
type Type string

const (
	TypeEmail           Type = "email_sending"
	TypeEmailManagement Type = "email_management"
	TypeCalendar        Type = "calendar_management"
	TypeWalking         Type = "walking_simple"
	TypeNavigation      Type = "navigation"
	TypeReservation     Type = "reservation"
	TypeInformation     Type = "information_query"
	TypeCourse          Type = "course_selection"
	TypeQuiz            Type = "quiz_question"
	TypeMultiSystem     Type = "multi_system"
	TypeTrigger         Type = "trigger"
)

// Subsystem names as they appear in allow-lists.
const (
	SystemEmail           = "email"
	SystemCalendar        = "calendar"
	SystemMap             = "map"
	SystemGeography       = "geography"
	SystemReservation     = "reservation"
	SystemBibliography    = "bibliography"
	SystemDataSystem      = "data_system"
	SystemCourseSelection = "course_selection"
	SystemDraft           = "draft"
	SystemRegistration    = "registration"
)

// AllSystems lists every subsystem in registry order.
var AllSystems = []string{
	SystemEmail, SystemCalendar, SystemMap, SystemGeography, SystemReservation,
	SystemBibliography, SystemDataSystem, SystemCourseSelection, SystemDraft, SystemRegistration,
}

var defaultSystems = map[Type][]string{
	TypeEmail:           {SystemEmail},
	TypeEmailManagement: {SystemEmail},
	TypeCalendar:        {SystemCalendar},
	TypeWalking:         {SystemMap, SystemGeography},
	TypeNavigation:      {SystemMap, SystemGeography},
	TypeReservation:     {SystemReservation, SystemMap, SystemGeography},
	TypeInformation:     {SystemBibliography, SystemDataSystem},
	TypeCourse:          {SystemCourseSelection, SystemDraft, SystemRegistration},
	TypeQuiz:            {},
}

// DefaultSystems returns the allow-list used when a task does not declare one.
// A nil result means every subsystem is available.
func DefaultSystems(t Type) []string {
	s, ok := defaultSystems[t]
	if !ok {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// StateChange mutates the simulated world before a task starts.
type StateChange struct {
	ChangeType     string         `json:"change_type,omitempty" yaml:"change_type,omitempty"`
	System         string         `json:"system,omitempty" yaml:"system,omitempty"`
	Action         string         `json:"action,omitempty" yaml:"action,omitempty"`
	CourseCode     string         `json:"course_code,omitempty" yaml:"course_code,omitempty"`
	NewValue       int            `json:"new_value,omitempty" yaml:"new_value,omitempty"`
	AdvisorID      string         `json:"advisor_id,omitempty" yaml:"advisor_id,omitempty"`
	Date           string         `json:"date,omitempty" yaml:"date,omitempty"`
	AvailableSlots []string       `json:"available_slots,omitempty" yaml:"available_slots,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	From           string         `json:"from,omitempty" yaml:"from,omitempty"`
	Subject        string         `json:"subject,omitempty" yaml:"subject,omitempty"`
	Body           string         `json:"body,omitempty" yaml:"body,omitempty"`
}

// Spec is one task record. It is treated as immutable once loaded.
type Spec struct {
	ID               string         `json:"task_id" yaml:"task_id"`
	Type             Type           `json:"task_type" yaml:"task_type"`
	IsTrigger        bool           `json:"is_trigger" yaml:"is_trigger"`
	Instruction      string         `json:"instruction" yaml:"instruction"`
	RequireTime      OptString      `json:"require_time,omitempty" yaml:"require_time,omitempty"`
	RequirePlace     OptString      `json:"require_place,omitempty" yaml:"require_place,omitempty"`
	SourceBuildingID string         `json:"source_building_id,omitempty" yaml:"source_building_id,omitempty"`
	WorldStateChange []StateChange  `json:"world_state_change,omitempty" yaml:"world_state_change,omitempty"`
	Details          map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	GroundTruth      GroundTruth    `json:"ground_truth" yaml:"ground_truth"`
	AvailableSystems []string       `json:"available_systems" yaml:"available_systems"`
	RequireSequence  bool           `json:"require_sequence,omitempty" yaml:"require_sequence,omitempty"`
	RequirePrecheck  bool           `json:"require_precheck,omitempty" yaml:"require_precheck,omitempty"`
	Options          Options        `json:"options,omitempty" yaml:"options,omitempty"`
	PreTaskFor       string         `json:"pre_task_for,omitempty" yaml:"pre_task_for,omitempty"`
}

// Trigger reports whether the task only advances world state and is never scored.
func (s *Spec) Trigger() bool {
	return s.IsTrigger || s.Type == TypeTrigger
}

// Systems returns the effective allow-list (nil = all).
func (s *Spec) Systems() []string {
	if s.AvailableSystems != nil {
		return s.AvailableSystems
	}
	return DefaultSystems(s.Type)
}

// Dependents splits PreTaskFor into task ids.
func (s *Spec) Dependents() []string { return SplitIDs(s.PreTaskFor) }

// SplitIDs splits a comma-separated id list, dropping blanks.
func SplitIDs(list string) []string {
	var out []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// DetailString returns details[key] as a string, or "" when absent.
func (s *Spec) DetailString(key string) string {
	if s.Details == nil {
		return ""
	}
	return AsString(s.Details[key])
}

var dateRe = regexp.MustCompile(`^(Week \d+,\s*\w+)`)

// SimulationDate extracts the "Week N, Day" part of the required time,
// falling back to details.target_date.
func (s *Spec) SimulationDate() string {
	if m := dateRe.FindStringSubmatch(string(s.RequireTime)); m != nil {
		return m[1]
	}
	return s.DetailString("target_date")
}

// OptString is a string field that tolerates boolean or null values in task
// files; anything but a string decodes as unset.
type OptString string

func (o *OptString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if s, ok := v.(string); ok {
		*o = OptString(s)
	} else {
		*o = ""
	}
	return nil
}

func (o *OptString) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!str" {
		*o = OptString(node.Value)
		return nil
	}
	*o = ""
	return nil
}

// Options maps quiz letters to option text. Values may be given either as
// plain strings or as {"value": ...} objects.
type Options map[string]string

func (o *Options) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	*o = normalizeOptions(raw)
	return nil
}

func (o *Options) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	*o = normalizeOptions(raw)
	return nil
}

func normalizeOptions(raw map[string]any) Options {
	if raw == nil {
		return nil
	}
	out := make(Options, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case map[string]any:
			if inner, ok := val["value"]; ok {
				out[k] = AsString(inner)
			}
		}
	}
	return out
}

// AsString renders scalar values the way task files write them.
func AsString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
