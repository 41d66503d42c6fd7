package evaluation

import (
	"fmt"
	"slices"
)

// SequenceError describes the first divergence between the expected and
// the actual order of systems.
type SequenceError struct {
	Position int // 1-based
	Expected string
	Got      string // "" when the expected system never ran
}

func (e *SequenceError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("Missing execution of %s system", e.Expected)
	}
	return fmt.Sprintf("Wrong execution order: expected %s at position %d, but got %s", e.Expected, e.Position, e.Got)
}

// ExpectedSequence lists the systems named by ground-truth keys in key
// order, without repeats. walk_to keys take no part in ordering.
func ExpectedSequence(keys []string) []string {
	var out []string
	for _, k := range keys {
		g, ok := GroupOf(k)
		if !ok || g == SystemWalkTo || slices.Contains(out, g) {
			continue
		}
		out = append(out, g)
	}
	return out
}

// ActualSequence lists, in order, the first successful appearance of each
// expected system in the action log.
func ActualSequence(records []ActionRecord, expected []string) []string {
	var out []string
	for _, r := range records {
		if !r.Succeeded || !slices.Contains(expected, r.System) || slices.Contains(out, r.System) {
			continue
		}
		out = append(out, r.System)
	}
	return out
}

// ValidateSequence checks that systems ran in ground-truth key order.
// Sequences of one system or fewer always pass.
func ValidateSequence(keys []string, records []ActionRecord) error {
	expected := ExpectedSequence(keys)
	if len(expected) <= 1 {
		return nil
	}
	actual := ActualSequence(records, expected)
	for i, want := range expected {
		if i >= len(actual) {
			return &SequenceError{Position: i + 1, Expected: want}
		}
		if actual[i] != want {
			return &SequenceError{Position: i + 1, Expected: want, Got: actual[i]}
		}
	}
	return nil
}
