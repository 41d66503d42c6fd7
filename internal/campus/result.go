package campus

import (
	"fmt"
	"strings"
)

// Status is the outcome class of a subsystem call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
)

// ToolResult is the uniform envelope every subsystem call returns.
// Messages are always ASCII.
type ToolResult struct {
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
}

// Success builds a successful result.
func Success(msg string, data map[string]any) ToolResult {
	return ToolResult{Status: StatusSuccess, Message: ASCII(msg), Data: data}
}

// Failure builds a result for a call the subsystem rejected.
func Failure(format string, args ...any) ToolResult {
	return ToolResult{Status: StatusFailure, Message: ASCII(fmt.Sprintf(format, args...))}
}

// Errorf builds a result for an internal fault.
func Errorf(format string, args ...any) ToolResult {
	return ToolResult{Status: StatusError, Message: ASCII(fmt.Sprintf(format, args...))}
}

// OK reports whether the call succeeded.
func (r ToolResult) OK() bool { return r.Status == StatusSuccess }

// ASCII replaces every non-ASCII rune with '?'.
func ASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 127 {
			return '?'
		}
		return r
	}, s)
}
