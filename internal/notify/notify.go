package notify

import (
	"fmt"
	"strings"

	"github.com/nidhogg/campus-eval/internal/orchestrator"
)

// Report renders a run status as a short chat message. mark wraps the
// headline, "*" for Slack and "**" for Discord.
func Report(st orchestrator.Status, mark string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[campus-eval] run %s %s%s\n", mark, shortID(st.RunID), st.State, mark)

	s := st.Summary
	fmt.Fprintf(&b, "tasks: %d/%d judged", st.Completed, st.Total)
	if st.Skipped > 0 {
		fmt.Fprintf(&b, ", %d resumed", st.Skipped)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "correct %d · incorrect %d · unknown %d", s.Correct, s.Incorrect, s.Unknown)
	if s.Triggers > 0 {
		fmt.Fprintf(&b, " · triggers %d", s.Triggers)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "accuracy: %.1f%%", s.Accuracy*100)

	if st.StartedAt != nil && st.FinishedAt != nil {
		fmt.Fprintf(&b, "\nduration: %s", st.FinishedAt.Sub(*st.StartedAt).Round(1e9))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
