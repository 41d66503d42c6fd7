package router

import (
	"fmt"
	"strings"

	"github.com/nidhogg/campus-eval/internal/task"
)

const basePrompt = `You are an AI agent acting as a student in a university campus environment. Your goal is to complete the tasks given to you by using a set of available tools to interact with this world.

At each step, you will be given an observation of the current state of the environment. When you receive instructions using the first person pronoun "I", it represents what you are thinking at that moment. You need to act on it accordingly.

You must go to the correct location at the correct time to execute tasks. When you believe you have completed all the tasks, you MUST use the ` + "`finish()`" + ` action.

**Action Format**:
1.  **Execute only ONE action per response**.
2.  Your response MUST be wrapped in ` + "`<action>`" + ` tags.
3.  The action itself must start with ` + "`Action: `" + `.
4.  Keep your answers as short and clear as possible.

` + "`finish()`" + `: Call this tool when you have completed the task. Example: ` + "`<action>Action: finish()</action>`" + `

---
### **Responding to Questions**
When asked a multiple-choice question, you must respond in the following format:
<action>Answer: [LETTER]</action>

Choose the letter that corresponds to the best answer.

---
### **Actions**

To use a tool, you must format your response as follows:

` + "`<action>Action: tool_name(param1=\"value1\", param2=\"value2\")</action>`" + `

Below is the list of tools at your disposal.`

var sectionTitles = map[string]string{
	task.SystemEmail:           "Email System Tools",
	task.SystemCalendar:        "Calendar System Tools",
	task.SystemMap:             "Map & Geography Tools",
	task.SystemGeography:       "Map & Geography Tools",
	task.SystemReservation:     "Reservation System Tools",
	task.SystemBibliography:    "Information & Course Tools",
	task.SystemDataSystem:      "Information & Course Tools",
	task.SystemCourseSelection: "Course Selection System Tools",
	task.SystemDraft:           "Course Selection System Tools",
	task.SystemRegistration:    "Course Selection System Tools",
}

// SystemPrompt renders the instructions and tool list for the allowed
// systems. A nil allow-list renders every system.
func SystemPrompt(allowed []string) string {
	return Default().Prompt(allowed)
}

// Prompt renders the registry's tool list for the allowed systems.
func (r *Registry) Prompt(allowed []string) string {
	if allowed == nil {
		allowed = task.AllSystems
	}
	var b strings.Builder
	b.WriteString(basePrompt)
	last := ""
	for _, sys := range allowed {
		actions := r.ForSystem(sys)
		if len(actions) == 0 {
			continue
		}
		if title := sectionTitles[sys]; title != last {
			fmt.Fprintf(&b, "\n---\n### **%s**\n", title)
			last = title
		}
		for _, a := range actions {
			writeAction(&b, a)
		}
	}
	return b.String()
}

func writeAction(b *strings.Builder, a Action) {
	sig := make([]string, 0, len(a.Params))
	for _, p := range a.Params {
		s := p.Name + ": " + p.Type
		if !p.Required {
			s += " = None"
		}
		sig = append(sig, s)
	}
	fmt.Fprintf(b, "* **`%s(%s)`**: %s\n", a.Method, strings.Join(sig, ", "), a.Summary)
	for _, p := range a.Params {
		need := "optional"
		if p.Required {
			need = "required"
		}
		fmt.Fprintf(b, "    * `%s` (%s): %s\n", p.Name, need, p.Desc)
	}
	if a.Example != "" {
		fmt.Fprintf(b, "    * *Example*: `Action: %s`\n", a.Example)
	}
}
