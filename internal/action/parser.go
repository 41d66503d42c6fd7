package action

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a parsed agent reply.
type Kind int

const (
	Invalid Kind = iota
	Execute
	Finish
	Answer
)

func (k Kind) String() string {
	switch k {
	case Execute:
		return "execute"
	case Finish:
		return "finish"
	case Answer:
		return "answer"
	default:
		return "invalid"
	}
}

// Parsed is the typed form of one agent reply. For Execute, Content holds
// "name(args)"; for Answer, the upper-case letter.
type Parsed struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
	Reason  string `json:"reason,omitempty"`
}

const noActionReason = `No valid action or answer found in response. Expected format: Action: tool_name(param1="value1", param2="value2") or Answer: [A-E]`

var (
	tagRe        = regexp.MustCompile(`(?is)<action>(.*?)</action>`)
	answerRe     = regexp.MustCompile(`(?im)Answer:\s*([A-Za-z])\s*$`)
	strictRe     = regexp.MustCompile(`^Action:\s*([^(]+)\((.*)\)$`)
	looseRe      = regexp.MustCompile(`(?s)Action:\s*([^(]+)\((.*?)\)`)
	bareFinishRe = regexp.MustCompile(`(?i)\bfinish\s*\(\s*\)`)
)

// Parse turns one raw reply into a Parsed value. It never fails; anything it
// cannot recognise comes back as Invalid with a reason.
func Parse(raw string) Parsed {
	text := raw
	if m := tagRe.FindStringSubmatch(raw); m != nil {
		text = strings.TrimSpace(m[1])
	}

	if m := answerRe.FindStringSubmatch(text); m != nil {
		letter := strings.ToUpper(m[1])
		if strings.Contains("ABCDE", letter) {
			return Parsed{Kind: Answer, Content: letter, Reason: "quiz_answer"}
		}
		return Parsed{
			Kind:   Invalid,
			Reason: fmt.Sprintf("Invalid answer letter '%s'. Must be A, B, C, D, or E.", letter),
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Action:") {
			continue
		}
		if m := strictRe.FindStringSubmatch(line); m != nil {
			return call(m[1], m[2])
		}
	}

	if m := looseRe.FindStringSubmatch(text); m != nil {
		return call(m[1], m[2])
	}

	if bareFinishRe.MatchString(text) {
		return Parsed{Kind: Finish, Content: "finish()"}
	}
	return Parsed{Kind: Invalid, Reason: noActionReason}
}

func call(name, args string) Parsed {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "finish") {
		return Parsed{Kind: Finish, Content: "finish()"}
	}
	return Parsed{Kind: Execute, Content: fmt.Sprintf("%s(%s)", name, strings.TrimSpace(args))}
}
