package chat

// Role identifies who produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is one conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User builds a user-side message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Agent builds an agent-side message.
func Agent(content string) Message { return Message{Role: RoleAgent, Content: content} }

// History is the ordered transcript of one task. Not safe for concurrent use.
type History struct {
	items []Message
}

// Inject appends messages.
func (h *History) Inject(msgs ...Message) {
	h.items = append(h.items, msgs...)
}

// Items returns a copy of the transcript.
func (h *History) Items() []Message {
	return append([]Message(nil), h.items...)
}

// Len returns the number of messages.
func (h *History) Len() int { return len(h.items) }

// Last returns the most recent message.
func (h *History) Last() (Message, bool) {
	if len(h.items) == 0 {
		return Message{}, false
	}
	return h.items[len(h.items)-1], true
}

// LastAgent returns the most recent agent message.
func (h *History) LastAgent() (Message, bool) {
	for i := len(h.items) - 1; i >= 0; i-- {
		if h.items[i].Role == RoleAgent {
			return h.items[i], true
		}
	}
	return Message{}, false
}

// Reset clears the transcript.
func (h *History) Reset() { h.items = nil }
