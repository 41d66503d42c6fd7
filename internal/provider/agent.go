package provider

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/chat"
)

// ErrEmptyReply is returned when a provider answers with no text.
var ErrEmptyReply = errors.New("empty reply")

// AgentConfig selects the model that plays the student.
type AgentConfig struct {
	ID          string   `json:"id"`
	Provider    string   `json:"provider"`
	Fallbacks   []string `json:"fallbacks,omitempty"`
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`

	// ContextTokens is the model's context size; the transcript is trimmed
	// to fit it.
	ContextTokens int `json:"context_tokens,omitempty"`
}

// Agent generates the student's next reply from the task transcript.
type Agent struct {
	router *Router
	window *chat.Window
	cfg    AgentConfig
	logger *zap.Logger
}

// NewAgent binds cfg to the router and returns the agent.
func NewAgent(router *Router, cfg AgentConfig, logger *zap.Logger) *Agent {
	if cfg.ID == "" {
		cfg.ID = "campus-agent"
	}
	if cfg.Provider != "" {
		router.Bind(cfg.ID, cfg.Provider)
	}
	if len(cfg.Fallbacks) > 0 {
		router.SetFallbacks(cfg.ID, cfg.Fallbacks)
	}
	window := chat.NewWindow(chat.WindowConfig{MaxTokens: cfg.ContextTokens, Pinned: 2}, logger)
	return &Agent{router: router, window: window, cfg: cfg, logger: logger}
}

// Generate returns the agent's reply to the transcript so far.
func (a *Agent) Generate(ctx context.Context, history []chat.Message) (string, error) {
	req := &ChatRequest{
		Model:       a.cfg.Model,
		Messages:    Messages(a.window.Fit(history)),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}
	resp, err := a.router.Route(ctx, a.cfg.ID, req)
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// Messages converts a transcript to provider messages. Consecutive turns
// from the same side are merged so roles alternate.
func Messages(history []chat.Message) []Message {
	out := make([]Message, 0, len(history))
	for _, m := range history {
		role := RoleUser
		if m.Role == chat.RoleAgent {
			role = RoleAssistant
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, Message{Role: role, Content: m.Content})
	}
	return out
}
