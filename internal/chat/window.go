package chat

import "go.uber.org/zap"

// WindowConfig sizes the transcript sent to the agent.
type WindowConfig struct {
	MaxTokens    int     // model's max context window
	ReserveRatio float64 // fraction reserved for the response
	Pinned       int     // leading messages that are never dropped
}

// DefaultWindowConfig keeps the system prompt and its acknowledgement pinned.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{MaxTokens: 128000, ReserveRatio: 0.3, Pinned: 2}
}

// Window trims a transcript to a token budget, dropping the oldest unpinned
// turns first. The newest message is always kept.
type Window struct {
	cfg    WindowConfig
	logger *zap.Logger
}

// NewWindow fills zero config fields with defaults.
func NewWindow(cfg WindowConfig, logger *zap.Logger) *Window {
	def := DefaultWindowConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.ReserveRatio <= 0 || cfg.ReserveRatio >= 1 {
		cfg.ReserveRatio = def.ReserveRatio
	}
	if cfg.Pinned < 0 {
		cfg.Pinned = 0
	}
	return &Window{cfg: cfg, logger: logger}
}

// Budget returns the token budget for the transcript.
func (w *Window) Budget() int {
	return int(float64(w.cfg.MaxTokens) * (1 - w.cfg.ReserveRatio))
}

// Fit returns msgs unchanged when they fit, otherwise a trimmed copy.
func (w *Window) Fit(msgs []Message) []Message {
	total := EstimateTokens(msgs)
	budget := w.Budget()
	if total <= budget {
		return msgs
	}

	pinned := min(w.cfg.Pinned, len(msgs))
	head, tail := msgs[:pinned], msgs[pinned:]
	dropped := 0
	for total > budget && len(tail) > 1 {
		total -= estimateTokensStr(tail[0].Content)
		tail = tail[1:]
		dropped++
	}
	w.logger.Info("transcript exceeds budget, trimmed",
		zap.Int("dropped", dropped), zap.Int("tokens", total), zap.Int("budget", budget))

	out := make([]Message, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}

// EstimateTokens estimates total tokens for a slice of messages.
func EstimateTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += estimateTokensStr(m.Content)
	}
	return total
}

// estimateTokensStr uses ~4 characters per token.
func estimateTokensStr(s string) int {
	n := len(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
