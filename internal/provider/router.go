package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router holds the configured providers and routes an agent's requests
// through its primary provider and fallback chain.
type Router struct {
	providers map[string]Provider
	bindings  map[string]string   // agentID -> providerID
	fallbacks map[string][]string // agentID -> fallback provider chain
	defaults  string              // default provider ID
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a provider. The first one registered becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()))
}

// Bind associates an agent with a provider.
func (r *Router) Bind(agentID, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[agentID] = providerID
}

// SetFallbacks configures the providers tried after the primary fails.
func (r *Router) SetFallbacks(agentID string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[agentID] = append([]string(nil), providerIDs...)
}

// Len is the number of registered providers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Route sends req through the agent's primary provider, then its fallbacks.
func (r *Router) Route(ctx context.Context, agentID string, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	primary := r.primary(agentID)
	chain := make([]Provider, 0, 1+len(r.fallbacks[agentID]))
	if primary != nil {
		chain = append(chain, primary)
	}
	for _, id := range r.fallbacks[agentID] {
		if p, ok := r.providers[id]; ok && p != primary {
			chain = append(chain, p)
		}
	}
	r.mu.RUnlock()

	if len(chain) == 0 {
		return nil, fmt.Errorf("no provider available for agent %s", agentID)
	}

	var err error
	for i, p := range chain {
		var resp *ChatResponse
		resp, err = p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("provider failed",
			zap.String("agent", agentID),
			zap.String("provider", p.ID()),
			zap.Bool("fallback", i > 0),
			zap.Error(err))
	}
	return nil, fmt.Errorf("all providers failed for agent %s: %w", agentID, err)
}

func (r *Router) primary(agentID string) Provider {
	if pid, ok := r.bindings[agentID]; ok {
		if p, ok := r.providers[pid]; ok {
			return p
		}
	}
	return r.providers[r.defaults]
}
