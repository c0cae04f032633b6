package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Target names who a generation is for: the acting agent and the capability
// being produced ("think", "speak", "action", "persona", ...).
type Target struct {
	Agent      string
	Capability string
}

func (t Target) String() string {
	if t.Capability == "" {
		return t.Agent
	}
	return t.Agent + "/" + t.Capability
}

// Rule picks a primary provider and the providers tried after it fails.
// Either part may be left empty to defer to the next, less specific rule.
type Rule struct {
	Provider  string   `json:"provider,omitempty"`
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// Router sends generation requests to providers. Rules are looked up by
// agent first, then by capability, then the default provider applies.
type Router struct {
	mu           sync.RWMutex
	providers    map[string]Provider
	agents       map[string]Rule
	capabilities map[string]Rule
	defaults     string
	logger       *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers:    make(map[string]Provider),
		agents:       make(map[string]Rule),
		capabilities: make(map[string]Rule),
		logger:       logger,
	}
}

// Register adds a provider. The first registered provider becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the provider used when no rule names one.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// DefaultID returns the current default provider ID.
func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// BindAgent sets the rule for every generation of one agent.
func (r *Router) BindAgent(name string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = rule
}

// BindCapability sets the rule for one capability across all agents.
func (r *Router) BindCapability(capability string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[capability] = rule
}

// Resolve returns the provider chain for t, primary first. Unknown provider
// IDs are skipped.
func (r *Router) Resolve(t Target) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(t)
}

func (r *Router) resolve(t Target) []Provider {
	agentRule := r.agents[t.Agent]
	capRule := r.capabilities[t.Capability]

	primary := firstNonEmpty(agentRule.Provider, capRule.Provider, r.defaults)
	fallbacks := agentRule.Fallbacks
	if len(fallbacks) == 0 {
		fallbacks = capRule.Fallbacks
	}

	chain := make([]Provider, 0, 1+len(fallbacks))
	seen := make(map[string]bool, 1+len(fallbacks))
	for _, id := range append([]string{primary}, fallbacks...) {
		p, ok := r.providers[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		chain = append(chain, p)
	}
	return chain
}

func firstNonEmpty(ids ...string) string {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

// Route sends req along the chain resolved for t and returns the first
// success. A cancelled context stops the chain.
func (r *Router) Route(ctx context.Context, t Target, req *ChatRequest) (*ChatResponse, error) {
	chain := r.Resolve(t)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no provider available for %s", t)
	}

	var err error
	for i, p := range chain {
		var resp *ChatResponse
		resp, err = p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				r.logger.Info("fallback provider answered",
					zap.String("target", t.String()), zap.String("provider", p.ID()))
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("provider %s: %w", p.ID(), err)
		}
		r.logger.Warn("provider failed",
			zap.String("target", t.String()),
			zap.String("provider", p.ID()),
			zap.Int("remaining", len(chain)-i-1),
			zap.Error(err))
	}
	return nil, fmt.Errorf("all providers failed for %s: %w", t, err)
}

// ListProviders returns all registered providers ordered by ID.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}
