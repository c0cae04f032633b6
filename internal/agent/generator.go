package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/nidhogg/tiny-world/internal/provider"
)

// ErrEmptyCompletion is returned when a backend answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// GenerateRequest is a single text-generation call for one capability.
type GenerateRequest struct {
	Agent       string
	Capability  Capability
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generator produces one completion per request. Retries and timeouts are
// the implementation's concern.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// GenerationParams are the sampling settings for one capability.
type GenerationParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// DefaultParams returns the per-capability settings agents start with.
func DefaultParams() map[Capability]GenerationParams {
	return map[Capability]GenerationParams{
		CapabilityThink:  {Temperature: 0.7, MaxTokens: 300},
		CapabilitySpeak:  {Temperature: 0.7, MaxTokens: 600},
		CapabilityAction: {Temperature: 0.7, MaxTokens: 600},
	}
}

// RouterGenerator sends generation requests through a provider router,
// routed by agent name and capability.
type RouterGenerator struct {
	router *provider.Router
	model  string
}

// NewRouterGenerator creates a Generator backed by the given router.
func NewRouterGenerator(router *provider.Router, model string) *RouterGenerator {
	return &RouterGenerator{router: router, model: model}
}

// Generate implements Generator.
func (g *RouterGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	resp, err := g.router.Route(ctx, provider.Target{Agent: req.Agent, Capability: string(req.Capability)}, &provider.ChatRequest{
		Model: g.model,
		Messages: []provider.Message{
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
