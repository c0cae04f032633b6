package config

import (
	"context"
	"errors"

	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/provider"
	"go.uber.org/zap"
)

// ErrNoProviders is returned when no configured provider could be built.
var ErrNoProviders = errors.New("no usable providers configured")

// ProviderConfigs converts the provider section for the provider package.
func (c *Config) ProviderConfigs() []provider.ProviderConfig {
	out := make([]provider.ProviderConfig, 0, len(c.Providers))
	for _, pc := range c.Providers {
		out = append(out, provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
			Timeout: pc.Timeout.Std(),
		})
	}
	return out
}

// Params returns the per-capability generation settings.
func (c *Config) Params() map[agent.Capability]agent.GenerationParams {
	g := c.Generation
	return map[agent.Capability]agent.GenerationParams{
		agent.CapabilityThink:  {Temperature: g.Think.Temperature, MaxTokens: g.Think.MaxTokens},
		agent.CapabilitySpeak:  {Temperature: g.Speak.Temperature, MaxTokens: g.Speak.MaxTokens},
		agent.CapabilityAction: {Temperature: g.Action.Temperature, MaxTokens: g.Action.MaxTokens},
	}
}

// BuildRouter registers every provider that can be built and applies the
// routing section. Providers that fail to build are skipped with a warning.
func (c *Config) BuildRouter(ctx context.Context, logger *zap.Logger) (*provider.Router, error) {
	router := provider.NewRouter(logger)
	n := 0
	for _, pc := range c.ProviderConfigs() {
		p, err := provider.Build(ctx, pc, logger)
		if err != nil {
			logger.Warn("skipping provider", zap.String("id", pc.ID), zap.String("type", pc.Type), zap.Error(err))
			continue
		}
		router.Register(p)
		n++
	}
	if n == 0 {
		return nil, ErrNoProviders
	}

	if c.Routing.Default != "" {
		router.SetDefault(c.Routing.Default)
	}
	for name, rule := range c.Routing.Agents {
		router.BindAgent(name, rule)
	}
	for capability, rule := range c.Routing.Capabilities {
		router.BindCapability(capability, rule)
	}
	return router, nil
}
