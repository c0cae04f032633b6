package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Build constructs a provider from its configuration type.
func Build(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Type {
	case "openai", "openai-compatible":
		return NewOpenAIProvider(cfg, logger), nil
	case "anthropic":
		return NewAnthropicProvider(cfg, logger), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q for %s", cfg.Type, cfg.ID)
	}
}
