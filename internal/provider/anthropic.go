package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
	anthropicPingModel = "claude-3-5-haiku-20241022"
)

// AnthropicProvider implements Provider for the Claude messages API.
type AnthropicProvider struct {
	config ProviderConfig
	client *http.Client
	logger *zap.Logger
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig, logger *zap.Logger) *AnthropicProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
	}
	return &AnthropicProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.timeout()},
		logger: logger,
	}
}

func (p *AnthropicProvider) ID() string   { return p.config.ID }
func (p *AnthropicProvider) Name() string { return p.config.Name }

type anthropicRequest struct {
	Model       string         `json:"model"`
	Messages    []anthropicMsg `json:"messages"`
	System      string         `json:"system,omitempty"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
	TopP        float64        `json:"top_p,omitempty"`
	Stop        []string       `json:"stop_sequences,omitempty"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends a non-streaming messages request. System messages are folded
// into the top-level system prompt.
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body := toAnthropic(req)
	if len(body.Messages) == 0 {
		return nil, fmt.Errorf("%s: request has no user messages", p.config.ID)
	}

	headers := map[string]string{
		"x-api-key":         p.config.APIKey,
		"anthropic-version": anthropicVersion,
	}
	var out anthropicResponse
	if err := doJSON(ctx, p.client, p.config.ID, http.MethodPost, p.config.Endpoint+"/messages", headers, body, &out); err != nil {
		return nil, err
	}

	resp := fromAnthropic(&out)
	p.logger.Debug("anthropic chat completed",
		zap.String("provider", p.config.ID),
		zap.String("model", resp.Model),
		zap.String("stop_reason", resp.FinishReason),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return resp, nil
}

func toAnthropic(req *ChatRequest) *anthropicRequest {
	ar := &anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if ar.MaxTokens == 0 {
		ar.MaxTokens = anthropicMaxTokens
	}
	var system []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		ar.Messages = append(ar.Messages, anthropicMsg{Role: m.Role, Content: m.Content})
	}
	ar.System = strings.Join(system, "\n\n")
	return ar
}

func fromAnthropic(resp *anthropicResponse) *ChatResponse {
	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	return &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      text.String(),
		FinishReason: resp.StopReason,
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// ListModels returns the configured models, or a built-in list when none are
// configured.
func (p *AnthropicProvider) ListModels(_ context.Context) ([]Model, error) {
	ids := p.config.Models
	if len(ids) == 0 {
		ids = []string{"claude-sonnet-4-20250514", "claude-opus-4-20250514", anthropicPingModel}
	}
	models := make([]Model, len(ids))
	for i, id := range ids {
		models[i] = Model{ID: id, Name: id, Provider: p.config.ID, MaxTokens: 200000}
	}
	return models, nil
}

// HealthCheck sends a one-token request.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	model := anthropicPingModel
	if len(p.config.Models) > 0 {
		model = p.config.Models[0]
	}
	_, err := p.Chat(ctx, &ChatRequest{
		Model:     model,
		Messages:  []Message{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}
