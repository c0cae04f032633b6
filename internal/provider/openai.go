package provider

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// OpenAIProvider talks to any chat-completions API in the OpenAI shape
// (OpenAI, DeepSeek, vLLM, DashScope compatible mode, ...).
type OpenAIProvider struct {
	config ProviderConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg ProviderConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.timeout()},
		logger: logger,
	}
}

func (p *OpenAIProvider) ID() string   { return p.config.ID }
func (p *OpenAIProvider) Name() string { return p.config.Name }

// chatURL builds the chat completions URL. With Extra["path_model"] set to
// "true" the model name becomes part of the path.
func (p *OpenAIProvider) chatURL(model string) string {
	if p.config.Extra["path_model"] == "true" && model != "" {
		return p.config.Endpoint + "/" + model + "/chat/completions"
	}
	return p.config.Endpoint + "/chat/completions"
}

func (p *OpenAIProvider) headers() map[string]string {
	h := map[string]string{}
	if p.config.APIKey != "" {
		h["Authorization"] = "Bearer " + p.config.APIKey
	}
	return h
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Chat sends a non-streaming chat completion request. A zero temperature is
// sent explicitly so deterministic settings reach the backend.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	temp := req.Temperature
	body := openAIChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: &temp,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}

	var out openAIChatResponse
	if err := doJSON(ctx, p.client, p.config.ID, http.MethodPost, p.chatURL(req.Model), p.headers(), body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s: response has no choices", p.config.ID)
	}

	choice := out.Choices[0]
	p.logger.Debug("openai chat completed",
		zap.String("provider", p.config.ID),
		zap.String("model", out.Model),
		zap.String("finish_reason", choice.FinishReason),
		zap.Int("total_tokens", out.Usage.TotalTokens))
	return &ChatResponse{
		ID:           out.ID,
		Model:        out.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        out.Usage,
	}, nil
}

// ListModels asks the backend which models it serves.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]Model, error) {
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := doJSON(ctx, p.client, p.config.ID, http.MethodGet, p.config.Endpoint+"/models", p.headers(), nil, &out); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	models := make([]Model, len(out.Data))
	for i, m := range out.Data {
		models[i] = Model{ID: m.ID, Name: m.ID, Provider: p.config.ID}
	}
	return models, nil
}

// HealthCheck verifies the provider is reachable.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.ListModels(ctx)
	return err
}
