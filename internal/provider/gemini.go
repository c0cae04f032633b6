package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiProvider implements Provider for the Gemini API.
type GeminiProvider struct {
	config ProviderConfig
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a Gemini provider. An empty endpoint uses the
// public Gemini API.
func NewGeminiProvider(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.timeout()},
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{config: cfg, client: client, logger: logger}, nil
}

func (p *GeminiProvider) ID() string   { return p.config.ID }
func (p *GeminiProvider) Name() string { return p.config.Name }

// Chat sends a single generateContent request. System messages become the
// system instruction; assistant messages map to the model role.
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini: request has no user messages")
	}

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		StopSequences:   req.Stop,
	}
	if req.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP > 0 {
		genCfg.TopP = genai.Ptr(float32(req.TopP))
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	model := p.model(req.Model)
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	out := &ChatResponse{
		ID:      resp.ResponseID,
		Model:   model,
		Content: resp.Text(),
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	p.logger.Debug("gemini chat completed",
		zap.String("provider", p.config.ID),
		zap.String("model", model),
		zap.Int("total_tokens", out.Usage.TotalTokens))
	return out, nil
}

func (p *GeminiProvider) model(requested string) string {
	if requested != "" && requested != "default" {
		return requested
	}
	if len(p.config.Models) > 0 {
		return p.config.Models[0]
	}
	return "gemini-2.5-flash"
}

// ListModels returns the models configured for this provider.
func (p *GeminiProvider) ListModels(_ context.Context) ([]Model, error) {
	names := p.config.Models
	if len(names) == 0 {
		names = []string{p.model("")}
	}
	models := make([]Model, len(names))
	for i, n := range names {
		models[i] = Model{ID: n, Name: n, Provider: p.config.ID}
	}
	return models, nil
}

// HealthCheck verifies the default model is reachable.
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.Get(ctx, p.model(""), nil)
	return err
}
