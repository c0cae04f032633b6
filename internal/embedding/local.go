package embedding

import (
	"context"
	"fmt"
)

// LocalProvider embeds through an Ollama-style /api/embeddings endpoint,
// which takes one prompt per request.
type LocalProvider struct {
	endpoint string
	model    string
	client   client
	dim      dimension
}

// NewLocalProvider creates a new LocalProvider from the given Config.
func NewLocalProvider(cfg Config) *LocalProvider {
	p := &LocalProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   newClient(""),
	}
	p.dim.configured = cfg.Dimension
	return p
}

type localRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns one vector per text, in input order.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		var resp localResponse
		if err := p.client.post(ctx, p.endpoint+"/api/embeddings", localRequest{Model: p.model, Prompt: text}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embedding) == 0 {
			return nil, fmt.Errorf("embedding: empty vector for input %d", i)
		}
		out = append(out, resp.Embedding)
	}
	p.dim.observe(out[0])
	return out, nil
}

// Dimension returns the observed vector size, or the configured one before
// the first successful call.
func (p *LocalProvider) Dimension() int { return p.dim.get() }
