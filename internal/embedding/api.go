package embedding

import (
	"context"
	"fmt"
)

// APIProvider embeds through an OpenAI-compatible /embeddings endpoint,
// sending inputs in batches of at most BatchSize.
type APIProvider struct {
	endpoint  string
	model     string
	batchSize int
	client    client
	dim       dimension
}

// NewAPIProvider creates a new APIProvider from the given Config.
func NewAPIProvider(cfg Config) *APIProvider {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	p := &APIProvider{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		batchSize: batch,
		client:    newClient(cfg.APIKey),
	}
	p.dim.configured = cfg.Dimension
	return p
}

type apiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbeddingData `json:"data"`
}

// Embed returns one vector per text, in input order.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		vecs, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	p.dim.observe(out[0])
	return out, nil
}

func (p *APIProvider) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var resp apiResponse
	if err := p.client.post(ctx, p.endpoint+"/embeddings", apiRequest{Model: p.model, Input: batch}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(resp.Data), len(batch))
	}

	// Servers may answer out of order; Index wins unless it is unusable.
	vecs := make([][]float32, len(batch))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(batch) || vecs[idx] != nil {
			idx = i
		}
		vecs[idx] = d.Embedding
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("embedding: empty vector for input %d", i)
		}
	}
	return vecs, nil
}

// Dimension returns the observed vector size, or the configured one before
// the first successful call.
func (p *APIProvider) Dimension() int { return p.dim.get() }
