package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Provider turns turn text into vectors for recall.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
	BatchSize int    `json:"batch_size"`
}

const (
	requestTimeout   = 60 * time.Second
	defaultBatchSize = 64
)

// New returns the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding: endpoint is required")
	}
	switch cfg.Provider {
	case "api", "openai", "":
		return NewAPIProvider(cfg), nil
	case "local", "ollama":
		return NewLocalProvider(cfg), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

// dimension reports the configured vector size until a response shows the
// real one.
type dimension struct {
	configured int
	observed   atomic.Int64
}

func (d *dimension) observe(vec []float32) {
	if len(vec) > 0 {
		d.observed.CompareAndSwap(0, int64(len(vec)))
	}
}

func (d *dimension) get() int {
	if n := d.observed.Load(); n > 0 {
		return int(n)
	}
	return d.configured
}

type client struct {
	http   *http.Client
	apiKey string
}

func newClient(apiKey string) client {
	return client{http: &http.Client{Timeout: requestTimeout}, apiKey: apiKey}
}

func (c client) post(ctx context.Context, url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("embedding: API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("embedding: decode response: %w", err)
	}
	return nil
}
