package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestAnthropicChat(t *testing.T) {
	var got anthropicRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"msg_1","model":"claude","content":[{"type":"text","text":"hel"},{"type":"text","text":"lo"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewAnthropicProvider(ProviderConfig{ID: "claude", Endpoint: srv.URL, APIKey: "secret"}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model: "claude",
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
		},
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q, want hello", resp.Content)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("total tokens = %d, want 5", resp.Usage.TotalTokens)
	}
	if got.System != "be brief" || len(got.Messages) != 1 || got.MaxTokens != 4096 || got.Temperature != 0.7 {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestAnthropicRejectsSystemOnlyRequest(t *testing.T) {
	p := NewAnthropicProvider(ProviderConfig{ID: "claude", Endpoint: "http://unused"}, zap.NewNop())
	_, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: "system", Content: "x"}}})
	if err == nil {
		t.Fatal("expected error for request without user messages")
	}
}

func TestAnthropicListModelsFromConfig(t *testing.T) {
	p := NewAnthropicProvider(ProviderConfig{ID: "claude", Models: []string{"claude-a"}}, zap.NewNop())
	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 1 || models[0].ID != "claude-a" || models[0].Provider != "claude" {
		t.Errorf("models = %+v", models)
	}
}
