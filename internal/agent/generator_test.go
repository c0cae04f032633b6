package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nidhogg/tiny-world/internal/provider"
	"go.uber.org/zap"
)

func newChatServer(t *testing.T, content string, got *provider.ChatRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-1",
			"model": got.Model,
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRouterGenerator(t *testing.T) {
	var got provider.ChatRequest
	srv := newChatServer(t, "  hello there \n", &got)

	router := provider.NewRouter(zap.NewNop())
	router.Register(provider.NewOpenAIProvider(provider.ProviderConfig{ID: "test", Endpoint: srv.URL}, zap.NewNop()))
	gen := NewRouterGenerator(router, "qwen-plus")

	text, err := gen.Generate(context.Background(), GenerateRequest{
		Agent: "Lisa", Capability: CapabilitySpeak, Prompt: "say hi", Temperature: 0.7, MaxTokens: 600,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "hello there" {
		t.Errorf("got %q, want %q", text, "hello there")
	}
	if got.Model != "qwen-plus" || got.MaxTokens != 600 || got.Temperature != 0.7 {
		t.Errorf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "say hi" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
}

func TestRouterGeneratorEmpty(t *testing.T) {
	var got provider.ChatRequest
	srv := newChatServer(t, "   ", &got)

	router := provider.NewRouter(zap.NewNop())
	router.Register(provider.NewOpenAIProvider(provider.ProviderConfig{ID: "test", Endpoint: srv.URL}, zap.NewNop()))

	_, err := NewRouterGenerator(router, "m").Generate(context.Background(), GenerateRequest{Agent: "Lisa", Prompt: "x"})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("got %v, want ErrEmptyCompletion", err)
	}
}

func TestRouterGeneratorNoProvider(t *testing.T) {
	router := provider.NewRouter(zap.NewNop())
	_, err := NewRouterGenerator(router, "m").Generate(context.Background(), GenerateRequest{Agent: "Lisa", Prompt: "x"})
	if err == nil {
		t.Fatal("expected error with no providers registered")
	}
}

func TestRouterGeneratorRoutesByCapability(t *testing.T) {
	var thinkReq, speakReq provider.ChatRequest
	thinkSrv := newChatServer(t, "pondering", &thinkReq)
	speakSrv := newChatServer(t, "talking", &speakReq)

	router := provider.NewRouter(zap.NewNop())
	router.Register(provider.NewOpenAIProvider(provider.ProviderConfig{ID: "speaker", Endpoint: speakSrv.URL}, zap.NewNop()))
	router.Register(provider.NewOpenAIProvider(provider.ProviderConfig{ID: "thinker", Endpoint: thinkSrv.URL}, zap.NewNop()))
	router.BindCapability(string(CapabilityThink), provider.Rule{Provider: "thinker"})
	gen := NewRouterGenerator(router, "m")

	got, err := gen.Generate(context.Background(), GenerateRequest{Agent: "Lisa", Capability: CapabilityThink, Prompt: "think"})
	if err != nil || got != "pondering" {
		t.Fatalf("think = %q, %v", got, err)
	}
	got, err = gen.Generate(context.Background(), GenerateRequest{Agent: "Lisa", Capability: CapabilitySpeak, Prompt: "speak"})
	if err != nil || got != "talking" {
		t.Fatalf("speak = %q, %v", got, err)
	}
	if thinkReq.Messages[0].Content != "think" || speakReq.Messages[0].Content != "speak" {
		t.Errorf("requests crossed: think=%+v speak=%+v", thinkReq.Messages, speakReq.Messages)
	}
}
