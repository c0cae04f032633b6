package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/provider"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tinyworld.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnv(t *testing.T) {
	t.Setenv("TW_TEST_KEY", "sk-test")
	path := writeConfig(t, `{
		"providers": [{"id": "main", "type": "openai", "api_key": "${TW_TEST_KEY}",
			"endpoint": "${TW_TEST_MISSING:http://localhost:11434/v1}", "timeout": "30s"}],
		"simulation": {"scene": "a quiet library", "memory_window": 2, "round_delay": 1.5}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := cfg.Providers[0]
	if p.APIKey != "sk-test" {
		t.Errorf("api key = %q", p.APIKey)
	}
	if p.Endpoint != "http://localhost:11434/v1" {
		t.Errorf("endpoint = %q", p.Endpoint)
	}
	if p.Timeout.Std() != 30*time.Second {
		t.Errorf("timeout = %v", p.Timeout.Std())
	}
	if cfg.Simulation.RoundDelay.Std() != 1500*time.Millisecond {
		t.Errorf("round delay = %v", cfg.Simulation.RoundDelay.Std())
	}
	if cfg.Simulation.MemoryWindow != 2 {
		t.Errorf("memory window = %d", cfg.Simulation.MemoryWindow)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Generation.Think.MaxTokens != 300 || cfg.Generation.Speak.MaxTokens != 600 || cfg.Generation.Action.MaxTokens != 600 {
		t.Errorf("max tokens = %+v", cfg.Generation)
	}
	if cfg.Generation.Think.Temperature != 0.7 {
		t.Errorf("temperature = %v", cfg.Generation.Think.Temperature)
	}
	if cfg.Database.Qdrant.Collection != "tinyworld_turns" {
		t.Errorf("collection = %q", cfg.Database.Qdrant.Collection)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, `{"simulation": {"round_delay": "soon"}}`)); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestBuildRouter(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"providers": [
			{"id": "local", "type": "openai", "endpoint": "http://localhost:11434/v1"},
			{"id": "claude", "type": "anthropic", "endpoint": "http://localhost:9999", "api_key": "k"},
			{"id": "odd", "type": "carrier-pigeon"}
		],
		"routing": {
			"default": "claude",
			"agents": {"Ada": {"provider": "local"}},
			"capabilities": {"persona": {"provider": "local", "fallbacks": ["claude"]}}
		},
		"generation": {"speak": {"temperature": 0.2, "max_tokens": 50}}
	}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	router, err := cfg.BuildRouter(context.Background(), zap.NewNop())
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	if got := len(router.ListProviders()); got != 2 {
		t.Errorf("providers = %d", got)
	}
	if router.DefaultID() != "claude" {
		t.Errorf("default = %q", router.DefaultID())
	}
	chain := func(tg provider.Target) []string {
		var ids []string
		for _, p := range router.Resolve(tg) {
			ids = append(ids, p.ID())
		}
		return ids
	}
	if got := chain(provider.Target{Agent: "Ada", Capability: "speak"}); len(got) != 1 || got[0] != "local" {
		t.Errorf("Ada chain = %v", got)
	}
	if got := chain(provider.Target{Agent: "Bo", Capability: "think"}); len(got) != 1 || got[0] != "claude" {
		t.Errorf("Bo chain = %v", got)
	}
	if got := chain(provider.Target{Agent: "persona-factory", Capability: "persona"}); len(got) != 2 || got[0] != "local" || got[1] != "claude" {
		t.Errorf("persona chain = %v", got)
	}

	params := cfg.Params()
	if p := params[agent.CapabilitySpeak]; p.Temperature != 0.2 || p.MaxTokens != 50 {
		t.Errorf("speak params = %+v", p)
	}
	if p := params[agent.CapabilityThink]; p.MaxTokens != 300 {
		t.Errorf("think params = %+v", p)
	}
}

func TestBuildRouterNoProviders(t *testing.T) {
	cfg, _ := Load(writeConfig(t, `{"providers": [{"id": "x", "type": "unknown"}]}`))
	if _, err := cfg.BuildRouter(context.Background(), zap.NewNop()); !errors.Is(err, ErrNoProviders) {
		t.Errorf("err = %v", err)
	}
}
