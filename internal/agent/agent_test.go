package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

type recordingGenerator struct {
	calls  []GenerateRequest
	failOn Capability
}

func (g *recordingGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	g.calls = append(g.calls, req)
	if req.Capability == g.failOn {
		return "", errors.New("backend unavailable")
	}
	return fmt.Sprintf("%s-%s", req.Capability, req.Agent), nil
}

func testPersona(name string) Persona {
	return Persona{
		Name:   name,
		Role:   "architect",
		Traits: []string{"curious", "stubborn"},
		Personality: Personality{
			Style: "direct",
			Goals: []string{"ship the design"},
		},
	}
}

func testContext(round int) TurnContext {
	return TurnContext{Scene: "studio", Round: round, SharedMemory: map[string]string{}}
}

func TestActCallsCapabilitiesInOrder(t *testing.T) {
	gen := &recordingGenerator{}
	a, err := New(testPersona("Emma"), gen, zap.NewNop())
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	res, err := a.Act(context.Background(), 1, "studio", testContext(1))
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if len(gen.calls) != 3 {
		t.Fatalf("got %d generation calls, want 3", len(gen.calls))
	}
	for i, c := range Capabilities {
		if gen.calls[i].Capability != c {
			t.Errorf("call %d: got %s, want %s", i, gen.calls[i].Capability, c)
		}
	}
	if res.Thought != "think-Emma" || res.Speech != "speak-Emma" || res.Action != "action-Emma" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Agent != "Emma" || res.Round != 1 {
		t.Errorf("unexpected identity: %+v", res)
	}
	if h := a.History(); len(h) != 1 || h[0] != res {
		t.Errorf("history = %+v, want [%+v]", h, res)
	}
}

func TestActUsesCapabilityParams(t *testing.T) {
	gen := &recordingGenerator{}
	a, _ := New(testPersona("Emma"), gen, zap.NewNop())
	a.SetParams(CapabilitySpeak, GenerationParams{Temperature: 0.2, MaxTokens: 42})

	if _, err := a.Act(context.Background(), 1, "studio", testContext(1)); err != nil {
		t.Fatalf("act: %v", err)
	}
	if gen.calls[0].MaxTokens != 300 {
		t.Errorf("think max tokens = %d, want 300", gen.calls[0].MaxTokens)
	}
	if gen.calls[1].MaxTokens != 42 || gen.calls[1].Temperature != 0.2 {
		t.Errorf("speak params = %+v", gen.calls[1])
	}
}

func TestActFailureIsAtomic(t *testing.T) {
	for _, c := range Capabilities {
		t.Run(string(c), func(t *testing.T) {
			gen := &recordingGenerator{failOn: c}
			a, _ := New(testPersona("Emma"), gen, zap.NewNop())

			_, err := a.Act(context.Background(), 3, "studio", testContext(3))
			var gf *GenerationFailure
			if !errors.As(err, &gf) {
				t.Fatalf("got %v, want GenerationFailure", err)
			}
			if gf.Capability != c || gf.Agent != "Emma" || gf.Round != 3 {
				t.Errorf("unexpected failure: %+v", gf)
			}
			if len(a.History()) != 0 {
				t.Errorf("history grew after failure: %+v", a.History())
			}
		})
	}
}

func TestActEmptyCompletionFails(t *testing.T) {
	gen := GeneratorFunc(func(_ context.Context, req GenerateRequest) (string, error) {
		if req.Capability == CapabilitySpeak {
			return "", nil
		}
		return "ok", nil
	})
	a, _ := New(testPersona("Emma"), gen, zap.NewNop())

	_, err := a.Act(context.Background(), 1, "studio", testContext(1))
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("got %v, want ErrEmptyCompletion", err)
	}
}

func TestActMissingSceneIsConfigurationError(t *testing.T) {
	gen := &recordingGenerator{}
	a, _ := New(testPersona("Emma"), gen, zap.NewNop())

	_, err := a.Act(context.Background(), 1, "", testContext(1))
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want ConfigurationError", err)
	}
	if len(gen.calls) != 0 {
		t.Errorf("backend called %d times before failing", len(gen.calls))
	}
}

func TestNewRejectsInvalidPersona(t *testing.T) {
	cases := map[string]Persona{
		"no name":     {Role: "x", Traits: []string{"a"}},
		"no role":     {Name: "A", Traits: []string{"a"}},
		"no traits":   {Name: "A", Role: "x"},
		"blank trait": {Name: "A", Role: "x", Traits: []string{" "}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(p, &recordingGenerator{}, zap.NewNop())
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("got %v, want ConfigurationError", err)
			}
		})
	}

	if _, err := New(testPersona("A"), nil, zap.NewNop()); err == nil {
		t.Error("expected error for nil generator")
	}
}

func TestPersonaIsCopied(t *testing.T) {
	p := testPersona("Emma")
	a, _ := New(p, &recordingGenerator{}, zap.NewNop())
	p.Traits[0] = "mutated"

	got := a.Persona()
	if got.Traits[0] != "curious" {
		t.Errorf("persona aliased caller slice: %v", got.Traits)
	}
	got.Traits[1] = "mutated"
	if a.Persona().Traits[1] != "stubborn" {
		t.Error("Persona() returned aliased slice")
	}
}
