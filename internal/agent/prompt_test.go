package agent

import (
	"errors"
	"strings"
	"testing"
)

func TestTemplateBuilderIncludesContext(t *testing.T) {
	tc := TurnContext{
		Scene: "hospital conference room",
		Round: 2,
		SharedMemory: map[string]string{
			"Lisa_contribution_1": "We need more data.",
			"Lisa_action_1":       "opens a laptop",
		},
		RecentHistory: []RoundRecord{{
			Round: 1,
			Results: []TurnResult{{Agent: "Lisa", Round: 1, Speech: "We need more data.", Action: "opens a laptop"}},
		}},
	}
	p := testPersona("Oscar")

	for _, c := range Capabilities {
		prompt, err := TemplateBuilder{}.Build(c, p, tc.Scene, tc)
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}
		for _, want := range []string{"Oscar", "architect", "curious, stubborn", "hospital conference room",
			"Round: 2", "[round 1] Lisa said: We need more data.", "Lisa_action_1: opens a laptop", "ship the design"} {
			if !strings.Contains(prompt, want) {
				t.Errorf("%s prompt missing %q", c, want)
			}
		}
	}
}

func TestTemplateBuilderPromptsDiffer(t *testing.T) {
	p := testPersona("Oscar")
	tc := testContext(1)
	seen := map[string]Capability{}
	for _, c := range Capabilities {
		prompt, err := TemplateBuilder{}.Build(c, p, "ward", tc)
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}
		if prev, dup := seen[prompt]; dup {
			t.Errorf("%s prompt identical to %s", c, prev)
		}
		seen[prompt] = c
	}
}

func TestTemplateBuilderRejectsBadContext(t *testing.T) {
	p := testPersona("Oscar")
	var ce *ConfigurationError

	_, err := TemplateBuilder{}.Build(CapabilityThink, p, "ward", TurnContext{Round: 0})
	if !errors.As(err, &ce) || ce.Field != "round" {
		t.Errorf("round 0: got %v", err)
	}
	_, err = TemplateBuilder{}.Build(Capability("dream"), p, "ward", testContext(1))
	if !errors.As(err, &ce) || ce.Field != "capability" {
		t.Errorf("unknown capability: got %v", err)
	}
}
