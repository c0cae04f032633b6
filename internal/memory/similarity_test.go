package memory

import (
	"testing"

	"github.com/nidhogg/tiny-world/internal/agent"
)

func TestTokenize(t *testing.T) {
	got := tokenize("Hello, World! a b2 data-science")
	want := []string{"hello", "world", "b2", "data-science"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKeywordSimilarity(t *testing.T) {
	if s := keywordSimilarity(nil, "anything"); s != 0 {
		t.Errorf("empty keywords scored %v", s)
	}
	if s := keywordSimilarity([]string{"garden"}, "we discuss budgets"); s != 0 {
		t.Errorf("unrelated text scored %v", s)
	}
	exact := keywordSimilarity([]string{"garden"}, "the garden needs water")
	partial := keywordSimilarity([]string{"garden"}, "the gardeners need water")
	if exact <= partial || partial <= 0 {
		t.Errorf("exact=%v partial=%v", exact, partial)
	}
	if s := keywordSimilarity([]string{"garden", "Garden"}, "the garden"); s != 1 {
		t.Errorf("repeated term scored %v, want 1", s)
	}
	if s := keywordSimilarity([]string{"garden", "budget"}, "the garden"); s != 0.5 {
		t.Errorf("half match scored %v, want 0.5", s)
	}
}

func TestRankEntriesMatchesAgentName(t *testing.T) {
	entries := []Entry{
		{Key: "Mira_contribution_1", Agent: "Mira", Text: "good morning"},
		{Key: "Theo_contribution_1", Agent: "Theo", Text: "good morning"},
	}
	got := rankEntries(entries, tokenize("theo morning"), 0)
	if len(got) != 2 || got[0].Agent != "Theo" || got[0].Score != 1 {
		t.Errorf("ranked = %+v", got)
	}
}

func TestRankEntries(t *testing.T) {
	entries := []Entry{
		{Key: "A_contribution_1", Agent: "A", Text: "let us plant tomatoes"},
		{Key: "B_contribution_1", Agent: "B", Text: "the budget is tight"},
		{Key: "A_action_1", Agent: "A", Text: "plants tomatoes in the garden"},
	}
	got := rankEntries(entries, tokenize("tomatoes garden"), 1)
	if len(got) != 1 || got[0].Key != "A_action_1" {
		t.Errorf("ranked = %+v", got)
	}
	if all := rankEntries(entries, tokenize("budget"), 0); len(all) != 1 || all[0].Agent != "B" {
		t.Errorf("ranked = %+v", all)
	}
}

func TestTurnParams(t *testing.T) {
	p := turnParams("run-1", agent.TurnResult{Agent: "A", Round: 3, Speech: "S3-A", Action: "Act3-A"})
	entries := p["entries"].([]map[string]interface{})
	if len(entries) != 2 {
		t.Fatalf("entries = %v", entries)
	}
	if entries[0]["key"] != "A_contribution_3" || entries[0]["text"] != "S3-A" {
		t.Errorf("contribution entry = %v", entries[0])
	}
	if entries[1]["key"] != "A_action_3" || entries[1]["kind"] != KindAction {
		t.Errorf("action entry = %v", entries[1])
	}
}
