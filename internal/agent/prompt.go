package agent

import (
	"fmt"
	"sort"
	"strings"
)

// PromptBuilder turns a persona and a turn snapshot into the prompt for one
// capability. It owns the contract on which context fields must be present.
type PromptBuilder interface {
	Build(c Capability, p Persona, scene string, tc TurnContext) (string, error)
}

// TemplateBuilder is the default PromptBuilder.
type TemplateBuilder struct{}

var capabilityInstructions = map[Capability]string{
	CapabilityThink: "Write %s's private thoughts at this moment: how they read the conversation so far, " +
		"what they make of the other people present, and how it relates to their goals (%s). " +
		"Think in a %s manner and keep it natural rather than formulaic.",
	CapabilitySpeak: "Write what %s says out loud next. Stay on the current topic, stay consistent with the " +
		"recent conversation, and let their goals (%s) show without announcing them. " +
		"Speak in a %s manner and do not restate the character description.",
	CapabilityAction: "Describe the concrete thing %s does next and what they intend to do right after. " +
		"It must follow from what already happened and serve their goals (%s); do not switch abruptly " +
		"to something unrelated. Their general manner is %s.",
}

// Build implements PromptBuilder.
func (TemplateBuilder) Build(c Capability, p Persona, scene string, tc TurnContext) (string, error) {
	instruction, ok := capabilityInstructions[c]
	if !ok {
		return "", &ConfigurationError{Agent: p.Name, Field: "capability", Reason: fmt.Sprintf("unknown capability %q", c)}
	}
	if strings.TrimSpace(scene) == "" {
		return "", &ConfigurationError{Agent: p.Name, Field: "scene", Reason: "must not be empty"}
	}
	if tc.Round < 1 {
		return "", &ConfigurationError{Agent: p.Name, Field: "round", Reason: "must be positive"}
	}

	style := p.Personality.Style
	if style == "" {
		style = "natural"
	}
	goals := joinOr(p.Personality.Goals, "none stated")

	var b strings.Builder
	fmt.Fprintf(&b, "You are playing %s, a %s.\n", p.Name, p.Role)
	fmt.Fprintf(&b, "Core traits: %s\n", strings.Join(p.Traits, ", "))
	fmt.Fprintf(&b, "Style: %s\n", style)
	if len(p.Personality.Expertise) > 0 {
		fmt.Fprintf(&b, "Expertise: %s\n", strings.Join(p.Personality.Expertise, ", "))
	}
	if len(p.Personality.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(p.Personality.Interests, ", "))
	}
	fmt.Fprintf(&b, "Goals: %s\n\n", goals)
	fmt.Fprintf(&b, "Scene: %s\n", scene)
	fmt.Fprintf(&b, "Round: %d\n", tc.Round)
	writeRecentHistory(&b, tc.RecentHistory)
	writeSharedMemory(&b, tc.SharedMemory)
	b.WriteString("\n")
	fmt.Fprintf(&b, instruction, p.Name, goals, style)
	return b.String(), nil
}

func writeRecentHistory(b *strings.Builder, rounds []RoundRecord) {
	if len(rounds) == 0 {
		b.WriteString("Recent rounds: none yet\n")
		return
	}
	b.WriteString("Recent rounds:\n")
	for _, r := range rounds {
		for _, t := range r.Results {
			fmt.Fprintf(b, "- [round %d] %s said: %s\n", r.Round, t.Agent, t.Speech)
			fmt.Fprintf(b, "- [round %d] %s did: %s\n", r.Round, t.Agent, t.Action)
		}
	}
}

func writeSharedMemory(b *strings.Builder, mem map[string]string) {
	if len(mem) == 0 {
		return
	}
	keys := make([]string, 0, len(mem))
	for k := range mem {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("Shared memory:\n")
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, mem[k])
	}
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}
