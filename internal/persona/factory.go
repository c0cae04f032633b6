package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/nidhogg/tiny-world/internal/agent"
	"go.uber.org/zap"
)

const (
	factoryAgent       = "persona-factory"
	factoryTemperature = 0.4
	factoryMaxTokens   = 500
)

// CapabilityPersona labels generation requests issued by the factory.
const CapabilityPersona agent.Capability = "persona"

// Factory asks a language model for personas that fit a base scene.
type Factory struct {
	scene     string
	generator agent.Generator
	registry  *Registry
	logger    *zap.Logger
}

// NewFactory creates a factory for scene. Generated personas are recorded in
// reg when it is not nil.
func NewFactory(scene string, gen agent.Generator, reg *Registry, logger *zap.Logger) *Factory {
	return &Factory{scene: scene, generator: gen, registry: reg, logger: logger}
}

// Generate produces one validated persona following instruction and returns
// its definition as recorded in the registry.
func (f *Factory) Generate(ctx context.Context, instruction string) (Definition, error) {
	if strings.TrimSpace(instruction) == "" {
		return Definition{}, &agent.ConfigurationError{Field: "instruction", Reason: "must not be empty"}
	}
	if strings.TrimSpace(f.scene) == "" {
		return Definition{}, &agent.ConfigurationError{Field: "scene", Reason: "must not be empty"}
	}

	raw, err := f.generator.Generate(ctx, agent.GenerateRequest{
		Agent:       factoryAgent,
		Capability:  CapabilityPersona,
		Prompt:      f.prompt(instruction),
		Temperature: factoryTemperature,
		MaxTokens:   factoryMaxTokens,
	})
	if err != nil {
		return Definition{}, fmt.Errorf("generate persona: %w", err)
	}

	p, err := Parse(raw)
	if err != nil {
		f.logger.Warn("rejected generated persona", zap.String("instruction", instruction), zap.Error(err))
		return Definition{}, err
	}
	d := Definition{Source: SourceGenerated, Raw: raw, Persona: p}
	if f.registry != nil {
		d = f.registry.Record(d)
	}
	f.logger.Info("generated persona", zap.String("id", d.ID), zap.String("name", p.Name), zap.String("role", p.Role))
	return d, nil
}

func (f *Factory) prompt(instruction string) string {
	var b strings.Builder
	b.WriteString("Create one character who fits the instruction and belongs in the scene.\n")
	fmt.Fprintf(&b, "Instruction: %s\n", instruction)
	fmt.Fprintf(&b, "Scene: %s\n\n", f.scene)
	b.WriteString("Reply with a single JSON object and nothing else, with exactly these fields:\n")
	b.WriteString(`{"name": string, "role": string, "traits": [3 strings], ` +
		`"personality": {"style": string, "expertise": [strings]}, ` +
		`"interests": [3 strings], "goals": [2 strings]}`)
	b.WriteString("\n")
	return b.String()
}
