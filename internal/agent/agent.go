package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Agent is a persona that produces a thought, a speech and an action per turn.
// An Agent is not safe for concurrent use; a simulation drives it from one
// goroutine.
type Agent struct {
	persona   Persona
	generator Generator
	prompts   PromptBuilder
	params    map[Capability]GenerationParams
	history   []TurnResult
	logger    *zap.Logger
}

// New validates the persona and creates an agent that generates through gen.
func New(p Persona, gen Generator, logger *zap.Logger) (*Agent, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, &ConfigurationError{Agent: p.Name, Field: "generator", Reason: "is required"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		persona:   p.clone(),
		generator: gen,
		prompts:   TemplateBuilder{},
		params:    DefaultParams(),
		logger:    logger.With(zap.String("agent", p.Name)),
	}, nil
}

// SetPromptBuilder replaces the default prompt templates.
func (a *Agent) SetPromptBuilder(b PromptBuilder) {
	if b != nil {
		a.prompts = b
	}
}

// SetParams overrides the generation settings of one capability.
func (a *Agent) SetParams(c Capability, p GenerationParams) {
	a.params[c] = p
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.persona.Name }

// Persona returns a copy of the agent's identity.
func (a *Agent) Persona() Persona { return a.persona.clone() }

// History returns a copy of the agent's own turn results, oldest first.
func (a *Agent) History() []TurnResult {
	out := make([]TurnResult, len(a.history))
	copy(out, a.history)
	return out
}

// Act runs one turn: think, speak, then decide an action, each from the same
// snapshot. Either all three succeed and the result is appended to the
// agent's history, or nothing is recorded and the error is returned.
func (a *Agent) Act(ctx context.Context, round int, scene string, tc TurnContext) (TurnResult, error) {
	result := TurnResult{Agent: a.persona.Name, Round: round}

	for _, c := range Capabilities {
		text, err := a.produce(ctx, c, round, scene, tc)
		if err != nil {
			return TurnResult{}, err
		}
		switch c {
		case CapabilityThink:
			result.Thought = text
		case CapabilitySpeak:
			result.Speech = text
		case CapabilityAction:
			result.Action = text
		}
		a.logger.Debug("capability produced",
			zap.Int("round", round),
			zap.String("capability", string(c)),
			zap.Int("chars", len(text)))
	}

	a.history = append(a.history, result)
	return result, nil
}

func (a *Agent) produce(ctx context.Context, c Capability, round int, scene string, tc TurnContext) (string, error) {
	prompt, err := a.prompts.Build(c, a.persona, scene, tc)
	if err != nil {
		return "", fmt.Errorf("build %s prompt: %w", c, err)
	}
	params := a.params[c]
	text, err := a.generator.Generate(ctx, GenerateRequest{
		Agent:       a.persona.Name,
		Capability:  c,
		Prompt:      prompt,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err == nil && text == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		return "", &GenerationFailure{Agent: a.persona.Name, Round: round, Capability: c, Err: err}
	}
	return text, nil
}
