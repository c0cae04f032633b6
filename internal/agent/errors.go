package agent

import "fmt"

// ConfigurationError reports malformed or missing persona or context fields.
// It is never retried.
type ConfigurationError struct {
	Agent  string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Agent != "" {
		return fmt.Sprintf("configuration error: agent %s: %s %s", e.Agent, e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// GenerationFailure reports that the text-generation backend did not return a
// usable completion for one capability of a turn.
type GenerationFailure struct {
	Agent      string
	Round      int
	Capability Capability
	Err        error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generation failed: agent %s round %d %s: %v", e.Agent, e.Round, e.Capability, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }
