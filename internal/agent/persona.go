package agent

import "strings"

// Persona defines an agent's identity and personality.
// All fields are opaque to the turn loop; they only feed the prompt builder.
type Persona struct {
	Name        string      `json:"name" yaml:"name"`
	Role        string      `json:"role" yaml:"role"`
	Traits      []string    `json:"traits" yaml:"traits"`
	Personality Personality `json:"personality" yaml:"personality"`
}

// Personality holds the free-form attributes used as template values.
type Personality struct {
	Style     string   `json:"style" yaml:"style"`
	Expertise []string `json:"expertise,omitempty" yaml:"expertise,omitempty"`
	Interests []string `json:"interests,omitempty" yaml:"interests,omitempty"`
	Goals     []string `json:"goals,omitempty" yaml:"goals,omitempty"`
}

// Validate checks the fields every prompt template relies on.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ConfigurationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(p.Role) == "" {
		return &ConfigurationError{Field: "role", Reason: "must not be empty", Agent: p.Name}
	}
	if len(p.Traits) == 0 {
		return &ConfigurationError{Field: "traits", Reason: "at least one trait is required", Agent: p.Name}
	}
	for _, t := range p.Traits {
		if strings.TrimSpace(t) == "" {
			return &ConfigurationError{Field: "traits", Reason: "blank trait", Agent: p.Name}
		}
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate an agent's identity.
func (p Persona) clone() Persona {
	p.Traits = append([]string(nil), p.Traits...)
	p.Personality.Expertise = append([]string(nil), p.Personality.Expertise...)
	p.Personality.Interests = append([]string(nil), p.Personality.Interests...)
	p.Personality.Goals = append([]string(nil), p.Personality.Goals...)
	return p
}
