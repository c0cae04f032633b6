package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/config"
	"gopkg.in/yaml.v3"
)

// Roster is the document shape of a persona file: an optional scene and
// the personas that act in it. A bare list of personas is accepted as well.
type Roster struct {
	Scene    string          `json:"scene,omitempty" yaml:"scene,omitempty"`
	Personas []agent.Persona `json:"personas" yaml:"personas"`
}

// LoadFile reads a JSON or YAML persona roster, chosen by extension, and
// validates every entry. Loaded personas are recorded in reg when it is
// not nil.
func LoadFile(path string, reg *Registry) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("read personas %s: %w", path, err)
	}
	roster, err := Decode(filepath.Ext(path), config.ExpandEnv(data))
	if err != nil {
		return Roster{}, fmt.Errorf("parse personas %s: %w", path, err)
	}
	if err := ValidateRoster(roster.Personas); err != nil {
		return Roster{}, err
	}
	roster.Scene = strings.TrimSpace(roster.Scene)
	if reg != nil {
		for _, p := range roster.Personas {
			reg.Record(Definition{Source: path, Persona: p})
		}
	}
	return roster, nil
}

// Decode parses a roster document in the format named by ext.
func Decode(ext string, data []byte) (Roster, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var list []agent.Persona
		if err := yaml.Unmarshal(data, &list); err == nil {
			return Roster{Personas: list}, nil
		}
		var doc Roster
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Roster{}, fmt.Errorf("decode yaml: %w", err)
		}
		return doc, nil
	case ".json", "":
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			var list []agent.Persona
			if err := json.Unmarshal(data, &list); err != nil {
				return Roster{}, fmt.Errorf("decode json: %w", err)
			}
			return Roster{Personas: list}, nil
		}
		var doc Roster
		if err := json.Unmarshal(data, &doc); err != nil {
			return Roster{}, fmt.Errorf("decode json: %w", err)
		}
		return doc, nil
	default:
		return Roster{}, fmt.Errorf("unsupported persona format %q", ext)
	}
}

// ValidateRoster checks every persona and that names are unique.
func ValidateRoster(personas []agent.Persona) error {
	if len(personas) == 0 {
		return &agent.ConfigurationError{Field: "personas", Reason: "roster is empty"}
	}
	seen := make(map[string]bool, len(personas))
	for _, p := range personas {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return &agent.ConfigurationError{Agent: p.Name, Field: "name", Reason: "is not unique"}
		}
		seen[p.Name] = true
	}
	return nil
}
