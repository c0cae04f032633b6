package persona

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nidhogg/tiny-world/internal/agent"
)

// ParseError reports generated persona text that is not a single JSON
// object of the expected shape.
type ParseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse persona: %s: %v", e.Reason, e.Err)
	}
	return "parse persona: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// generated is the object a model is asked to return.
type generated struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Traits      []string `json:"traits"`
	Personality struct {
		Style     string   `json:"style"`
		Expertise []string `json:"expertise"`
	} `json:"personality"`
	Interests []string `json:"interests"`
	Goals     []string `json:"goals"`
}

// Parse strictly decodes a generated persona. A single surrounding markdown
// code fence is tolerated; unknown fields and trailing data are not.
func Parse(text string) (agent.Persona, error) {
	body := stripFence(strings.TrimSpace(text))
	if !strings.HasPrefix(body, "{") {
		return agent.Persona{}, &ParseError{Raw: text, Reason: "expected a JSON object"}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	var g generated
	if err := dec.Decode(&g); err != nil {
		return agent.Persona{}, &ParseError{Raw: text, Reason: "invalid object", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return agent.Persona{}, &ParseError{Raw: text, Reason: "trailing data after object"}
	}

	p := agent.Persona{
		Name:   g.Name,
		Role:   g.Role,
		Traits: g.Traits,
		Personality: agent.Personality{
			Style:     g.Personality.Style,
			Expertise: g.Personality.Expertise,
			Interests: g.Interests,
			Goals:     g.Goals,
		},
	}
	if err := p.Validate(); err != nil {
		return agent.Persona{}, &ParseError{Raw: text, Reason: "incomplete persona", Err: err}
	}
	return p, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 || !strings.HasSuffix(s, "```") {
		return s
	}
	inner := strings.TrimSpace(s[nl+1 : len(s)-3])
	if strings.Contains(inner, "```") {
		return s
	}
	return inner
}
