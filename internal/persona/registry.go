package persona

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/tiny-world/internal/agent"
)

// Sources of a recorded definition.
const (
	SourceLiteral   = "literal"
	SourceGenerated = "generated"
)

// Definition is one persona as it entered the process.
type Definition struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
	Raw       string        `json:"raw,omitempty"`
	Persona   agent.Persona `json:"persona"`
}

// Registry keeps every persona definition seen by the process, in order.
// Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs []Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Record appends a definition, filling in ID and timestamp when unset.
func (r *Registry) Record(d Definition) Definition {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	if d.Source == "" {
		d.Source = SourceLiteral
	}
	r.mu.Lock()
	r.defs = append(r.defs, d)
	r.mu.Unlock()
	return d
}

// Definitions returns a copy of the recorded definitions, oldest first.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Definition(nil), r.defs...)
}

// Len returns the number of recorded definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Clear drops every recorded definition.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.defs = nil
	r.mu.Unlock()
}
