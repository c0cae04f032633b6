package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/persona"
	"github.com/nidhogg/tiny-world/internal/world"
	"go.uber.org/zap"
)

// ErrNotFound is returned for unknown simulation IDs.
var ErrNotFound = errors.New("simulation not found")

// Hook is told about simulation lifecycle events. Hook errors are logged,
// never returned to callers.
type Hook interface {
	SimulationCreated(ctx context.Context, sim *world.Simulation) error
	RunFinished(ctx context.Context, sim *world.Simulation) error
}

// HookFuncs adapts optional functions to the Hook interface.
type HookFuncs struct {
	OnCreate func(ctx context.Context, sim *world.Simulation) error
	OnFinish func(ctx context.Context, sim *world.Simulation) error
}

func (h HookFuncs) SimulationCreated(ctx context.Context, sim *world.Simulation) error {
	if h.OnCreate == nil {
		return nil
	}
	return h.OnCreate(ctx, sim)
}

func (h HookFuncs) RunFinished(ctx context.Context, sim *world.Simulation) error {
	if h.OnFinish == nil {
		return nil
	}
	return h.OnFinish(ctx, sim)
}

// CreateRequest describes a new simulation.
type CreateRequest struct {
	Scene         string          `json:"scene"`
	MemoryWindow  *int            `json:"memory_window,omitempty"`
	Personas      []agent.Persona `json:"personas"`
	DefinitionIDs []string        `json:"definition_ids,omitempty"`
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaults sets the scene and memory window used when a request omits them.
func WithDefaults(scene string, memoryWindow int) ManagerOption {
	return func(m *Manager) {
		m.defaultScene = scene
		m.defaultWindow = memoryWindow
	}
}

// WithParams overrides the per-capability generation settings given to agents.
func WithParams(params map[agent.Capability]agent.GenerationParams) ManagerOption {
	return func(m *Manager) { m.params = params }
}

// WithRoundDelay sets the pause between rounds of every simulation.
func WithRoundDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.delay = d }
}

// WithSinks attaches observers to every simulation the manager creates.
func WithSinks(obs ...world.Observer) ManagerOption {
	return func(m *Manager) { m.observers = append(m.observers, obs...) }
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks ...Hook) ManagerOption {
	return func(m *Manager) { m.hooks = append(m.hooks, hooks...) }
}

// Manager owns the live simulations of the process.
type Manager struct {
	gen           agent.Generator
	registry      *persona.Registry
	params        map[agent.Capability]agent.GenerationParams
	defaultScene  string
	defaultWindow int
	delay         time.Duration
	observers     []world.Observer
	hooks         []Hook
	logger        *zap.Logger

	mu   sync.RWMutex
	sims map[string]*world.Simulation
}

// NewManager creates a manager whose agents generate text with gen.
func NewManager(gen agent.Generator, reg *persona.Registry, logger *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		gen:           gen,
		registry:      reg,
		params:        agent.DefaultParams(),
		defaultWindow: 5,
		logger:        logger,
		sims:          make(map[string]*world.Simulation),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Generator returns the generator agents use.
func (m *Manager) Generator() agent.Generator { return m.gen }

// Registry returns the persona definition registry.
func (m *Manager) Registry() *persona.Registry { return m.registry }

// DefaultScene returns the configured fallback scene.
func (m *Manager) DefaultScene() string { return m.defaultScene }

// Create builds agents for the requested personas and registers a new
// simulation. Literal personas are recorded in the registry only once the
// simulation exists.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*world.Simulation, error) {
	scene := req.Scene
	if scene == "" {
		scene = m.defaultScene
	}
	window := m.defaultWindow
	if req.MemoryWindow != nil {
		window = *req.MemoryWindow
	}

	personas, err := m.resolve(req)
	if err != nil {
		return nil, err
	}
	if len(personas) == 0 {
		return nil, &agent.ConfigurationError{Field: "personas", Reason: "roster is empty"}
	}

	// Duplicate names are left to world.New.
	roster := make([]*agent.Agent, 0, len(personas))
	for _, p := range personas {
		a, err := agent.New(p, m.gen, m.logger)
		if err != nil {
			return nil, err
		}
		for c, params := range m.params {
			a.SetParams(c, params)
		}
		roster = append(roster, a)
	}

	sim, err := world.New(scene, roster, window, m.logger,
		world.WithID(uuid.New().String()),
		world.WithRoundDelay(m.delay),
		world.WithObservers(m.observers...),
	)
	if err != nil {
		return nil, err
	}
	for _, p := range req.Personas {
		m.registry.Record(persona.Definition{Source: persona.SourceLiteral, Persona: p})
	}

	m.mu.Lock()
	m.sims[sim.ID()] = sim
	m.mu.Unlock()

	for _, h := range m.hooks {
		if err := h.SimulationCreated(ctx, sim); err != nil {
			m.logger.Warn("simulation created hook failed", zap.String("run", sim.ID()), zap.Error(err))
		}
	}
	m.logger.Info("simulation created",
		zap.String("run", sim.ID()),
		zap.Strings("agents", sim.AgentNames()),
		zap.Int("memory_window", window))
	return sim, nil
}

// resolve collects literal personas and registered definitions, literal
// ones first.
func (m *Manager) resolve(req CreateRequest) ([]agent.Persona, error) {
	personas := append([]agent.Persona(nil), req.Personas...)
	if len(req.DefinitionIDs) == 0 {
		return personas, nil
	}

	byID := make(map[string]agent.Persona)
	for _, d := range m.registry.Definitions() {
		byID[d.ID] = d.Persona
	}
	for _, id := range req.DefinitionIDs {
		p, ok := byID[id]
		if !ok {
			return nil, &agent.ConfigurationError{Field: "definition_ids", Reason: fmt.Sprintf("unknown definition %q", id)}
		}
		personas = append(personas, p)
	}
	return personas, nil
}

// Get returns a simulation by ID.
func (m *Manager) Get(id string) (*world.Simulation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sim, ok := m.sims[id]
	return sim, ok
}

// List returns every simulation, oldest first.
func (m *Manager) List() []*world.Simulation {
	m.mu.RLock()
	out := make([]*world.Simulation, 0, len(m.sims))
	for _, s := range m.sims {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out
}

// Len returns the number of simulations.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sims)
}

// Run advances a simulation. The simulation serializes concurrent calls.
func (m *Manager) Run(ctx context.Context, id string, rounds int) ([]agent.TurnResult, error) {
	sim, ok := m.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	results, err := sim.Run(ctx, rounds)
	for _, h := range m.hooks {
		if herr := h.RunFinished(ctx, sim); herr != nil {
			m.logger.Warn("run finished hook failed", zap.String("run", id), zap.Error(herr))
		}
	}
	return results, err
}
