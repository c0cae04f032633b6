package world

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/tiny-world/internal/agent"
	"go.uber.org/zap"
)

// ContributionKey is the shared-memory key holding an agent's speech for a round.
func ContributionKey(name string, round int) string {
	return fmt.Sprintf("%s_contribution_%d", name, round)
}

// ActionKey is the shared-memory key holding an agent's action for a round.
func ActionKey(name string, round int) string {
	return fmt.Sprintf("%s_action_%d", name, round)
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithID overrides the generated run ID.
func WithID(id string) Option {
	return func(s *Simulation) { s.id = id }
}

// WithRoundDelay pauses between consecutive rounds of one Run call.
func WithRoundDelay(d time.Duration) Option {
	return func(s *Simulation) { s.delay = d }
}

// WithObservers attaches sinks notified after every committed turn and round.
func WithObservers(obs ...Observer) Option {
	return func(s *Simulation) { s.observers = append(s.observers, obs...) }
}

// Simulation drives a roster of agents through rounds over a shared scene.
type Simulation struct {
	id        string
	scene     string
	agents    []*agent.Agent
	window    int
	delay     time.Duration
	observers []Observer
	createdAt time.Time

	runMu sync.Mutex // single writer

	mu      sync.RWMutex
	memory  map[string]string
	history []agent.RoundRecord
	rounds  int
	halted  error

	logger *zap.Logger
}

// New creates a simulation. The scene must not be blank. Roster order is turn
// order; agent names must be unique. memoryWindow bounds how many past rounds
// each turn sees.
func New(scene string, roster []*agent.Agent, memoryWindow int, logger *zap.Logger, opts ...Option) (*Simulation, error) {
	if strings.TrimSpace(scene) == "" {
		return nil, &agent.ConfigurationError{Field: "scene", Reason: "must not be empty"}
	}
	if memoryWindow < 0 {
		return nil, &agent.ConfigurationError{Field: "memory_window", Reason: "must not be negative"}
	}
	seen := make(map[string]bool, len(roster))
	for i, a := range roster {
		if a == nil {
			return nil, &agent.ConfigurationError{Field: "roster", Reason: fmt.Sprintf("entry %d is nil", i)}
		}
		if seen[a.Name()] {
			return nil, &DuplicateAgentNameError{Name: a.Name()}
		}
		seen[a.Name()] = true
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Simulation{
		id:        uuid.New().String(),
		scene:     scene,
		agents:    append([]*agent.Agent(nil), roster...),
		window:    memoryWindow,
		createdAt: time.Now(),
		memory:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.With(zap.String("run", s.id))
	return s, nil
}

// AddObserver attaches a sink after construction.
func (s *Simulation) AddObserver(o Observer) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.observers = append(s.observers, o)
}

// Run executes numRounds rounds and returns every turn result produced by
// this call in order. Rounds continue the numbering of earlier calls.
//
// When a turn fails the round is aborted: turns already taken stay merged
// into shared memory, the partial round is appended to history marked
// Aborted, and the simulation halts. Run then returns the results so far
// together with the failure.
func (s *Simulation) Run(ctx context.Context, numRounds int) ([]agent.TurnResult, error) {
	results := []agent.TurnResult{}
	if numRounds <= 0 {
		return results, nil
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if cause := s.Halted(); cause != nil {
		return results, fmt.Errorf("%w: %w", ErrHalted, cause)
	}

	for i := 0; i < numRounds; i++ {
		if i > 0 && s.delay > 0 {
			if err := sleep(ctx, s.delay); err != nil {
				return results, fmt.Errorf("wait for round: %w", err)
			}
		}
		turns, err := s.runRound(ctx)
		results = append(results, turns...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (s *Simulation) runRound(ctx context.Context) ([]agent.TurnResult, error) {
	tc := s.snapshot()
	round := tc.Round
	record := agent.RoundRecord{Round: round, Results: make([]agent.TurnResult, 0, len(s.agents))}

	s.logger.Info("round started",
		zap.Int("round", round),
		zap.Int("agents", len(s.agents)),
		zap.Int("window", len(tc.RecentHistory)))

	for _, a := range s.agents {
		res, err := a.Act(ctx, round, s.scene, tc)
		if err != nil {
			record.Aborted = true
			s.abort(record, err)
			s.logger.Error("round aborted",
				zap.Int("round", round),
				zap.String("agent", a.Name()),
				zap.Int("completed", len(record.Results)),
				zap.Error(err))
			s.notifyRound(ctx, record)
			return record.Results, fmt.Errorf("round %d: %w", round, err)
		}

		s.mu.Lock()
		s.memory[ContributionKey(res.Agent, round)] = res.Speech
		s.memory[ActionKey(res.Agent, round)] = res.Action
		s.mu.Unlock()
		record.Results = append(record.Results, res)

		s.logger.Debug("turn", zap.Int("round", round), zap.String("agent", res.Agent), zap.String("thought", res.Thought))
		s.logger.Debug("turn", zap.Int("round", round), zap.String("agent", res.Agent), zap.String("speech", res.Speech))
		s.logger.Debug("turn", zap.Int("round", round), zap.String("agent", res.Agent), zap.String("action", res.Action))
		s.notifyTurn(ctx, res)
	}

	s.mu.Lock()
	s.history = append(s.history, record.Clone())
	s.rounds = round
	s.mu.Unlock()

	s.logger.Info("round finished", zap.Int("round", round))
	s.notifyRound(ctx, record)
	return record.Results, nil
}

// snapshot freezes the context shared by every agent of the next round.
func (s *Simulation) snapshot() agent.TurnContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mem := make(map[string]string, len(s.memory))
	for k, v := range s.memory {
		mem[k] = v
	}
	n := s.window
	if n > len(s.history) {
		n = len(s.history)
	}
	recent := make([]agent.RoundRecord, 0, n)
	for _, rec := range s.history[len(s.history)-n:] {
		recent = append(recent, rec.Clone())
	}
	return agent.TurnContext{
		Scene:         s.scene,
		Round:         s.rounds + 1,
		SharedMemory:  mem,
		RecentHistory: recent,
	}
}

func (s *Simulation) abort(record agent.RoundRecord, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, record.Clone())
	s.halted = cause
}

func (s *Simulation) notifyTurn(ctx context.Context, res agent.TurnResult) {
	for _, o := range s.observers {
		if err := o.TurnCompleted(ctx, s.id, res); err != nil {
			s.logger.Warn("turn observer failed",
				zap.String("agent", res.Agent), zap.Int("round", res.Round), zap.Error(err))
		}
	}
}

func (s *Simulation) notifyRound(ctx context.Context, rec agent.RoundRecord) {
	for _, o := range s.observers {
		if err := o.RoundCompleted(ctx, s.id, rec.Clone()); err != nil {
			s.logger.Warn("round observer failed", zap.Int("round", rec.Round), zap.Error(err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ID returns the run identifier.
func (s *Simulation) ID() string { return s.id }

// Scene returns the shared setting.
func (s *Simulation) Scene() string { return s.scene }

// MemoryWindow returns the number of past rounds each turn observes.
func (s *Simulation) MemoryWindow() int { return s.window }

// CreatedAt returns when the simulation was constructed.
func (s *Simulation) CreatedAt() time.Time { return s.createdAt }

// Agents returns the roster in turn order.
func (s *Simulation) Agents() []*agent.Agent {
	return append([]*agent.Agent(nil), s.agents...)
}

// AgentNames returns the roster names in turn order.
func (s *Simulation) AgentNames() []string {
	names := make([]string, len(s.agents))
	for i, a := range s.agents {
		names[i] = a.Name()
	}
	return names
}

// Rounds returns the number of completed rounds.
func (s *Simulation) Rounds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rounds
}

// Halted returns the failure that stopped the simulation, or nil.
func (s *Simulation) Halted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halted
}

// History returns a copy of every round record, oldest first. An aborted
// round, if any, is last.
func (s *Simulation) History() []agent.RoundRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agent.RoundRecord, len(s.history))
	for i, rec := range s.history {
		out[i] = rec.Clone()
	}
	return out
}

// SharedMemory returns a copy of the shared memory.
func (s *Simulation) SharedMemory() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.memory))
	for k, v := range s.memory {
		out[k] = v
	}
	return out
}

// MemoryKeys returns the shared-memory keys in sorted order.
func (s *Simulation) MemoryKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.memory))
	for k := range s.memory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
