package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/world"
	"go.uber.org/zap"
)

// Entry kinds mirror the two shared-memory keys an agent writes per round.
const (
	KindContribution = "contribution"
	KindAction       = "action"
)

// Entry is one shared-memory value stored as a graph node.
type Entry struct {
	Key   string  `json:"key"`
	RunID string  `json:"run_id"`
	Agent string  `json:"agent"`
	Round int     `json:"round"`
	Kind  string  `json:"kind"`
	Text  string  `json:"text"`
	Score float64 `json:"score,omitempty"`
}

// Store mirrors each run's shared memory into Neo4j as a contribution graph:
// (:Agent)-[:CONTRIBUTED]->(:Entry)-[:IN_ROUND]->(:Round)-[:OF_RUN]->(:Run).
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewStore creates a new Neo4j memory store.
func NewStore(uri, user, password string, logger *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{driver: driver, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the Neo4j connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// EnsureRun creates the run node and one node per roster agent.
func (s *Store) EnsureRun(ctx context.Context, runID, scene string, agents []string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (r:Run {id: $runId})
		 ON CREATE SET r.scene = $scene, r.created_at = datetime()
		 WITH r
		 UNWIND $agents AS name
		 MERGE (a:Agent {run_id: $runId, name: name})
		 MERGE (a)-[:IN_RUN]->(r)`,
		map[string]interface{}{"runId": runID, "scene": scene, "agents": agents})
	if err != nil {
		return fmt.Errorf("ensure run %s: %w", runID, err)
	}
	return nil
}

// TurnCompleted stores the turn's speech and action as entries.
func (s *Store) TurnCompleted(ctx context.Context, runID string, res agent.TurnResult) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (r:Run {id: $runId})
		 MERGE (rd:Round {run_id: $runId, number: $round})
		 MERGE (rd)-[:OF_RUN]->(r)
		 MERGE (a:Agent {run_id: $runId, name: $agent})
		 WITH a, rd
		 UNWIND $entries AS e
		 MERGE (m:Entry {run_id: $runId, key: e.key})
		 SET m.agent = $agent, m.round = $round, m.kind = e.kind, m.text = e.text,
		     m.created_at = datetime()
		 MERGE (a)-[:CONTRIBUTED]->(m)
		 MERGE (m)-[:IN_ROUND]->(rd)`,
		turnParams(runID, res))
	if err != nil {
		return fmt.Errorf("store turn %s/%d: %w", res.Agent, res.Round, err)
	}
	return nil
}

// RoundCompleted marks the round and links it to the previous one.
func (s *Store) RoundCompleted(ctx context.Context, runID string, rec agent.RoundRecord) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (r:Run {id: $runId})
		 MERGE (rd:Round {run_id: $runId, number: $round})
		 MERGE (rd)-[:OF_RUN]->(r)
		 SET rd.turns = $turns, rd.aborted = $aborted, rd.completed_at = datetime()
		 WITH rd
		 OPTIONAL MATCH (prev:Round {run_id: $runId, number: $round - 1})
		 FOREACH (p IN CASE WHEN prev IS NULL THEN [] ELSE [prev] END |
		   MERGE (rd)-[:FOLLOWS]->(p))`,
		map[string]interface{}{
			"runId":   runID,
			"round":   rec.Round,
			"turns":   len(rec.Results),
			"aborted": rec.Aborted,
		})
	if err != nil {
		return fmt.Errorf("store round %d: %w", rec.Round, err)
	}
	return nil
}

func turnParams(runID string, res agent.TurnResult) map[string]interface{} {
	return map[string]interface{}{
		"runId": runID,
		"round": res.Round,
		"agent": res.Agent,
		"entries": []map[string]interface{}{
			{"key": world.ContributionKey(res.Agent, res.Round), "kind": KindContribution, "text": res.Speech},
			{"key": world.ActionKey(res.Agent, res.Round), "kind": KindAction, "text": res.Action},
		},
	}
}

// Entries returns a run's entries in round order, optionally for one agent.
func (s *Store) Entries(ctx context.Context, runID, agentName string) ([]Entry, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (m:Entry {run_id: $runId})
		 WHERE $agent = '' OR m.agent = $agent
		 RETURN m.key, m.agent, m.round, m.kind, m.text
		 ORDER BY m.round, m.agent, m.kind`,
		map[string]interface{}{"runId": runID, "agent": agentName})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	var entries []Entry
	for result.Next(ctx) {
		entries = append(entries, entryFromRecord(runID, result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	return entries, nil
}

// SharedMemory rebuilds a run's shared-memory mapping from the graph.
func (s *Store) SharedMemory(ctx context.Context, runID string) (map[string]string, error) {
	entries, err := s.Entries(ctx, runID, "")
	if err != nil {
		return nil, err
	}
	mem := make(map[string]string, len(entries))
	for _, e := range entries {
		mem[e.Key] = e.Text
	}
	return mem, nil
}

// Search ranks a run's entries by keyword overlap with query.
func (s *Store) Search(ctx context.Context, runID, query string, limit int) ([]Entry, error) {
	start := time.Now()
	entries, err := s.Entries(ctx, runID, "")
	if err != nil {
		return nil, err
	}
	ranked := rankEntries(entries, tokenize(query), limit)
	s.logger.Debug("keyword search",
		zap.String("run", runID),
		zap.Int("candidates", len(entries)),
		zap.Int("hits", len(ranked)),
		zap.Duration("took", time.Since(start)))
	return ranked, nil
}

func entryFromRecord(runID string, rec *neo4j.Record) Entry {
	key, _ := rec.Get("m.key")
	name, _ := rec.Get("m.agent")
	round, _ := rec.Get("m.round")
	kind, _ := rec.Get("m.kind")
	text, _ := rec.Get("m.text")
	e := Entry{RunID: runID}
	e.Key, _ = key.(string)
	e.Agent, _ = name.(string)
	if r, ok := round.(int64); ok {
		e.Round = int(r)
	}
	e.Kind, _ = kind.(string)
	e.Text, _ = text.(string)
	return e
}
