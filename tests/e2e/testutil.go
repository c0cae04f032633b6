//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/memory"
	pgstore "github.com/nidhogg/tiny-world/internal/store"
	"github.com/nidhogg/tiny-world/internal/world"
)

// Package-level shared state, set by TestMain.
var (
	testLogger   *zap.Logger
	testMemStore *memory.Store
	testPGStore  *pgstore.Store
	testRedisURL string
)

// startNeo4j starts a Neo4j testcontainer, returns URI + cleanup func.
func startNeo4j(ctx context.Context) (string, func(), error) {
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start neo4j: %w", err)
	}
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("neo4j bolt url: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return uri, cleanup, nil
}

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("tinyworld_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return "redis://" + endpoint, cleanup, nil
}

// scriptedGenerator answers "<agent> <capability> r<round>" and fails the
// speech of failAgent in failRound.
type scriptedGenerator struct {
	failAgent string
	failRound int
}

func (g scriptedGenerator) Generate(_ context.Context, req agent.GenerateRequest) (string, error) {
	round := 0
	for _, line := range strings.Split(req.Prompt, "\n") {
		if strings.HasPrefix(line, "Round: ") {
			fmt.Sscanf(line, "Round: %d", &round)
			break
		}
	}
	if req.Agent == g.failAgent && round == g.failRound && req.Capability == agent.CapabilitySpeak {
		return "", fmt.Errorf("scripted failure")
	}
	return fmt.Sprintf("%s %s r%d", req.Agent, req.Capability, round), nil
}

// newSimulation builds a simulation over the named agents with sinks attached.
func newSimulation(t *testing.T, gen agent.Generator, sinks []world.Observer, names ...string) *world.Simulation {
	t.Helper()
	roster := make([]*agent.Agent, 0, len(names))
	for _, n := range names {
		a, err := agent.New(agent.Persona{
			Name:        n,
			Role:        "keeper",
			Traits:      []string{"patient"},
			Personality: agent.Personality{Style: "quiet", Interests: []string{"lighthouses"}},
		}, gen, testLogger)
		if err != nil {
			t.Fatalf("new agent %s: %v", n, err)
		}
		roster = append(roster, a)
	}
	sim, err := world.New("a lighthouse on a stormy night", roster, 2, testLogger, world.WithObservers(sinks...))
	if err != nil {
		t.Fatalf("new simulation: %v", err)
	}
	return sim
}
