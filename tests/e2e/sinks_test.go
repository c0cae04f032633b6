//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/bus"
	"github.com/nidhogg/tiny-world/internal/memory"
	"github.com/nidhogg/tiny-world/internal/persona"
	pgstore "github.com/nidhogg/tiny-world/internal/store"
	"github.com/nidhogg/tiny-world/internal/world"
)

func TestMain(m *testing.M) {
	os.Exit(runMain(m))
}

func runMain(m *testing.M) int {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	// 1. Neo4j
	neo4jURI, neo4jCleanup, err := startNeo4j(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neo4j: %v\n", err)
		return 1
	}
	defer neo4jCleanup()

	testMemStore, err = memory.NewStore(neo4jURI, "", "", testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memory store: %v\n", err)
		return 1
	}
	defer testMemStore.Close(ctx)

	// 2. PostgreSQL
	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		return 1
	}
	defer pgCleanup()

	testPGStore, err = pgstore.New(ctx, pgDSN, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pg store: %v\n", err)
		return 1
	}
	defer testPGStore.Close()

	if err := testPGStore.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}

	// 3. Redis
	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		return 1
	}
	defer redisCleanup()
	testRedisURL = redisURL

	return m.Run()
}

func TestStoreRecordsRun(t *testing.T) {
	ctx := context.Background()
	sim := newSimulation(t, scriptedGenerator{}, []world.Observer{testPGStore}, "Ada", "Bo")
	if err := testPGStore.CreateRun(ctx, pgstore.RunRow{
		ID: sim.ID(), Scene: sim.Scene(), MemoryWindow: sim.MemoryWindow(), Agents: sim.AgentNames(),
	}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	if _, err := sim.Run(ctx, 2); err != nil {
		t.Fatalf("run: %v", err)
	}

	run, err := testPGStore.GetRun(ctx, sim.ID())
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Rounds != 2 || run.Status != pgstore.RunActive || len(run.Agents) != 2 {
		t.Errorf("run = %+v", run)
	}
	if _, err := testPGStore.GetRun(ctx, "no-such-run"); !errors.Is(err, pgstore.ErrRunNotFound) {
		t.Errorf("missing run: got %v, want ErrRunNotFound", err)
	}

	turns, err := testPGStore.ListTurns(ctx, sim.ID())
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("turns = %d", len(turns))
	}
	want := []string{"Ada", "Bo", "Ada", "Bo"}
	for i, tr := range turns {
		if tr.Agent != want[i] || tr.Round != i/2+1 {
			t.Errorf("turn %d = %s/%d", i, tr.Agent, tr.Round)
		}
	}
	if turns[3].Action != "Bo action r2" {
		t.Errorf("last action = %q", turns[3].Action)
	}
}

func TestStoreMarksHaltedRun(t *testing.T) {
	ctx := context.Background()
	sim := newSimulation(t, scriptedGenerator{failAgent: "Bo", failRound: 2}, []world.Observer{testPGStore}, "Ada", "Bo", "Cy")
	if err := testPGStore.CreateRun(ctx, pgstore.RunRow{ID: sim.ID(), Scene: sim.Scene(), Agents: sim.AgentNames()}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	results, err := sim.Run(ctx, 3)
	if err == nil {
		t.Fatal("expected run error")
	}
	var gf *agent.GenerationFailure
	if !errors.As(err, &gf) || gf.Agent != "Bo" {
		t.Errorf("err = %v", err)
	}
	if len(results) != 4 {
		t.Errorf("results = %d", len(results))
	}

	run, err := testPGStore.GetRun(ctx, sim.ID())
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != pgstore.RunHalted || run.Rounds != 1 {
		t.Errorf("run = %+v", run)
	}
	turns, _ := testPGStore.ListTurns(ctx, sim.ID())
	if len(turns) != 4 {
		t.Errorf("stored turns = %d", len(turns))
	}
}

func TestDefinitionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	if err := testPGStore.ClearDefinitions(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	reg := persona.NewRegistry()
	d := reg.Record(persona.Definition{
		Source: persona.SourceGenerated,
		Raw:    `{"name":"Ada"}`,
		Persona: agent.Persona{
			Name: "Ada", Role: "keeper", Traits: []string{"patient"},
			Personality: agent.Personality{Style: "quiet", Goals: []string{"keep the light"}},
		},
	})
	if err := testPGStore.SaveDefinition(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}

	defs, err := testPGStore.ListDefinitions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(defs) != 1 || defs[0].ID != d.ID || defs[0].Persona.Personality.Goals[0] != "keep the light" {
		t.Errorf("defs = %+v", defs)
	}
}

func TestBusReplaysRunEvents(t *testing.T) {
	ctx := context.Background()
	eb, err := bus.New(ctx, testRedisURL, testLogger)
	if err != nil {
		t.Fatalf("bus: %v", err)
	}
	defer eb.Close()

	sim := newSimulation(t, scriptedGenerator{}, []world.Observer{eb}, "Ada", "Bo")

	subCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	live := eb.Subscribe(subCtx, sim.ID())
	time.Sleep(500 * time.Millisecond)

	if _, err := sim.Run(ctx, 1); err != nil {
		t.Fatalf("run: %v", err)
	}

	events, err := eb.Replay(ctx, sim.ID())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d", len(events))
	}
	if events[0].Type != bus.EventTurn || events[0].Turn.Agent != "Ada" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[2].Type != bus.EventRound || len(events[2].Record.Results) != 2 {
		t.Errorf("last event = %+v", events[2])
	}

	got := 0
	for got < 3 {
		select {
		case ev, ok := <-live:
			if !ok {
				t.Fatalf("subscription closed after %d events", got)
			}
			if ev.RunID != sim.ID() {
				t.Errorf("event run = %s", ev.RunID)
			}
			got++
		case <-subCtx.Done():
			t.Fatalf("received %d live events", got)
		}
	}
}

func TestMemoryGraphMirrorsSharedMemory(t *testing.T) {
	ctx := context.Background()
	sim := newSimulation(t, scriptedGenerator{}, []world.Observer{testMemStore}, "Ada", "Bo")
	if err := testMemStore.EnsureRun(ctx, sim.ID(), sim.Scene(), sim.AgentNames()); err != nil {
		t.Fatalf("ensure run: %v", err)
	}
	if _, err := sim.Run(ctx, 2); err != nil {
		t.Fatalf("run: %v", err)
	}

	mem, err := testMemStore.SharedMemory(ctx, sim.ID())
	if err != nil {
		t.Fatalf("shared memory: %v", err)
	}
	want := sim.SharedMemory()
	if len(mem) != len(want) {
		t.Fatalf("graph has %d keys, simulation %d", len(mem), len(want))
	}
	for k, v := range want {
		if mem[k] != v {
			t.Errorf("%s = %q, want %q", k, mem[k], v)
		}
	}

	entries, err := testMemStore.Entries(ctx, sim.ID(), "Bo")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("Bo entries = %d", len(entries))
	}

	hits, err := testMemStore.Search(ctx, sim.ID(), "Ada speak", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 || hits[0].Agent != "Ada" {
		t.Errorf("hits = %+v", hits)
	}
	if hits[0].Key != world.ContributionKey("Ada", hits[0].Round) {
		t.Errorf("top hit key = %s", hits[0].Key)
	}
}
