package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/world"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func newSim(t *testing.T, failOn agent.Capability) *world.Simulation {
	t.Helper()
	gen := agent.GeneratorFunc(func(_ context.Context, req agent.GenerateRequest) (string, error) {
		if req.Capability == failOn && req.Agent == "B" {
			return "", errors.New("down")
		}
		return string(req.Capability) + " by " + req.Agent, nil
	})
	var roster []*agent.Agent
	for _, n := range []string{"A", "B"} {
		a, err := agent.New(agent.Persona{Name: n, Role: "gardener", Traits: []string{"calm"}}, gen, zap.NewNop())
		if err != nil {
			t.Fatalf("agent: %v", err)
		}
		roster = append(roster, a)
	}
	sim, err := world.New("a rooftop garden", roster, 2, zap.NewNop(), world.WithID("run-7"))
	if err != nil {
		t.Fatalf("sim: %v", err)
	}
	return sim
}

func TestFromSimulation(t *testing.T) {
	sim := newSim(t, "")
	if _, err := sim.Run(context.Background(), 2); err != nil {
		t.Fatalf("run: %v", err)
	}
	doc := FromSimulation(sim)
	if doc.ID != "run-7" || doc.Rounds != 2 || doc.MemoryWindow != 2 {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Personas) != 2 || doc.Personas[1].Name != "B" {
		t.Errorf("personas = %+v", doc.Personas)
	}
	if len(doc.History) != 2 || len(doc.History[1].Turns) != 2 || doc.History[1].Turns[0].Speech != "speak by A" {
		t.Errorf("history = %+v", doc.History)
	}
	if len(doc.SharedMemory) != 8 {
		t.Errorf("shared memory has %d keys", len(doc.SharedMemory))
	}
	if !strings.Contains(doc.Transcript, "a rooftop garden") || doc.HaltReason != "" {
		t.Errorf("transcript/halt: %q %q", doc.Transcript, doc.HaltReason)
	}
}

func TestFromHaltedSimulation(t *testing.T) {
	sim := newSim(t, agent.CapabilitySpeak)
	if _, err := sim.Run(context.Background(), 1); err == nil {
		t.Fatal("expected failure")
	}
	doc := FromSimulation(sim)
	if doc.HaltReason == "" || doc.Rounds != 0 || len(doc.History) != 1 || !doc.History[0].Aborted {
		t.Errorf("doc = %+v", doc)
	}
}

func TestRunDocBSON(t *testing.T) {
	raw, err := bson.Marshal(RunDoc{ID: "run-1", Scene: "s", Rounds: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["_id"] != "run-1" || fmt.Sprint(m["rounds"]) != "3" {
		t.Errorf("document = %v", m)
	}
	if _, ok := m["halt_reason"]; ok {
		t.Error("empty halt_reason was stored")
	}
}
