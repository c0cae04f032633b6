package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/transcript"
	"github.com/nidhogg/tiny-world/internal/world"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const collectionRuns = "runs"

// ErrNotFound is returned when no archived run has the requested ID.
var ErrNotFound = errors.New("archived run not found")

// TurnDoc is one archived turn.
type TurnDoc struct {
	Agent   string `bson:"agent" json:"agent"`
	Thought string `bson:"thought" json:"thought"`
	Speech  string `bson:"speech" json:"speech"`
	Action  string `bson:"action" json:"action"`
}

// RoundDoc is one archived round.
type RoundDoc struct {
	Round   int       `bson:"round" json:"round"`
	Aborted bool      `bson:"aborted,omitempty" json:"aborted,omitempty"`
	Turns   []TurnDoc `bson:"turns" json:"turns"`
}

// RunDoc is the full archived state of a simulation.
type RunDoc struct {
	ID           string            `bson:"_id" json:"id"`
	Scene        string            `bson:"scene" json:"scene"`
	MemoryWindow int               `bson:"memory_window" json:"memory_window"`
	Personas     []agent.Persona   `bson:"personas" json:"personas"`
	Rounds       int               `bson:"rounds" json:"rounds"`
	HaltReason   string            `bson:"halt_reason,omitempty" json:"halt_reason,omitempty"`
	History      []RoundDoc        `bson:"history" json:"history"`
	SharedMemory map[string]string `bson:"shared_memory" json:"shared_memory"`
	Transcript   string            `bson:"transcript" json:"transcript"`
	CreatedAt    time.Time         `bson:"created_at" json:"created_at"`
	ArchivedAt   time.Time         `bson:"archived_at" json:"archived_at"`
}

// FromSimulation captures the committed state of sim.
func FromSimulation(sim *world.Simulation) RunDoc {
	doc := RunDoc{
		ID:           sim.ID(),
		Scene:        sim.Scene(),
		MemoryWindow: sim.MemoryWindow(),
		Rounds:       sim.Rounds(),
		SharedMemory: sim.SharedMemory(),
		Transcript:   transcript.String(sim),
		CreatedAt:    sim.CreatedAt().UTC(),
		ArchivedAt:   time.Now().UTC(),
	}
	if err := sim.Halted(); err != nil {
		doc.HaltReason = err.Error()
	}
	for _, a := range sim.Agents() {
		doc.Personas = append(doc.Personas, a.Persona())
	}
	for _, rec := range sim.History() {
		rd := RoundDoc{Round: rec.Round, Aborted: rec.Aborted}
		for _, r := range rec.Results {
			rd.Turns = append(rd.Turns, TurnDoc{Agent: r.Agent, Thought: r.Thought, Speech: r.Speech, Action: r.Action})
		}
		doc.History = append(doc.History, rd)
	}
	return doc
}

// Archive stores full run snapshots in MongoDB.
type Archive struct {
	client *mongo.Client
	runs   *mongo.Collection
	logger *zap.Logger
}

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, uri, database string, logger *zap.Logger) (*Archive, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("MongoDB connected", zap.String("database", database))
	return &Archive{
		client: client,
		runs:   client.Database(database).Collection(collectionRuns),
		logger: logger,
	}, nil
}

// EnsureIndexes creates the listing index.
func (a *Archive) EnsureIndexes(ctx context.Context) error {
	_, err := a.runs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "archived_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create archive index: %w", err)
	}
	return nil
}

// SaveRun replaces the archived snapshot of a run.
func (a *Archive) SaveRun(ctx context.Context, doc RunDoc) error {
	_, err := a.runs.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("archive run %s: %w", doc.ID, err)
	}
	a.logger.Info("run archived", zap.String("run", doc.ID), zap.Int("rounds", doc.Rounds))
	return nil
}

// GetRun loads an archived run.
func (a *Archive) GetRun(ctx context.Context, id string) (*RunDoc, error) {
	var doc RunDoc
	err := a.runs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get archived run %s: %w", id, err)
	}
	return &doc, nil
}

// ListRuns returns the most recently archived runs without their history.
func (a *Archive) ListRuns(ctx context.Context, limit int64) ([]RunDoc, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "archived_at", Value: -1}}).
		SetLimit(limit).
		SetProjection(bson.M{"history": 0, "transcript": 0, "shared_memory": 0})

	cursor, err := a.runs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list archived runs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []RunDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode archived runs: %w", err)
	}
	return docs, nil
}

// Close disconnects from MongoDB.
func (a *Archive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
