package recall

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/embedding"
	"github.com/nidhogg/tiny-world/internal/vectorstore"
	"go.uber.org/zap"
)

// Index is the vector store used by the indexer.
type Index interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection string, points []vectorstore.Point) error
	Search(ctx context.Context, collection string, vector []float32, topK uint64, match map[string]string) ([]*vectorstore.SearchResult, error)
}

// pointNamespace derives stable point IDs so re-indexing a turn overwrites it.
var pointNamespace = uuid.MustParse("5b0f5a4e-3f55-4d0e-9d38-7a1c1b0f2c11")

// Hit is one recalled piece of a transcript.
type Hit struct {
	RunID   string  `json:"run_id"`
	Agent   string  `json:"agent"`
	Round   int     `json:"round"`
	Kind    string  `json:"kind"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// Indexer embeds committed turns and searches them by meaning.
type Indexer struct {
	embedder   embedding.Provider
	index      Index
	collection string
	logger     *zap.Logger
}

// NewIndexer creates an indexer writing to collection.
func NewIndexer(embedder embedding.Provider, index Index, collection string, logger *zap.Logger) *Indexer {
	return &Indexer{embedder: embedder, index: index, collection: collection, logger: logger}
}

// Init ensures the collection exists.
func (ix *Indexer) Init(ctx context.Context) error {
	dim := uint64(ix.embedder.Dimension())
	if dim == 0 {
		dim = 1024
	}
	if err := ix.index.EnsureCollection(ctx, ix.collection, dim); err != nil {
		return fmt.Errorf("init collection %s: %w", ix.collection, err)
	}
	return nil
}

// TurnCompleted embeds the thought, speech and action of a turn.
func (ix *Indexer) TurnCompleted(ctx context.Context, runID string, res agent.TurnResult) error {
	parts := []struct{ kind, text string }{
		{string(agent.CapabilityThink), res.Thought},
		{string(agent.CapabilitySpeak), res.Speech},
		{string(agent.CapabilityAction), res.Action},
	}
	texts := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = res.Agent + ": " + p.text
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed turn %s/%d: %w", res.Agent, res.Round, err)
	}
	if len(vectors) != len(parts) {
		return fmt.Errorf("embed turn %s/%d: got %d vectors", res.Agent, res.Round, len(vectors))
	}

	indexedAt := time.Now().UTC().Format(time.RFC3339)
	points := make([]vectorstore.Point, len(parts))
	for i, p := range parts {
		points[i] = vectorstore.Point{
			ID:     PointID(runID, res.Agent, res.Round, p.kind),
			Vector: vectors[i],
			Payload: map[string]string{
				"run_id":     runID,
				"agent":      res.Agent,
				"round":      strconv.Itoa(res.Round),
				"kind":       p.kind,
				"content":    p.text,
				"indexed_at": indexedAt,
			},
		}
	}
	return ix.index.Upsert(ctx, ix.collection, points)
}

// RoundCompleted is a no-op; turns are indexed as they commit.
func (ix *Indexer) RoundCompleted(context.Context, string, agent.RoundRecord) error {
	return nil
}

// Search embeds query and returns the topK closest turn fragments of a run.
func (ix *Indexer) Search(ctx context.Context, runID, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	found, err := ix.index.Search(ctx, ix.collection, vectors[0], uint64(topK), map[string]string{"run_id": runID})
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(found))
	for _, r := range found {
		round, _ := strconv.Atoi(r.Payload["round"])
		hits = append(hits, Hit{
			RunID:   r.Payload["run_id"],
			Agent:   r.Payload["agent"],
			Round:   round,
			Kind:    r.Payload["kind"],
			Content: r.Payload["content"],
			Score:   r.Score,
		})
	}
	ix.logger.Debug("recall search", zap.String("run", runID), zap.Int("hits", len(hits)))
	return hits, nil
}

// PointID is the stable vector ID of one fragment of a turn.
func PointID(runID, agentName string, round int, kind string) string {
	key := fmt.Sprintf("%s/%s/%d/%s", runID, agentName, round, kind)
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}
