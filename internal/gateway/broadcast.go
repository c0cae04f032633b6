package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/tiny-world/internal/agent"
	"go.uber.org/zap"
)

const maxHistory = 200

// Broadcaster posts a digest of every completed round through the gateway.
type Broadcaster struct {
	gateway *Gateway
	scenes  map[string]string // runID -> scene
	history []Post
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster backed by the given gateway.
func NewBroadcaster(gw *Gateway, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		gateway: gw,
		scenes:  make(map[string]string),
		logger:  logger,
	}
}

// Track names the scene shown in a run's digests.
func (b *Broadcaster) Track(runID, scene string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scenes[runID] = scene
}

// TurnCompleted is a no-op; digests are posted per round.
func (b *Broadcaster) TurnCompleted(context.Context, string, agent.TurnResult) error {
	return nil
}

// RoundCompleted posts the round digest.
func (b *Broadcaster) RoundCompleted(ctx context.Context, runID string, rec agent.RoundRecord) error {
	b.mu.Lock()
	scene := b.scenes[runID]
	b.mu.Unlock()

	p := Digest(runID, scene, rec)
	b.logger.Info("sending round digest",
		zap.String("run", runID),
		zap.Int("round", rec.Round),
		zap.Strings("targets", b.gateway.Adapters()))

	if err := b.gateway.Broadcast(ctx, p); err != nil {
		return err
	}

	b.mu.Lock()
	b.history = append(b.history, *p)
	if len(b.history) > maxHistory {
		b.history = b.history[len(b.history)-maxHistory:]
	}
	b.mu.Unlock()
	return nil
}

// History returns the digests sent so far, oldest first.
func (b *Broadcaster) History() []Post {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Post(nil), b.history...)
}

// Digest renders a round as a post.
func Digest(runID, scene string, rec agent.RoundRecord) *Post {
	title := fmt.Sprintf("Round %d", rec.Round)
	if scene != "" {
		title += ": " + scene
	}

	var sb strings.Builder
	for _, r := range rec.Results {
		fmt.Fprintf(&sb, "%s says: %s\n", r.Agent, r.Speech)
		fmt.Fprintf(&sb, "%s does: %s\n", r.Agent, r.Action)
	}
	if rec.Aborted {
		sb.WriteString("(round aborted)\n")
	}
	return &Post{
		ID:       uuid.New().String(),
		RunID:    runID,
		Round:    rec.Round,
		Title:    title,
		Content:  strings.TrimRight(sb.String(), "\n"),
		Username: "Tiny World",
		SentAt:   time.Now().UTC(),
	}
}
