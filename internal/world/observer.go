package world

import (
	"context"

	"github.com/nidhogg/tiny-world/internal/agent"
)

// Observer receives committed state. Hooks run synchronously on the
// goroutine driving Run, after the turn or round is merged.
type Observer interface {
	TurnCompleted(ctx context.Context, runID string, res agent.TurnResult) error
	RoundCompleted(ctx context.Context, runID string, rec agent.RoundRecord) error
}

// ObserverFuncs adapts optional functions to the Observer interface.
type ObserverFuncs struct {
	OnTurn  func(ctx context.Context, runID string, res agent.TurnResult) error
	OnRound func(ctx context.Context, runID string, rec agent.RoundRecord) error
}

func (o ObserverFuncs) TurnCompleted(ctx context.Context, runID string, res agent.TurnResult) error {
	if o.OnTurn == nil {
		return nil
	}
	return o.OnTurn(ctx, runID, res)
}

func (o ObserverFuncs) RoundCompleted(ctx context.Context, runID string, rec agent.RoundRecord) error {
	if o.OnRound == nil {
		return nil
	}
	return o.OnRound(ctx, runID, rec)
}
