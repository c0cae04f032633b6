package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Gateway fans posts out to every registered adapter.
type Gateway struct {
	adapters map[string]Adapter
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewGateway creates a gateway manager.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// Register adds an adapter, replacing any adapter of the same platform.
func (g *Gateway) Register(adapter Adapter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.adapters[adapter.Platform()] = adapter
	g.logger.Info("registered gateway adapter", zap.String("platform", adapter.Platform()))
}

// ConnectAll connects every adapter. Adapters that fail are removed and
// their errors joined.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for platform, adapter := range g.adapters {
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			errs = append(errs, fmt.Errorf("connect %s: %w", platform, err))
			delete(g.adapters, platform)
			continue
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	return errors.Join(errs...)
}

// Broadcast posts to every adapter.
func (g *Gateway) Broadcast(ctx context.Context, p *Post) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for platform, adapter := range g.adapters {
		if err := adapter.Post(ctx, p); err != nil {
			g.logger.Warn("broadcast failed",
				zap.String("platform", platform), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", platform, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("broadcast failed on %d platform(s): %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Statuses reports every adapter that tracks its connection.
func (g *Gateway) Statuses() []AdapterStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []AdapterStatus
	for _, a := range g.adapters {
		if sr, ok := a.(StatusReporter); ok {
			out = append(out, sr.Status())
		} else {
			out = append(out, AdapterStatus{Platform: a.Platform(), Connected: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

// Close shuts down all adapters.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Adapters returns the registered platform names in order.
func (g *Gateway) Adapters() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.adapters))
	for p := range g.adapters {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}
