package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/bus"
	"github.com/nidhogg/tiny-world/internal/memory"
	"github.com/nidhogg/tiny-world/internal/store"
	"go.uber.org/zap"
)

// RunStore reads runs persisted in the relational store.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]store.RunRow, error)
	GetRun(ctx context.Context, id string) (*store.RunRow, error)
	ListTurns(ctx context.Context, runID string) ([]agent.TurnResult, error)
}

// EventLog replays and follows the event stream of a run.
type EventLog interface {
	Replay(ctx context.Context, runID string) ([]bus.Event, error)
	Subscribe(ctx context.Context, runID string) <-chan bus.Event
}

// MemoryGraph searches the shared-memory graph of a run.
type MemoryGraph interface {
	Search(ctx context.Context, runID, query string, limit int) ([]memory.Entry, error)
}

// WithRunStore serves persisted runs under /api/runs.
func WithRunStore(s RunStore) Option { return func(h *Handler) { h.runs = s } }

// WithEventLog serves run events under /api/simulations/{id}/events.
func WithEventLog(l EventLog) Option { return func(h *Handler) { h.events = l } }

// WithMemoryGraph serves keyword search over the memory graph.
func WithMemoryGraph(g MemoryGraph) Option { return func(h *Handler) { h.graph = g } }

func (h *Handler) recordRoutes(r chi.Router) {
	r.Get("/runs", h.listRuns)
	r.Get("/runs/{id}", h.getRun)
	r.Get("/simulations/{id}/events", h.getEvents)
	r.Get("/simulations/{id}/memory/search", h.searchMemory)
}

func unavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": what + " not configured"})
}

func queryLimit(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		unavailable(w, "run store")
		return
	}
	runs, err := h.runs.ListRuns(r.Context(), queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []store.RunRow{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type runDetail struct {
	store.RunRow
	Turns []agent.TurnResult `json:"turns"`
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		unavailable(w, "run store")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	turns, err := h.runs.ListTurns(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if turns == nil {
		turns = []agent.TurnResult{}
	}
	writeJSON(w, http.StatusOK, runDetail{RunRow: *run, Turns: turns})
}

// getEvents returns the recorded events of a run. With follow=true the
// response is NDJSON: the replay, then live events until the client leaves.
func (h *Handler) getEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		unavailable(w, "event log")
		return
	}
	id := chi.URLParam(r, "id")
	follow, _ := strconv.ParseBool(r.URL.Query().Get("follow"))

	// Subscribe before replaying so nothing published in between is lost.
	var live <-chan bus.Event
	if follow {
		live = h.events.Subscribe(r.Context(), id)
	}
	past, err := h.events.Replay(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if !follow {
		if past == nil {
			past = []bus.Event{}
		}
		writeJSON(w, http.StatusOK, past)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)

	seen := make(map[string]bool, len(past))
	for _, ev := range past {
		seen[ev.ID] = true
		if err := writeEvent(enc, flusher, ev); err != nil {
			return
		}
	}
	for ev := range live {
		if ev.ID != "" && seen[ev.ID] {
			continue
		}
		if err := writeEvent(enc, flusher, ev); err != nil {
			h.logger.Debug("event stream closed", zap.String("run", id), zap.Error(err))
			return
		}
	}
}

func writeEvent(enc *json.Encoder, flusher http.Flusher, ev bus.Event) error {
	if err := enc.Encode(ev); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (h *Handler) searchMemory(w http.ResponseWriter, r *http.Request) {
	if h.graph == nil {
		unavailable(w, "memory graph")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	entries, err := h.graph.Search(r.Context(), chi.URLParam(r, "id"), q, queryLimit(r, 10))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if entries == nil {
		entries = []memory.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
