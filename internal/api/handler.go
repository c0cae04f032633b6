package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/gateway"
	"github.com/nidhogg/tiny-world/internal/metrics"
	"github.com/nidhogg/tiny-world/internal/persona"
	"github.com/nidhogg/tiny-world/internal/recall"
	"github.com/nidhogg/tiny-world/internal/transcript"
	"github.com/nidhogg/tiny-world/internal/world"
	"go.uber.org/zap"
)

// Searcher recalls transcript pieces by meaning.
type Searcher interface {
	Search(ctx context.Context, runID, query string, topK int) ([]recall.Hit, error)
}

// DefinitionStore persists persona definitions.
type DefinitionStore interface {
	SaveDefinition(ctx context.Context, d persona.Definition) error
	ClearDefinitions(ctx context.Context) error
}

// Option configures optional handler dependencies.
type Option func(*Handler)

// WithSearch enables the transcript search route.
func WithSearch(s Searcher) Option { return func(h *Handler) { h.search = s } }

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(h *Handler) { h.metrics = m } }

// WithGateway exposes gateway status and the REST digest feed.
func WithGateway(gw *gateway.Gateway, rest *gateway.RESTAdapter) Option {
	return func(h *Handler) {
		h.gw = gw
		h.restGW = rest
	}
}

// WithDefinitionStore persists recorded persona definitions.
func WithDefinitionStore(s DefinitionStore) Option { return func(h *Handler) { h.defs = s } }

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option { return func(h *Handler) { h.origins = origins } }

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	mgr     *Manager
	search  Searcher
	metrics *metrics.Metrics
	gw      *gateway.Gateway
	restGW  *gateway.RESTAdapter
	defs    DefinitionStore
	runs    RunStore
	events  EventLog
	graph   MemoryGraph
	origins []string
	logger  *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(mgr *Manager, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{mgr: mgr, origins: []string{"*"}, logger: logger}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	if h.metrics != nil {
		r.Use(h.countRequests)
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/personas/definitions", h.listDefinitions)
		r.Post("/personas/definitions", h.recordDefinition)
		r.Delete("/personas/definitions", h.clearDefinitions)
		r.Post("/personas/generate", h.generatePersona)

		r.Post("/simulations", h.createSimulation)
		r.Get("/simulations", h.listSimulations)
		r.Get("/simulations/{id}", h.getSimulation)
		r.Post("/simulations/{id}/run", h.runSimulation)
		r.Get("/simulations/{id}/history", h.getHistory)
		r.Get("/simulations/{id}/memory", h.getMemory)
		r.Get("/simulations/{id}/transcript", h.getTranscript)
		r.Get("/simulations/{id}/search", h.searchSimulation)
		h.recordRoutes(r)

		if h.gw != nil {
			r.Get("/gateway/status", h.gatewayStatus)
		}
		if h.restGW != nil {
			r.Mount("/gateway/rest", h.restGW.Routes())
		}
	})

	return r
}

func (h *Handler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		// Raw paths would give every unknown URL its own series.
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.RecordRequest(route, status)
	})
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"simulations": h.mgr.Len(),
	})
}

func (h *Handler) listDefinitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mgr.Registry().Definitions())
}

func (h *Handler) recordDefinition(w http.ResponseWriter, r *http.Request) {
	var p agent.Persona
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d := h.mgr.Registry().Record(persona.Definition{Source: persona.SourceLiteral, Persona: p})
	h.persist(r.Context(), d)
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) clearDefinitions(w http.ResponseWriter, r *http.Request) {
	h.mgr.Registry().Clear()
	if h.defs != nil {
		if err := h.defs.ClearDefinitions(r.Context()); err != nil {
			h.logger.Warn("clear stored definitions", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type generateRequest struct {
	Scene       string `json:"scene"`
	Instruction string `json:"instruction"`
}

func (h *Handler) generatePersona(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Instruction == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "instruction is required"})
		return
	}
	scene := req.Scene
	if scene == "" {
		scene = h.mgr.DefaultScene()
	}

	f := persona.NewFactory(scene, h.mgr.Generator(), h.mgr.Registry(), h.logger)
	d, err := f.Generate(r.Context(), req.Instruction)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, err)
		return
	}
	h.persist(r.Context(), d)
	writeJSON(w, http.StatusCreated, d.Persona)
}

func (h *Handler) persist(ctx context.Context, d persona.Definition) {
	if h.defs == nil {
		return
	}
	if err := h.defs.SaveDefinition(ctx, d); err != nil {
		h.logger.Warn("save definition", zap.String("id", d.ID), zap.Error(err))
	}
}

// simulationView is the JSON summary of a simulation.
type simulationView struct {
	ID           string    `json:"id"`
	Scene        string    `json:"scene"`
	Agents       []string  `json:"agents"`
	MemoryWindow int       `json:"memory_window"`
	Rounds       int       `json:"rounds"`
	Halted       bool      `json:"halted"`
	HaltReason   string    `json:"halt_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func viewOf(sim *world.Simulation) simulationView {
	v := simulationView{
		ID:           sim.ID(),
		Scene:        sim.Scene(),
		Agents:       sim.AgentNames(),
		MemoryWindow: sim.MemoryWindow(),
		Rounds:       sim.Rounds(),
		CreatedAt:    sim.CreatedAt(),
	}
	if err := sim.Halted(); err != nil {
		v.Halted = true
		v.HaltReason = err.Error()
	}
	return v
}

func (h *Handler) createSimulation(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sim, err := h.mgr.Create(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.updateGauge()
	writeJSON(w, http.StatusCreated, viewOf(sim))
}

func (h *Handler) updateGauge() {
	if h.metrics != nil {
		h.metrics.SetSimulations(h.mgr.Len())
	}
}

func (h *Handler) listSimulations(w http.ResponseWriter, r *http.Request) {
	sims := h.mgr.List()
	views := make([]simulationView, 0, len(sims))
	for _, s := range sims {
		views = append(views, viewOf(s))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*world.Simulation, bool) {
	sim, ok := h.mgr.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrNotFound)
	}
	return sim, ok
}

func (h *Handler) getSimulation(w http.ResponseWriter, r *http.Request) {
	if sim, ok := h.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, viewOf(sim))
	}
}

type runRequest struct {
	Rounds int `json:"rounds"`
}

type runResponse struct {
	Results []agent.TurnResult `json:"results"`
	Rounds  int                `json:"rounds"`
	Error   string             `json:"error,omitempty"`
}

func (h *Handler) runSimulation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req := runRequest{Rounds: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	// A client disconnect must not abort a round half way.
	ctx := context.WithoutCancel(r.Context())
	results, err := h.mgr.Run(ctx, id, req.Rounds)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}

	resp := runResponse{Results: results}
	if sim, ok := h.mgr.Get(id); ok {
		resp.Rounds = sim.Rounds()
	}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	if sim, ok := h.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, sim.History())
	}
}

func (h *Handler) getMemory(w http.ResponseWriter, r *http.Request) {
	if sim, ok := h.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, sim.SharedMemory())
	}
}

func (h *Handler) getTranscript(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := transcript.Render(w, sim); err != nil {
		h.logger.Warn("render transcript", zap.String("run", sim.ID()), zap.Error(err))
	}
}

func (h *Handler) searchSimulation(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "recall not configured"})
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	hits, err := h.search.Search(r.Context(), sim.ID(), q, queryLimit(r, 5))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Statuses())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		cfgErr   *agent.ConfigurationError
		dupErr   *world.DuplicateAgentNameError
		genErr   *agent.GenerationFailure
		parseErr *persona.ParseError
	)
	// A halted run wraps its original cause; the halt decides the status.
	switch {
	case errors.Is(err, world.ErrHalted):
		return http.StatusConflict
	case errors.As(err, &cfgErr), errors.As(err, &dupErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &genErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
