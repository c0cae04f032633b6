package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/api"
	"github.com/nidhogg/tiny-world/internal/archive"
	"github.com/nidhogg/tiny-world/internal/bus"
	"github.com/nidhogg/tiny-world/internal/config"
	"github.com/nidhogg/tiny-world/internal/embedding"
	"github.com/nidhogg/tiny-world/internal/gateway"
	"github.com/nidhogg/tiny-world/internal/memory"
	"github.com/nidhogg/tiny-world/internal/metrics"
	"github.com/nidhogg/tiny-world/internal/persona"
	"github.com/nidhogg/tiny-world/internal/recall"
	pgstore "github.com/nidhogg/tiny-world/internal/store"
	"github.com/nidhogg/tiny-world/internal/vectorstore"
	"github.com/nidhogg/tiny-world/internal/world"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/tinyworld.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Starting Tiny World...", zap.String("config", cfgPath))

	ctx := context.Background()

	// Providers and generator
	router, err := cfg.BuildRouter(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialize providers", zap.Error(err))
	}
	m := metrics.New()
	gen := m.Instrument(agent.NewRouterGenerator(router, cfg.Generation.Model))

	registry := persona.NewRegistry()
	defaultScene := cfg.Simulation.Scene
	if cfg.Simulation.PersonasFile != "" {
		file, err := persona.LoadFile(cfg.Simulation.PersonasFile, registry)
		if err != nil {
			logger.Fatal("failed to load personas", zap.String("path", cfg.Simulation.PersonasFile), zap.Error(err))
		}
		if defaultScene == "" {
			defaultScene = file.Scene
		}
		logger.Info("Loaded personas", zap.Int("count", len(file.Personas)), zap.String("scene", file.Scene))
	}

	var (
		sinks    []world.Observer
		hooks    []api.Hook
		handOpts = []api.Option{api.WithMetrics(m), api.WithCORSOrigins(cfg.Server.CORSOrigins)}
		closers  []func()
	)

	// PostgreSQL
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, cfg.Database.Postgres.Migrations); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			defs, lErr := ps.ListDefinitions(ctx)
			if lErr != nil {
				logger.Warn("failed to load persona definitions", zap.Error(lErr))
			}
			for _, d := range defs {
				registry.Record(d)
			}
			sinks = append(sinks, ps)
			hooks = append(hooks, api.HookFuncs{OnCreate: func(ctx context.Context, sim *world.Simulation) error {
				return ps.CreateRun(ctx, pgstore.RunRow{
					ID:           sim.ID(),
					Scene:        sim.Scene(),
					MemoryWindow: sim.MemoryWindow(),
					Agents:       sim.AgentNames(),
				})
			}})
			handOpts = append(handOpts, api.WithDefinitionStore(ps), api.WithRunStore(ps))
			closers = append(closers, ps.Close)
		}
	}

	// Neo4j contribution graph
	if cfg.Database.Neo4j.URI != "" {
		ms, nErr := memory.NewStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if nErr == nil {
			nErr = ms.Ping(ctx)
		}
		if nErr != nil {
			logger.Warn("Neo4j unavailable, running without memory graph", zap.Error(nErr))
		} else {
			sinks = append(sinks, ms)
			hooks = append(hooks, api.HookFuncs{OnCreate: func(ctx context.Context, sim *world.Simulation) error {
				return ms.EnsureRun(ctx, sim.ID(), sim.Scene(), sim.AgentNames())
			}})
			handOpts = append(handOpts, api.WithMemoryGraph(ms))
			closers = append(closers, func() { ms.Close(context.Background()) })
		}
	}

	// Embedding + Qdrant recall
	if cfg.Database.Qdrant.Host != "" && cfg.Embedding.Endpoint != "" {
		if ix, closeFn, rErr := newIndexer(ctx, cfg, logger); rErr != nil {
			logger.Warn("recall unavailable", zap.Error(rErr))
		} else {
			sinks = append(sinks, ix)
			handOpts = append(handOpts, api.WithSearch(ix))
			closers = append(closers, closeFn)
		}
	}

	// Redis event stream
	if cfg.Database.Redis.URL != "" {
		eb, bErr := bus.New(ctx, cfg.Database.Redis.URL, logger)
		if bErr != nil {
			logger.Warn("Redis unavailable, running without event stream", zap.Error(bErr))
		} else {
			sinks = append(sinks, eb)
			handOpts = append(handOpts, api.WithEventLog(eb))
			closers = append(closers, func() { eb.Close() })
		}
	}

	// MongoDB archive
	if cfg.Database.Mongo.URI != "" {
		arc, aErr := archive.New(ctx, cfg.Database.Mongo.URI, cfg.Database.Mongo.Database, logger)
		if aErr == nil {
			aErr = arc.EnsureIndexes(ctx)
		}
		if aErr != nil {
			logger.Warn("MongoDB unavailable, running without archive", zap.Error(aErr))
		} else {
			hooks = append(hooks, api.HookFuncs{OnFinish: func(ctx context.Context, sim *world.Simulation) error {
				return arc.SaveRun(ctx, archive.FromSimulation(sim))
			}})
			closers = append(closers, func() { arc.Close(context.Background()) })
		}
	}

	// Gateway
	gw := gateway.NewGateway(logger)
	restAdapter := gateway.NewRESTAdapter(0, logger)
	gw.Register(restAdapter)
	if s := cfg.Gateway.Slack; s.Enabled && s.BotToken != "" {
		gw.Register(gateway.NewSlackAdapter(s.BotToken, s.Channel, logger))
	}
	if d := cfg.Gateway.Discord; d.Enabled && d.BotToken != "" {
		gw.Register(gateway.NewDiscordAdapter(d.BotToken, d.Channel, logger))
	}
	if err := gw.ConnectAll(ctx); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}
	broadcaster := gateway.NewBroadcaster(gw, logger)
	hooks = append(hooks, api.HookFuncs{OnCreate: func(_ context.Context, sim *world.Simulation) error {
		broadcaster.Track(sim.ID(), sim.Scene())
		return nil
	}})
	handOpts = append(handOpts, api.WithGateway(gw, restAdapter))
	sinks = append(sinks, broadcaster, m)

	mgr := api.NewManager(gen, registry, logger,
		api.WithDefaults(defaultScene, cfg.Simulation.MemoryWindow),
		api.WithParams(cfg.Params()),
		api.WithRoundDelay(cfg.Simulation.RoundDelay.Std()),
		api.WithSinks(sinks...),
		api.WithHooks(hooks...),
	)
	handler := api.NewHandler(mgr, logger, handOpts...)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Tiny World listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Tiny World...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	gw.Close()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func newIndexer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*recall.Indexer, func(), error) {
	emb, err := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, nil, err
	}
	qc, err := vectorstore.NewClient(vectorstore.QdrantConfig{
		Host: cfg.Database.Qdrant.Host,
		Port: cfg.Database.Qdrant.Port,
	})
	if err != nil {
		return nil, nil, err
	}
	ix := recall.NewIndexer(emb, qc, cfg.Database.Qdrant.Collection, logger)
	if err := ix.Init(ctx); err != nil {
		qc.Close()
		return nil, nil, err
	}
	return ix, func() { qc.Close() }, nil
}

func newLogger(level string) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zc.Level = lvl
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
