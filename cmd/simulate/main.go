package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/nidhogg/tiny-world/internal/config"
	"github.com/nidhogg/tiny-world/internal/persona"
	"github.com/nidhogg/tiny-world/internal/transcript"
	"github.com/nidhogg/tiny-world/internal/world"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", envOr("CONFIG_PATH", "configs/tinyworld.json"), "config file")
	personasPath := flag.String("personas", "", "persona roster file (JSON or YAML); defaults to simulation.personas_file")
	scene := flag.String("scene", "", "scene description; defaults to simulation.scene")
	rounds := flag.Int("rounds", 3, "number of rounds to run")
	window := flag.Int("window", -1, "memory window; defaults to simulation.memory_window")
	out := flag.String("out", "transcript.txt", "transcript output file (empty to skip)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(*cfgPath, *personasPath, *scene, *rounds, *window, *out, *verbose); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func run(cfgPath, personasPath, scene string, rounds, window int, out string, verbose bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if personasPath == "" {
		personasPath = cfg.Simulation.PersonasFile
	}
	if personasPath == "" {
		return fmt.Errorf("no persona file: pass -personas or set simulation.personas_file")
	}
	if window < 0 {
		window = cfg.Simulation.MemoryWindow
	}

	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, err := cfg.BuildRouter(ctx, logger)
	if err != nil {
		return err
	}
	gen := agent.NewRouterGenerator(router, cfg.Generation.Model)

	file, err := persona.LoadFile(personasPath, nil)
	if err != nil {
		return err
	}
	personas := file.Personas
	if scene == "" {
		scene = file.Scene
	}
	if scene == "" {
		scene = cfg.Simulation.Scene
	}
	roster := make([]*agent.Agent, 0, len(personas))
	for _, p := range personas {
		a, err := agent.New(p, gen, logger)
		if err != nil {
			return err
		}
		for c, params := range cfg.Params() {
			a.SetParams(c, params)
		}
		roster = append(roster, a)
	}

	printer := world.ObserverFuncs{
		OnTurn: func(_ context.Context, _ string, r agent.TurnResult) error {
			printTurn(r)
			return nil
		},
		OnRound: func(_ context.Context, _ string, rec agent.RoundRecord) error {
			if rec.Aborted {
				fmt.Printf("\033[31m(round %d aborted)\033[0m\n", rec.Round)
			}
			return nil
		},
	}
	sim, err := world.New(scene, roster, window, logger,
		world.WithRoundDelay(cfg.Simulation.RoundDelay.Std()),
		world.WithObservers(printer),
	)
	if err != nil {
		return err
	}

	fmt.Println("Tiny World")
	fmt.Printf("Scene: %s | Agents: %v | Rounds: %d\n", scene, sim.AgentNames(), rounds)
	fmt.Println("---")

	_, runErr := sim.Run(ctx, rounds)

	if out != "" {
		if err := transcript.WriteFile(out, sim); err != nil {
			return err
		}
		fmt.Printf("\nTranscript written to %s (%d rounds)\n", out, sim.Rounds())
	}
	return runErr
}

func printTurn(r agent.TurnResult) {
	fmt.Printf("\n\033[36m[%s] round %d\033[0m\n", r.Agent, r.Round)
	fmt.Printf("  \033[90mthinks:\033[0m %s\n", r.Thought)
	fmt.Printf("  \033[32msays:\033[0m   %s\n", r.Speech)
	fmt.Printf("  \033[33mdoes:\033[0m   %s\n", r.Action)
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31mError: "+format+"\033[0m\n", args...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
