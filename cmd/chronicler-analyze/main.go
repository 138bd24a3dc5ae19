// Command chronicler-analyze runs the suggestion analysis engine over a
// campaign codex. By default it performs a single full analysis run and
// prints a summary; with -schedule it stays resident and re-runs analysis
// when the campaign warrants it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/chronicler/internal/config"
	"github.com/scrypster/chronicler/internal/engine"
	"github.com/scrypster/chronicler/internal/llm"
	"github.com/scrypster/chronicler/internal/storage"
	"github.com/scrypster/chronicler/internal/storage/postgres"
	"github.com/scrypster/chronicler/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default: config/chronicler.yaml)")
	entityID := flag.String("entity", "", "Analyze a single entity instead of the full campaign")
	schedule := flag.Bool("schedule", false, "Run the periodic scheduler instead of a one-shot analysis")
	noAI := flag.Bool("no-ai", false, "Disable the generation-backed analysis passes")
	flag.Parse()

	if *configPath == "" {
		defaultPath := "config/chronicler.yaml"
		if _, err := os.Stat(defaultPath); err == nil {
			*configPath = defaultPath
			log.Printf("Using config: %s", defaultPath)
		}
	}

	cfg, err := config.LoadConfigFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *noAI {
		cfg.Analysis.EnableAIAnalysis = false
	}

	entities, suggestions, err := openStores(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer entities.Close()
	defer suggestions.Close()

	var generator llm.TextGenerator
	if cfg.Analysis.EnableAIAnalysis && cfg.LLM.Provider != "none" {
		generator, err = newGenerator(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize text generator: %v", err)
		}
	}

	orchestrator := engine.NewOrchestrator(entities, suggestions, generator, engine.AnalysisConfig{
		MaxSuggestionsPerType: cfg.Analysis.MaxSuggestionsPerType,
		MinRelevanceScore:     cfg.Analysis.MinRelevanceScore,
		EnableAIAnalysis:      cfg.Analysis.EnableAIAnalysis,
		RateLimit:             cfg.Analysis.RateLimit(),
		ExpirationDays:        cfg.Analysis.ExpirationDays,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case *schedule:
		runScheduler(ctx, orchestrator, cfg)
	case *entityID != "":
		result, err := orchestrator.AnalyzeEntity(ctx, *entityID, nil)
		if err != nil {
			log.Fatalf("Entity analysis failed: %v", err)
		}
		printResult(result)
	default:
		result, err := orchestrator.RunFullAnalysis(ctx, nil)
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
		printResult(result)
	}
}

// openStores builds the entity and suggestion stores for the configured
// storage engine.
func openStores(cfg *config.Config) (storage.EntityStore, storage.SuggestionStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		db, err := postgres.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewEntityStore(db), postgres.NewSuggestionStore(db), nil
	default:
		db, err := sqlite.Open(cfg.Storage.DataPath + "/chronicler.db")
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewEntityStore(db), sqlite.NewSuggestionStore(db), nil
	}
}

func newGenerator(cfg *config.Config) (llm.TextGenerator, error) {
	gc := llm.GeneratorConfig{Provider: cfg.LLM.Provider}
	switch cfg.LLM.Provider {
	case "openai":
		gc.APIKey = cfg.LLM.OpenAIAPIKey
		gc.Model = cfg.LLM.OpenAIModel
	default:
		gc.BaseURL = cfg.LLM.OllamaURL
		gc.Model = cfg.LLM.OllamaModel
	}
	return llm.NewTextGenerator(gc)
}

// runScheduler runs the periodic scheduler until interrupted.
func runScheduler(ctx context.Context, orchestrator *engine.Orchestrator, cfg *config.Config) {
	scheduler := engine.NewScheduler(orchestrator, cfg.Scheduler.SchedulerInterval())
	go func() {
		if err := scheduler.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Scheduler exited: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	if err := scheduler.Stop(); err != nil {
		log.Printf("Error stopping scheduler: %v", err)
	}
}

func printResult(result *engine.FullAnalysisResult) {
	for _, res := range result.Results {
		fmt.Printf("%-14s %3d suggestions  %5dms  %d API calls\n",
			res.Type, len(res.Suggestions), res.AnalysisTimeMs, res.APICalls)
		for _, s := range res.Suggestions {
			fmt.Printf("  [%3d] %s\n", s.RelevanceScore, s.Title)
		}
	}
	for _, e := range result.Errors {
		fmt.Printf("analyzer error: %s\n", e)
	}
	fmt.Printf("total: %d suggestions, %d API calls, %dms\n",
		result.TotalSuggestions, result.TotalAPICalls, result.TotalTimeMs)
}
