package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/chronicler/internal/llm"
	"github.com/scrypster/chronicler/internal/storage"
	"github.com/scrypster/chronicler/pkg/types"
)

// growthRerunFactor is how much the entity count must grow since the last
// run before ShouldRunAnalysis asks for a fresh one.
const growthRerunFactor = 1.2

// Orchestrator coordinates the four analyzers over one shared context,
// deduplicates and filters their output, and persists the survivors.
type Orchestrator struct {
	entities    storage.EntityStore
	suggestions storage.SuggestionStore
	runMarkers  storage.RunMarkerStore
	generator   llm.TextGenerator
	defaults    AnalysisConfig

	// buildAnalyzers is replaceable in tests.
	buildAnalyzers func(cfg AnalysisConfig) []Analyzer

	now func() time.Time
}

// NewOrchestrator creates an orchestrator over the given stores. generator
// may be nil, which disables the AI passes. If the suggestion store also
// implements RunMarkerStore, run markers are recorded there; otherwise
// growth-based rescheduling falls back to "no marker".
func NewOrchestrator(entities storage.EntityStore, suggestions storage.SuggestionStore, generator llm.TextGenerator, defaults AnalysisConfig) *Orchestrator {
	o := &Orchestrator{
		entities:    entities,
		suggestions: suggestions,
		generator:   generator,
		defaults:    normalizeConfig(defaults),
		now:         time.Now,
	}

	if rm, ok := suggestions.(storage.RunMarkerStore); ok {
		o.runMarkers = rm
	}

	o.buildAnalyzers = func(cfg AnalysisConfig) []Analyzer {
		pacer := llm.NewPacer(cfg.RateLimit)
		return []Analyzer{
			NewInconsistencyAnalyzer(DefaultInconsistencyConfig()),
			NewEnhancementAnalyzer(),
			NewRelationshipAnalyzer(generator, pacer),
			NewPlotThreadAnalyzer(generator, pacer),
		}
	}
	return o
}

// Config merges the given overrides over the orchestrator's defaults.
func (o *Orchestrator) Config(overrides *ConfigOverrides) AnalysisConfig {
	return overrides.Apply(o.defaults)
}

// RunFullAnalysis loads all entities, builds the context once, runs every
// analyzer with error isolation, deduplicates and filters the combined
// pool, and persists the survivors.
func (o *Orchestrator) RunFullAnalysis(ctx context.Context, overrides *ConfigOverrides) (*FullAnalysisResult, error) {
	cfg := o.Config(overrides)
	start := o.now()

	entities, err := o.entities.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load entities: %w", err)
	}

	result := o.analyze(ctx, entityPointers(entities), cfg)

	kept := o.collectSuggestions(result, cfg)
	stamped := o.stampSuggestions(kept, cfg)
	result.TotalSuggestions = len(stamped)

	if len(stamped) > 0 {
		if err := o.suggestions.BulkAdd(ctx, stamped); err != nil {
			return nil, fmt.Errorf("orchestrator: persist suggestions: %w", err)
		}
	}

	if o.runMarkers != nil {
		if err := o.runMarkers.SetLastRun(ctx, o.now(), len(entities)); err != nil {
			log.Printf("orchestrator: record run marker: %v", err)
		}
	}

	result.TotalTimeMs = o.now().Sub(start).Milliseconds()
	return result, nil
}

// AnalyzeEntity runs the full pipeline and narrows the output to
// suggestions that concern the given entity. Nothing is persisted.
// Returns storage.ErrNotFound when the entity does not exist.
func (o *Orchestrator) AnalyzeEntity(ctx context.Context, id string, overrides *ConfigOverrides) (*FullAnalysisResult, error) {
	if _, err := o.entities.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("orchestrator: entity %s: %w", id, err)
	}

	cfg := o.Config(overrides)
	start := o.now()

	entities, err := o.entities.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load entities: %w", err)
	}

	result := o.analyze(ctx, entityPointers(entities), cfg)

	for i := range result.Results {
		var scoped []types.Suggestion
		for _, s := range result.Results[i].Suggestions {
			if containsID(s.AffectedEntityIDs, id) {
				scoped = append(scoped, s)
			}
		}
		result.Results[i].Suggestions = scoped
	}

	kept := o.collectSuggestions(result, cfg)
	stamped := o.stampSuggestions(kept, cfg)
	result.TotalSuggestions = len(stamped)
	result.TotalTimeMs = o.now().Sub(start).Milliseconds()
	return result, nil
}

// ShouldRunAnalysis decides whether a fresh run is worthwhile: when no run
// has happened yet, when no pending suggestions remain, or when the entity
// count has grown materially since the last run.
func (o *Orchestrator) ShouldRunAnalysis(ctx context.Context) (bool, error) {
	if _, err := o.suggestions.MarkExpired(ctx, o.now()); err != nil {
		return false, fmt.Errorf("orchestrator: expire suggestions: %w", err)
	}

	stats, err := o.suggestions.GetStats(ctx)
	if err != nil {
		return false, fmt.Errorf("orchestrator: suggestion stats: %w", err)
	}
	if stats.Total == 0 {
		return true, nil
	}
	if stats.ByStatus[types.StatusPending] == 0 {
		return true, nil
	}

	if o.runMarkers == nil {
		return false, nil
	}
	marker, err := o.runMarkers.GetLastRun(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("orchestrator: last run marker: %w", err)
	}

	count, err := o.entities.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("orchestrator: entity count: %w", err)
	}
	if marker.EntityCount > 0 && float64(count) >= float64(marker.EntityCount)*growthRerunFactor {
		return true, nil
	}
	return false, nil
}

// analyze builds the shared context and runs every analyzer with error
// isolation. A failing analyzer contributes an error string, not a failed
// run.
func (o *Orchestrator) analyze(ctx context.Context, entities []*types.Entity, cfg AnalysisConfig) *FullAnalysisResult {
	actx := BuildContext(entities)
	result := &FullAnalysisResult{Errors: []string{}}

	for _, analyzer := range o.buildAnalyzers(cfg) {
		res, err := runAnalyzer(ctx, analyzer, actx, cfg)
		if err != nil {
			log.Printf("orchestrator: %s analyzer failed: %v", analyzer.Type(), err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", analyzer.Type(), err))
			continue
		}
		result.Results = append(result.Results, *res)
		result.TotalAPICalls += res.APICalls
	}
	return result
}

// runAnalyzer invokes one analyzer and converts a panic into an error so a
// buggy analyzer cannot take down the run.
func runAnalyzer(ctx context.Context, a Analyzer, actx *Context, cfg AnalysisConfig) (res *AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Analyze(ctx, actx, cfg)
}

// collectSuggestions merges every analyzer's suggestions, deduplicates
// across analyzers, filters by minimum relevance and caps per type.
func (o *Orchestrator) collectSuggestions(result *FullAnalysisResult, cfg AnalysisConfig) []types.Suggestion {
	var pool []types.Suggestion
	for _, res := range result.Results {
		pool = append(pool, res.Suggestions...)
	}

	deduped := DedupSuggestions(pool)

	var kept []types.Suggestion
	for _, s := range deduped {
		if s.RelevanceScore >= cfg.MinRelevanceScore {
			kept = append(kept, s)
		}
	}

	// Cap per type, preferring higher relevance, then title for
	// determinism.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].RelevanceScore != kept[j].RelevanceScore {
			return kept[i].RelevanceScore > kept[j].RelevanceScore
		}
		return kept[i].Title < kept[j].Title
	})

	perType := make(map[types.SuggestionType]int)
	var capped []types.Suggestion
	for _, s := range kept {
		if perType[s.Type] >= cfg.MaxSuggestionsPerType {
			continue
		}
		perType[s.Type]++
		capped = append(capped, s)
	}
	return capped
}

// DedupSuggestions collapses suggestions that concern the same entity set
// and say the same thing, keeping the higher-scoring one. The merge is
// idempotent.
func DedupSuggestions(suggestions []types.Suggestion) []types.Suggestion {
	best := make(map[string]int)
	var out []types.Suggestion

	for _, s := range suggestions {
		key := dedupKey(&s)
		if idx, ok := best[key]; ok {
			if s.RelevanceScore > out[idx].RelevanceScore {
				out[idx] = s
			}
			continue
		}
		best[key] = len(out)
		out = append(out, s)
	}
	return out
}

// dedupKey combines the unordered affected-entity set with normalized
// title and description text.
func dedupKey(s *types.Suggestion) string {
	ids := make([]string, len(s.AffectedEntityIDs))
	copy(ids, s.AffectedEntityIDs)
	sort.Strings(ids)

	return strings.Join(ids, ",") + "|" +
		normalizeText(s.Title) + "|" +
		normalizeText(s.Description)
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// stampSuggestions assigns IDs, timestamps, expiry and initial status.
func (o *Orchestrator) stampSuggestions(suggestions []types.Suggestion, cfg AnalysisConfig) []types.Suggestion {
	now := o.now()
	stamped := make([]types.Suggestion, len(suggestions))
	for i, s := range suggestions {
		s.ID = uuid.NewString()
		s.CreatedAt = now
		s.ExpiresAt = now.AddDate(0, 0, cfg.ExpirationDays)
		s.Status = types.StatusPending
		s.ClampScore()
		stamped[i] = s
	}
	return stamped
}

func entityPointers(entities []types.Entity) []*types.Entity {
	out := make([]*types.Entity, len(entities))
	for i := range entities {
		out[i] = &entities[i]
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
