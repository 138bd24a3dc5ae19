// Package engine implements suggestion analysis over the campaign codex.
// An Orchestrator coordinates four analyzers (inconsistency, enhancement,
// relationship, plot thread) over a shared analysis context, deduplicates
// and scores their output, and persists the surviving suggestions.
package engine

import (
	"context"
	"time"

	"github.com/scrypster/chronicler/pkg/types"
)

// AnalysisConfig controls a single analysis run.
type AnalysisConfig struct {
	// MaxSuggestionsPerType caps how many suggestions each analyzer
	// may contribute to the final result.
	MaxSuggestionsPerType int

	// MinRelevanceScore drops suggestions scoring below this threshold.
	MinRelevanceScore int

	// EnableAIAnalysis gates the passes that call the text generator.
	EnableAIAnalysis bool

	// RateLimit is the minimum delay between consecutive generator calls.
	RateLimit time.Duration

	// ExpirationDays sets how long new suggestions stay actionable.
	ExpirationDays int
}

// DefaultAnalysisConfig returns the standard analysis settings.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		MaxSuggestionsPerType: 10,
		MinRelevanceScore:     30,
		EnableAIAnalysis:      true,
		RateLimit:             time.Second,
		ExpirationDays:        7,
	}
}

// ConfigOverrides holds optional per-run overrides. Nil fields keep the
// orchestrator's defaults.
type ConfigOverrides struct {
	MaxSuggestionsPerType *int
	MinRelevanceScore     *int
	EnableAIAnalysis      *bool
	RateLimit             *time.Duration
	ExpirationDays        *int
}

// Apply merges the overrides onto cfg and normalizes the result.
func (o *ConfigOverrides) Apply(cfg AnalysisConfig) AnalysisConfig {
	if o != nil {
		if o.MaxSuggestionsPerType != nil {
			cfg.MaxSuggestionsPerType = *o.MaxSuggestionsPerType
		}
		if o.MinRelevanceScore != nil {
			cfg.MinRelevanceScore = *o.MinRelevanceScore
		}
		if o.EnableAIAnalysis != nil {
			cfg.EnableAIAnalysis = *o.EnableAIAnalysis
		}
		if o.RateLimit != nil {
			cfg.RateLimit = *o.RateLimit
		}
		if o.ExpirationDays != nil {
			cfg.ExpirationDays = *o.ExpirationDays
		}
	}
	return normalizeConfig(cfg)
}

// normalizeConfig clamps out-of-range values back to usable ones.
func normalizeConfig(cfg AnalysisConfig) AnalysisConfig {
	if cfg.MaxSuggestionsPerType < 1 {
		cfg.MaxSuggestionsPerType = 1
	}
	if cfg.MinRelevanceScore < 0 {
		cfg.MinRelevanceScore = 0
	}
	if cfg.MinRelevanceScore > 100 {
		cfg.MinRelevanceScore = 100
	}
	if cfg.RateLimit < 0 {
		cfg.RateLimit = 0
	}
	if cfg.ExpirationDays < 1 {
		cfg.ExpirationDays = 1
	}
	return cfg
}

// AnalysisResult is the output of a single analyzer.
type AnalysisResult struct {
	Type           types.SuggestionType `json:"type"`
	Suggestions    []types.Suggestion   `json:"suggestions"`
	AnalysisTimeMs int64                `json:"analysis_time_ms"`
	APICalls       int                  `json:"api_calls"`
}

// FullAnalysisResult aggregates all analyzers of one run.
type FullAnalysisResult struct {
	Results          []AnalysisResult `json:"results"`
	TotalSuggestions int              `json:"total_suggestions"`
	TotalAPICalls    int              `json:"total_api_calls"`
	TotalTimeMs      int64            `json:"total_time_ms"`
	Errors           []string         `json:"errors,omitempty"`
}

// Analyzer examines the shared analysis context and produces suggestions
// of a single type.
type Analyzer interface {
	Type() types.SuggestionType
	Analyze(ctx context.Context, actx *Context, cfg AnalysisConfig) (*AnalysisResult, error)
}
