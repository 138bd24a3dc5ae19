package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with optional fields so an absent key leaves
// the existing value untouched.
type fileConfig struct {
	Storage struct {
		StorageEngine *string `yaml:"storage_engine"`
		DataPath      *string `yaml:"data_path"`
		PostgresDSN   *string `yaml:"postgres_dsn"`
	} `yaml:"storage"`
	LLM struct {
		Provider     *string `yaml:"provider"`
		OllamaURL    *string `yaml:"ollama_url"`
		OllamaModel  *string `yaml:"ollama_model"`
		OpenAIAPIKey *string `yaml:"openai_api_key"`
		OpenAIModel  *string `yaml:"openai_model"`
	} `yaml:"llm"`
	Analysis struct {
		MaxSuggestionsPerType *int  `yaml:"max_suggestions_per_type"`
		MinRelevanceScore     *int  `yaml:"min_relevance_score"`
		EnableAIAnalysis      *bool `yaml:"enable_ai_analysis"`
		RateLimitMs           *int  `yaml:"rate_limit_ms"`
		ExpirationDays        *int  `yaml:"expiration_days"`
	} `yaml:"analysis"`
	Scheduler struct {
		Enabled  *bool   `yaml:"enabled"`
		Interval *string `yaml:"interval"`
	} `yaml:"scheduler"`
}

// LoadConfigFile loads configuration with a YAML file layered between the
// defaults and nothing else: file values override env-derived values. A
// missing file is not an error; the env-based config is returned as is.
func LoadConfigFile(path string) (*Config, error) {
	cfg := buildBaseConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyFileConfig(cfg, &fc)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fc *fileConfig) {
	setString(&cfg.Storage.StorageEngine, fc.Storage.StorageEngine)
	setString(&cfg.Storage.DataPath, fc.Storage.DataPath)
	setString(&cfg.Storage.PostgresDSN, fc.Storage.PostgresDSN)

	setString(&cfg.LLM.Provider, fc.LLM.Provider)
	setString(&cfg.LLM.OllamaURL, fc.LLM.OllamaURL)
	setString(&cfg.LLM.OllamaModel, fc.LLM.OllamaModel)
	setString(&cfg.LLM.OpenAIAPIKey, fc.LLM.OpenAIAPIKey)
	setString(&cfg.LLM.OpenAIModel, fc.LLM.OpenAIModel)

	setInt(&cfg.Analysis.MaxSuggestionsPerType, fc.Analysis.MaxSuggestionsPerType)
	setInt(&cfg.Analysis.MinRelevanceScore, fc.Analysis.MinRelevanceScore)
	setBool(&cfg.Analysis.EnableAIAnalysis, fc.Analysis.EnableAIAnalysis)
	setInt(&cfg.Analysis.RateLimitMs, fc.Analysis.RateLimitMs)
	setInt(&cfg.Analysis.ExpirationDays, fc.Analysis.ExpirationDays)

	setBool(&cfg.Scheduler.Enabled, fc.Scheduler.Enabled)
	setString(&cfg.Scheduler.Interval, fc.Scheduler.Interval)
}

func validate(cfg *Config) error {
	switch cfg.Storage.StorageEngine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage engine %q", cfg.Storage.StorageEngine)
	}
	if cfg.Scheduler.Interval != "" {
		if _, err := time.ParseDuration(cfg.Scheduler.Interval); err != nil {
			return fmt.Errorf("invalid scheduler interval %q", cfg.Scheduler.Interval)
		}
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
