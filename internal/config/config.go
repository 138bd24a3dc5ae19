// Package config provides configuration management for Chronicler.
// It loads settings from environment variables with the CHRONICLER_ prefix
// and provides sensible defaults for all configuration options. An optional
// YAML config file can be layered between the defaults and the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Chronicler application.
type Config struct {
	Storage   StorageConfig
	LLM       LLMConfig
	Analysis  AnalysisConfig
	Scheduler SchedulerConfig
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to the SQLite data directory (default: ./data)
	PostgresDSN   string // Postgres connection string, used when StorageEngine is postgres
}

// LLMConfig contains text generation provider configuration.
type LLMConfig struct {
	Provider     string // Generator provider: ollama, openai, none (default: ollama)
	OllamaURL    string // Ollama API URL (default: http://localhost:11434)
	OllamaModel  string // Ollama model name (default: qwen2.5:7b)
	OpenAIAPIKey string // OpenAI API key
	OpenAIModel  string // OpenAI model name (default: gpt-4o-mini)
}

// AnalysisConfig contains the default analysis run settings. Per-run
// overrides merge over these.
type AnalysisConfig struct {
	MaxSuggestionsPerType int  // Cap per analyzer type (default: 10)
	MinRelevanceScore     int  // Minimum score to keep a suggestion (default: 30)
	EnableAIAnalysis      bool // Run the generation-backed passes (default: true)
	RateLimitMs           int  // Delay between generation calls in milliseconds (default: 1000)
	ExpirationDays        int  // Suggestion lifetime in days (default: 7)
}

// SchedulerConfig contains the background scheduler settings.
type SchedulerConfig struct {
	Enabled  bool   // Run the periodic scheduler (default: false)
	Interval string // Poll interval duration (default: 1h)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the CHRONICLER_ prefix.
func LoadConfig() (*Config, error) {
	return buildBaseConfig(), nil
}

// RateLimit returns the configured inter-call delay as a duration.
func (c *AnalysisConfig) RateLimit() time.Duration {
	return time.Duration(c.RateLimitMs) * time.Millisecond
}

// SchedulerInterval parses the configured interval, falling back to one
// hour when unset or unparsable.
func (c *SchedulerConfig) SchedulerInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// buildBaseConfig constructs a Config with values from environment
// variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			StorageEngine: getEnv("CHRONICLER_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("CHRONICLER_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("CHRONICLER_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:     getEnv("CHRONICLER_LLM_PROVIDER", "ollama"),
			OllamaURL:    getEnv("CHRONICLER_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:  getEnv("CHRONICLER_OLLAMA_MODEL", "qwen2.5:7b"),
			OpenAIAPIKey: getEnv("CHRONICLER_OPENAI_API_KEY", ""),
			OpenAIModel:  getEnv("CHRONICLER_OPENAI_MODEL", "gpt-4o-mini"),
		},
		Analysis: AnalysisConfig{
			MaxSuggestionsPerType: getEnvInt("CHRONICLER_MAX_SUGGESTIONS_PER_TYPE", 10),
			MinRelevanceScore:     getEnvInt("CHRONICLER_MIN_RELEVANCE_SCORE", 30),
			EnableAIAnalysis:      getEnvBool("CHRONICLER_ENABLE_AI_ANALYSIS", true),
			RateLimitMs:           getEnvInt("CHRONICLER_RATE_LIMIT_MS", 1000),
			ExpirationDays:        getEnvInt("CHRONICLER_EXPIRATION_DAYS", 7),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getEnvBool("CHRONICLER_SCHEDULER_ENABLED", false),
			Interval: getEnv("CHRONICLER_SCHEDULER_INTERVAL", "1h"),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. Accepts the forms strconv.ParseBool accepts (1, t, true, ...).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
