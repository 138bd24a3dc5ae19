package llm

import "fmt"

// GeneratorConfig describes which backend to construct.
type GeneratorConfig struct {
	Provider string // "ollama" (default) or "openai"
	BaseURL  string
	Model    string
	APIKey   string
}

// NewTextGenerator creates the appropriate TextGenerator for the configured provider.
func NewTextGenerator(cfg GeneratorConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
