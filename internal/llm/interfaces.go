// Package llm is the sole boundary between the analysis engine and the
// generative text backend. All analyzer prompts use single-string completion
// style (not chat). Expected backend failures come back as errors; callers
// treat a failed call as "no suggestion from this call" and continue.
package llm

import "context"

// CompleteOptions carries per-call generation parameters.
type CompleteOptions struct {
	// Temperature controls sampling randomness (0.0 = deterministic).
	Temperature float64
}

// TextGenerator is the interface for LLM text completion.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)
	GetModel() string
}
