// Package llm provides the text-generation backend used by analysis strategies.
package llm

import "context"

// Generator completes a prompt. Implementations make a single attempt per call.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, temperature float64) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return f(ctx, prompt, temperature)
}
