// Package llm adapts text-generation providers to the two calls the search
// pipeline needs: one structured JSON answer, and one streamed answer.
package llm

import (
	"context"
)

// Provider names accepted in configuration.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// Prompt is one generation request.
type Prompt struct {
	System string
	User   string

	// Schema, when set, is a JSON Schema document the output must satisfy.
	// Providers that support constrained decoding receive it directly.
	Schema map[string]any

	Temperature *float64
}

// ChunkFunc receives streamed text in arrival order. Returning an error
// stops the stream.
type ChunkFunc func(chunk string) error

// Generator is a text-generation backend. Errors are *upstream.Error.
type Generator interface {
	// Generate returns the complete response text.
	Generate(ctx context.Context, p Prompt) (string, error)
	// Stream delivers the response incrementally to onChunk.
	Stream(ctx context.Context, p Prompt, onChunk ChunkFunc) error
	Name() string
}
