package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pinpoint/internal/retry"
)

// ResilientGenerator retries non-streaming generations on transient
// failures. Streams are never retried: once chunks reach the caller a
// repeat would duplicate them.
type ResilientGenerator struct {
	Generator
	retryConfig retry.Config
}

// NewResilientGenerator wraps gen with the given retry policy.
func NewResilientGenerator(gen Generator, cfg retry.Config) *ResilientGenerator {
	return &ResilientGenerator{Generator: gen, retryConfig: cfg}
}

// Generate implements Generator.
func (r *ResilientGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	var out string
	result := retry.DoWithResult(ctx, r.retryConfig, func(ctx context.Context) error {
		text, err := r.Generator.Generate(ctx, p)
		if err != nil {
			return err
		}
		out = text
		return nil
	})

	if result.Attempts > 1 {
		zerolog.Ctx(ctx).Info().
			Str("provider", r.Name()).
			Int("attempts", result.Attempts).
			Bool("success", result.Success).
			Dur("total", result.TotalDuration.Round(time.Millisecond)).
			Msg("generation needed retries")
	}
	if !result.Success {
		return "", result.LastError
	}
	return out, nil
}
