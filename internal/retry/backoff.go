package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/pinpoint/internal/upstream"
)

// Config configures retry behavior with exponential backoff
type Config struct {
	MaxRetries int // attempts after the first one
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool

	// Retryable decides whether a failed attempt should be repeated.
	// Defaults to IsRetryable.
	Retryable func(error) bool
}

// Result describes how an operation went across its attempts
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
	Success       bool
	RetryReasons  []upstream.Kind
}

// DefaultConfig is used for issue-tracker calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// LLMConfig is used for non-streaming model calls, which are slower and
// more expensive to repeat.
func LLMConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
		MaxDelay:   20 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. The returned error is the last failure.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	return DoWithResult(ctx, cfg, op).LastError
}

// DoWithResult is Do but reports every attempt.
func DoWithResult(ctx context.Context, cfg Config, op func(ctx context.Context) error) Result {
	logger := zerolog.Ctx(ctx)
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	start := time.Now()
	var result Result

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := op(ctx)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(start)
			if attempt > 0 {
				logger.Debug().Int("attempts", result.Attempts).Dur("duration", result.TotalDuration).Msg("operation succeeded after retry")
			}
			return result
		}

		result.LastError = err
		result.RetryReasons = append(result.RetryReasons, upstream.KindOf(err))

		if attempt >= cfg.MaxRetries || !retryable(err) {
			result.TotalDuration = time.Since(start)
			return result
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		}

		delay := calculateDelay(cfg, attempt)
		logger.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", cfg.MaxRetries+1).
			Dur("delay", delay).
			Msg("retrying upstream call")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		case <-timer.C:
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}

// calculateDelay: baseDelay * multiplier^attempt, capped, with up to 10% jitter
func calculateDelay(cfg Config, attempt int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := float64(cfg.BaseDelay) * math.Pow(multiplier, float64(attempt))

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// IsRetryable retries transient failures only. Rate limits are surfaced to
// the caller with their retry-after hint instead of being waited out.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return upstream.Retryable(upstream.KindOf(err))
}
