package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pinpoint/internal/config"
	"github.com/pinpoint/internal/llm"
	"github.com/pinpoint/internal/logging"
	"github.com/pinpoint/internal/providers/github"
	"github.com/pinpoint/internal/retry"
	"github.com/pinpoint/internal/search"
)

// loadConfig reads and validates the configuration named by the global
// --config flag, then configures logging from it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return cfg, nil
}

// limitsFrom maps the search section onto pipeline limits.
func limitsFrom(cfg config.SearchConfig) search.Limits {
	return search.Limits{
		QueryCount:          cfg.QueryCount,
		MaxCommentsPerIssue: cfg.MaxCommentsPerIssue,
		MaxTotalComments:    cfg.MaxTotalComments,
		MaxConcurrency:      cfg.MaxConcurrency,
		MaxBodyChars:        cfg.MaxBodyChars,
	}
}

// newPipeline wires the GitHub tracker and the configured model into a
// search pipeline.
func newPipeline(ctx context.Context, cfg *config.Config) (*search.Pipeline, error) {
	tracker, err := github.New(ctx, cfg.GitHub, cfg.Retry.Policy(retry.DefaultConfig()))
	if err != nil {
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}

	gen, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", cfg.LLM.Provider, err)
	}
	gen = llm.NewResilientGenerator(gen, cfg.Retry.Policy(retry.LLMConfig()))

	return search.NewPipeline(tracker, gen, limitsFrom(cfg.Search))
}
