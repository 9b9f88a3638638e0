package github

import (
	"context"

	"github.com/pinpoint/internal/config"
	"github.com/pinpoint/internal/providers"
	"github.com/pinpoint/internal/retry"
	"github.com/pinpoint/pkg/shared"
)

// New builds the issue tracker from application configuration.
func New(ctx context.Context, cfg config.GitHubConfig, policy retry.Config) (providers.IssueTracker, error) {
	return NewClient(ctx, Options{
		Credentials: shared.ForgeCredentials{
			Provider: serviceName,
			BaseURL:  cfg.BaseURL,
			Token:    cfg.Token,
		},
		Timeout:           cfg.Timeout,
		PerPage:           cfg.PerPage,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Retry:             policy,
	})
}
