package github

import (
	"context"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"github.com/rs/zerolog"

	"github.com/pinpoint/internal/upstream"
)

// DiscoverRepository finds the most-starred repository matching a
// technology name. ok is false when the search returns nothing.
func (c *Client) DiscoverRepository(ctx context.Context, technology string) (string, bool, error) {
	technology = strings.TrimSpace(technology)
	if technology == "" {
		return "", false, upstream.Errorf(upstream.KindValidationFailed, serviceName, "search repositories", "empty technology name")
	}

	opts := &gh.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: gh.ListOptions{PerPage: 1},
	}

	var result *gh.RepositoriesSearchResult
	err := c.call(ctx, "search repositories", func(ctx context.Context) (*gh.Response, error) {
		r, resp, err := c.gh.Search.Repositories(ctx, technology, opts)
		result = r
		return resp, err
	})
	if err != nil {
		return "", false, err
	}

	for _, repo := range result.Repositories {
		if name := repo.GetFullName(); name != "" {
			zerolog.Ctx(ctx).Debug().
				Str("technology", technology).
				Str("repo", name).
				Int("stars", repo.GetStargazersCount()).
				Msg("discovered repository")
			return name, true, nil
		}
	}
	return "", false, nil
}
