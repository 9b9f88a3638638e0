package providers

import (
	"context"

	"github.com/pinpoint/pkg/models"
)

// IssueTracker is a code hosting provider's issue search surface. Every
// method returns *upstream.Error for remote failures.
type IssueTracker interface {
	// RepoExists reports whether owner/name is a visible repository.
	RepoExists(ctx context.Context, repo string) (bool, error)
	// DiscoverRepository returns the most prominent repository for a
	// technology name, or ok=false when the search has no hits.
	DiscoverRepository(ctx context.Context, technology string) (repo string, ok bool, err error)
	// SearchIssues runs one issue search scoped to repo.
	SearchIssues(ctx context.Context, repo, query string) ([]models.Issue, error)
	// ListComments returns the comments of one issue, unranked.
	ListComments(ctx context.Context, repo string, number int) ([]models.Comment, error)
	Name() string
}
