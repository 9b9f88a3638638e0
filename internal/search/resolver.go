package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pinpoint/internal/providers"
	"github.com/pinpoint/internal/upstream"
	"github.com/pinpoint/pkg/models"
)

// ErrNoRepository means discovery found no repository for the technology.
// Errors wrapping it are classified as NotFound.
var ErrNoRepository = errors.New("no repository found")

// Resolution is the outcome of repository resolution.
type Resolution struct {
	Repo     string
	Fallback bool // Repo was discovered rather than given

	// Rejected is the explicit repository that was replaced by discovery,
	// with the reason. It is set even when discovery then fails.
	Rejected       string
	RejectedReason string
}

// Resolver validates an explicit repository or discovers one.
type Resolver struct {
	tracker providers.IssueTracker
}

func NewResolver(tracker providers.IssueTracker) *Resolver {
	return &Resolver{tracker: tracker}
}

// Resolve returns the repository to search. A missing or malformed
// explicit repository, or one the tracker reports as not found, falls back
// to discovery by technology. Any other tracker failure is returned as is.
func (r *Resolver) Resolve(ctx context.Context, explicitRepo, technology string) (Resolution, error) {
	explicitRepo = strings.TrimSpace(explicitRepo)
	if explicitRepo == "" {
		return r.discover(ctx, Resolution{}, technology)
	}

	if !models.ValidRepository(explicitRepo) {
		res := Resolution{
			Rejected:       explicitRepo,
			RejectedReason: fmt.Sprintf("%q is not a valid owner/name repository", explicitRepo),
		}
		return r.discover(ctx, res, technology)
	}

	exists, err := r.tracker.RepoExists(ctx, explicitRepo)
	switch {
	case err == nil && exists:
		return Resolution{Repo: explicitRepo}, nil
	case err == nil, upstream.Is(err, upstream.KindNotFound):
		res := Resolution{
			Rejected:       explicitRepo,
			RejectedReason: fmt.Sprintf("repository %s was not found", explicitRepo),
		}
		return r.discover(ctx, res, technology)
	case upstream.Is(err, upstream.KindValidationFailed):
		res := Resolution{
			Rejected:       explicitRepo,
			RejectedReason: fmt.Sprintf("repository %s is not valid", explicitRepo),
		}
		return r.discover(ctx, res, technology)
	default:
		return Resolution{}, err
	}
}

func (r *Resolver) discover(ctx context.Context, res Resolution, technology string) (Resolution, error) {
	technology = strings.TrimSpace(technology)
	if technology == "" {
		return res, noRepository(technology)
	}

	repo, ok, err := r.tracker.DiscoverRepository(ctx, technology)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, noRepository(technology)
	}

	zerolog.Ctx(ctx).Debug().
		Str("technology", technology).
		Str("repo", repo).
		Str("rejected", res.Rejected).
		Msg("discovered repository")
	res.Repo = repo
	res.Fallback = true
	return res, nil
}

func noRepository(technology string) error {
	msg := "no repository found"
	if technology != "" {
		msg = fmt.Sprintf("no repository found for %q", technology)
	}
	return upstream.New(upstream.KindNotFound, "resolver", "discover repository", msg, ErrNoRepository)
}
