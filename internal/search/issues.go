package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pinpoint/internal/providers"
	"github.com/pinpoint/internal/upstream"
	"github.com/pinpoint/pkg/models"
)

// SearchError is returned when every search query failed. It wraps each
// query's error in query order, so upstream.KindOf reports the first
// query's kind.
type SearchError struct {
	Repo    string
	Queries []string
	Errs    []error
}

func (e *SearchError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for i, err := range e.Errs {
		msgs = append(msgs, fmt.Sprintf("%q: %v", e.Queries[i], err))
	}
	return fmt.Sprintf("all %d issue searches in %s failed: %s", len(e.Errs), e.Repo, strings.Join(msgs, "; "))
}

func (e *SearchError) Unwrap() []error { return e.Errs }

// IssueSearcher runs several issue searches against one repository.
type IssueSearcher struct {
	tracker        providers.IssueTracker
	maxConcurrency int
}

func NewIssueSearcher(tracker providers.IssueTracker, maxConcurrency int) *IssueSearcher {
	return &IssueSearcher{tracker: tracker, maxConcurrency: maxConcurrency}
}

type searchLeg struct {
	issues []models.Issue
	err    error
}

// Search runs one search per query concurrently and merges the results in
// query order, keeping the first occurrence of each issue id. A failed
// query contributes nothing; only when every query fails is a
// *SearchError returned.
func (s *IssueSearcher) Search(ctx context.Context, repo string, queries []string) ([]models.Issue, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	log := zerolog.Ctx(ctx)

	legs := make([]searchLeg, len(queries))
	var g errgroup.Group
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	for i, q := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				legs[i].err = err
				return nil
			}
			start := time.Now()
			issues, err := s.tracker.SearchIssues(ctx, repo, q)
			if err != nil {
				log.Warn().Err(err).
					Str("query", q).
					Str("kind", string(upstream.KindOf(err))).
					Msg("issue search failed, skipping query")
				legs[i].err = err
				return nil
			}
			log.Debug().Str("query", q).Int("issues", len(issues)).Dur("took", time.Since(start)).Msg("issue search done")
			legs[i].issues = issues
			return nil
		})
	}
	_ = g.Wait() // legs never fail the group

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		merged []models.Issue
		seen   = make(map[int64]bool)
		errs   []error
	)
	for _, leg := range legs {
		if leg.err != nil {
			errs = append(errs, leg.err)
			continue
		}
		for _, is := range leg.issues {
			if seen[is.ID] {
				continue
			}
			seen[is.ID] = true
			merged = append(merged, is)
		}
	}

	if len(errs) == len(queries) {
		return nil, &SearchError{Repo: repo, Queries: queries, Errs: errs}
	}
	return merged, nil
}

// IsSearchError reports whether err is a *SearchError.
func IsSearchError(err error) bool {
	var se *SearchError
	return errors.As(err, &se)
}
