package search

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pinpoint/internal/providers"
	"github.com/pinpoint/internal/upstream"
	"github.com/pinpoint/pkg/models"
)

// CommentAggregator fetches and ranks comments for a bounded set of issues.
type CommentAggregator struct {
	tracker        providers.IssueTracker
	maxConcurrency int
	maxBodyChars   int // 0 keeps bodies whole
}

func NewCommentAggregator(tracker providers.IssueTracker, maxConcurrency, maxBodyChars int) *CommentAggregator {
	return &CommentAggregator{
		tracker:        tracker,
		maxConcurrency: maxConcurrency,
		maxBodyChars:   maxBodyChars,
	}
}

// IssueCap is how many issues fit the comment budget.
func IssueCap(issues, maxPerIssue, maxTotal int) int {
	if maxPerIssue <= 0 || maxTotal <= 0 {
		return 0
	}
	return min(issues, maxTotal/maxPerIssue)
}

// Aggregate fetches comments for the first IssueCap issues concurrently.
// Each issue keeps its maxPerIssue most-reacted comments, ties in fetch
// order. Issues whose fetch fails are left out; the rest keep input order.
func (a *CommentAggregator) Aggregate(ctx context.Context, repo string, issues []models.Issue, maxPerIssue, maxTotal int) []models.IssueWithComments {
	n := IssueCap(len(issues), maxPerIssue, maxTotal)
	if n == 0 {
		return nil
	}
	log := zerolog.Ctx(ctx)

	results := make([]*models.IssueWithComments, n)
	var g errgroup.Group
	if a.maxConcurrency > 0 {
		g.SetLimit(a.maxConcurrency)
	}
	for i, issue := range issues[:n] {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			comments, err := a.tracker.ListComments(ctx, repo, issue.Number)
			if err != nil {
				log.Warn().Err(err).
					Int("issue", issue.Number).
					Str("kind", string(upstream.KindOf(err))).
					Msg("comment fetch failed, skipping issue")
				return nil
			}
			results[i] = &models.IssueWithComments{
				Issue:    a.clipIssue(issue),
				Comments: a.rank(comments, maxPerIssue),
			}
			return nil
		})
	}
	_ = g.Wait() // legs never fail the group

	out := make([]models.IssueWithComments, 0, n)
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (a *CommentAggregator) rank(comments []models.Comment, maxPerIssue int) []models.Comment {
	ranked := make([]models.Comment, len(comments))
	copy(ranked, comments)
	slices.SortStableFunc(ranked, func(x, y models.Comment) int {
		return cmp.Compare(y.EngagementScore, x.EngagementScore)
	})
	if len(ranked) > maxPerIssue {
		ranked = ranked[:maxPerIssue]
	}
	for i := range ranked {
		if ranked[i].Author == "" {
			ranked[i].Author = models.DefaultCommentAuthor
		}
		if ranked[i].EngagementScore < 0 {
			ranked[i].EngagementScore = 0
		}
		ranked[i].Body = clip(ranked[i].Body, a.maxBodyChars)
	}
	return ranked
}

func (a *CommentAggregator) clipIssue(is models.Issue) models.Issue {
	is.Body = clip(is.Body, a.maxBodyChars)
	return is
}

// clip cuts s after limit runes and marks the cut with an ellipsis.
func clip(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := 0
	for i := range s {
		if runes == limit {
			return strings.TrimRightFunc(s[:i], unicode.IsSpace) + "…"
		}
		runes++
	}
	return s
}
