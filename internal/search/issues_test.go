package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpoint/internal/upstream"
	"github.com/pinpoint/pkg/models"
)

func ids(issues []models.Issue) []int64 {
	out := make([]int64, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.ID)
	}
	return out
}

func TestSearchMergesAndDeduplicates(t *testing.T) {
	tracker := &stubTracker{issues: map[string][]models.Issue{
		"q1": {issue(1, 10), issue(2, 20)},
		"q2": {issue(2, 20), issue(3, 30)},
		"q3": {issue(1, 10), issue(4, 40)},
	}}

	got, err := NewIssueSearcher(tracker, 2).Search(context.Background(), "acme/widget", []string{"q1", "q2", "q3"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(got))
	assert.Len(t, tracker.Calls("search:"), 3)
}

func TestSearchDegradesOnPartialFailure(t *testing.T) {
	tracker := &stubTracker{
		issues: map[string][]models.Issue{
			"q1": {issue(1, 10)},
			"q3": {issue(3, 30), issue(1, 10)},
		},
		searchErr: map[string]error{
			"q2": upstream.New(upstream.KindTimeout, "github", "search issues", "", nil),
		},
	}

	got, err := NewIssueSearcher(tracker, 0).Search(context.Background(), "acme/widget", []string{"q1", "q2", "q3"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids(got))
}

func TestSearchAllLegsFail(t *testing.T) {
	first := upstream.New(upstream.KindRateLimited, "github", "search issues", "limit", nil)
	second := upstream.New(upstream.KindUpstreamUnavailable, "github", "search issues", "", nil)
	tracker := &stubTracker{searchErr: map[string]error{"q1": first, "q2": second}}

	got, err := NewIssueSearcher(tracker, 0).Search(context.Background(), "acme/widget", []string{"q1", "q2"})
	require.Error(t, err)
	assert.Nil(t, got)

	var se *SearchError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []error{first, second}, se.Errs)
	assert.True(t, IsSearchError(err))
	assert.ErrorIs(t, err, second)
	assert.Equal(t, upstream.KindRateLimited, upstream.KindOf(err))
	assert.Equal(t, upstream.DefaultRateLimitRetryAfter, upstream.RetryAfterOf(err))
}

func TestSearchEmptyResultsAreNotFailures(t *testing.T) {
	got, err := NewIssueSearcher(&stubTracker{}, 0).Search(context.Background(), "acme/widget", []string{"q1"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = NewIssueSearcher(&stubTracker{}, 0).Search(context.Background(), "acme/widget", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchCancelled(t *testing.T) {
	tracker := &stubTracker{issues: map[string][]models.Issue{"q1": {issue(1, 10)}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewIssueSearcher(tracker, 0).Search(ctx, "acme/widget", []string{"q1", "q2"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsSearchError(err))
	assert.Empty(t, tracker.Calls("search:"))
}
