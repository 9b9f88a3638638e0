package search

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/pinpoint/internal/upstream"
	"github.com/pinpoint/pkg/models"
)

func TestIssueCap(t *testing.T) {
	tests := []struct {
		issues, perIssue, total, want int
	}{
		{10, 5, 12, 2},
		{10, 5, 50, 10},
		{3, 5, 50, 3},
		{10, 5, 4, 0},
		{10, 0, 50, 0},
		{0, 5, 50, 0},
	}
	for _, tt := range tests {
		if got := IssueCap(tt.issues, tt.perIssue, tt.total); got != tt.want {
			t.Errorf("IssueCap(%d, %d, %d) = %d, want %d", tt.issues, tt.perIssue, tt.total, got, tt.want)
		}
	}
}

func TestAggregateRanksByEngagement(t *testing.T) {
	tracker := &stubTracker{comments: map[int][]models.Comment{
		1: {
			{Body: "a", Author: "u1", EngagementScore: 5},
			{Body: "b", Author: "u2", EngagementScore: 5},
			{Body: "c", Author: "u3", EngagementScore: 2},
			{Body: "d", Author: "u4", EngagementScore: 8},
		},
	}}

	got := NewCommentAggregator(tracker, 4, 0).Aggregate(context.Background(), "acme/widget", []models.Issue{issue(100, 1)}, 2, 50)

	want := []models.IssueWithComments{{
		Issue: issue(100, 1),
		Comments: []models.Comment{
			{Body: "d", Author: "u4", EngagementScore: 8},
			{Body: "a", Author: "u1", EngagementScore: 5},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateRespectsBudget(t *testing.T) {
	tracker := &stubTracker{comments: map[int][]models.Comment{}}
	var issues []models.Issue
	for n := 1; n <= 10; n++ {
		issues = append(issues, issue(int64(n), n))
		for c := 0; c < 7; c++ {
			tracker.comments[n] = append(tracker.comments[n], models.Comment{Body: "x", Author: "y", EngagementScore: c})
		}
	}

	got := NewCommentAggregator(tracker, 8, 0).Aggregate(context.Background(), "acme/widget", issues, 5, 12)

	assert.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"comments:1", "comments:2"}, tracker.Calls("comments:"))
	total := 0
	for _, iwc := range got {
		assert.LessOrEqual(t, len(iwc.Comments), 5)
		total += len(iwc.Comments)
	}
	assert.LessOrEqual(t, total, 12)
}

func TestAggregateSkipsFailedIssues(t *testing.T) {
	tracker := &stubTracker{
		comments: map[int][]models.Comment{
			1: {{Body: "one", Author: "a"}},
			3: {{Body: "three", Author: "c"}},
		},
		commentErr: map[int]error{
			2: upstream.New(upstream.KindAccessDenied, "github", "list comments", "", nil),
		},
	}
	issues := []models.Issue{issue(11, 1), issue(12, 2), issue(13, 3)}

	got := NewCommentAggregator(tracker, 0, 0).Aggregate(context.Background(), "acme/widget", issues, 5, 50)

	var numbers []int
	for _, iwc := range got {
		numbers = append(numbers, iwc.Number)
	}
	assert.Equal(t, []int{1, 3}, numbers)
}

func TestAggregateDefaultsAndClipping(t *testing.T) {
	long := strings.Repeat("é", 30)
	tracker := &stubTracker{comments: map[int][]models.Comment{
		1: {{Body: long, EngagementScore: -3}},
	}}
	is := issue(1, 1)
	is.Body = long

	got := NewCommentAggregator(tracker, 0, 10).Aggregate(context.Background(), "acme/widget", []models.Issue{is}, 5, 50)

	if assert.Len(t, got, 1) && assert.Len(t, got[0].Comments, 1) {
		c := got[0].Comments[0]
		assert.Equal(t, models.DefaultCommentAuthor, c.Author)
		assert.Equal(t, 0, c.EngagementScore)
		assert.Equal(t, strings.Repeat("é", 10)+"…", c.Body)
		assert.Equal(t, strings.Repeat("é", 10)+"…", got[0].Body)
	}
}

func TestAggregateNothingToDo(t *testing.T) {
	tracker := &stubTracker{}
	assert.Empty(t, NewCommentAggregator(tracker, 0, 0).Aggregate(context.Background(), "acme/widget", nil, 5, 50))
	assert.Empty(t, NewCommentAggregator(tracker, 0, 0).Aggregate(context.Background(), "acme/widget", []models.Issue{issue(1, 1)}, 5, 4))
	assert.Empty(t, tracker.Calls("comments:"))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "hello", clip("hello", 0))
	assert.Equal(t, "hello", clip("hello", 5))
	assert.Equal(t, "hel…", clip("hello", 3))
	assert.Equal(t, "ab…", clip("ab  cd", 3))
}
