package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pinpoint/internal/llm"
	"github.com/pinpoint/pkg/models"
)

func TestCitationNumberingByFirstReference(t *testing.T) {
	a := llm.SourceRef{Type: "issue", Title: "A", URL: "https://github.com/acme/widget/issues/1", IssueNumber: 1}
	b := llm.SourceRef{Type: "comment", Title: "B", URL: "https://github.com/acme/widget/issues/1#issuecomment-9", IssueNumber: 1}
	c := llm.SourceRef{Type: "issue", Title: "C", URL: "https://github.com/acme/widget/issues/7", IssueNumber: 7}

	reg := NewCitationRegistry()
	var got []int
	var fresh []bool
	for _, ref := range []llm.SourceRef{a, b, a, c} {
		src, isNew := reg.Cite(ref)
		got = append(got, src.ID)
		fresh = append(fresh, isNew)
	}

	assert.Equal(t, []int{1, 2, 1, 3}, got)
	assert.Equal(t, []bool{true, true, false, true}, fresh)

	sources := reg.Sources()
	assert.Len(t, sources, 3)
	assert.Equal(t, models.SourceComment, sources[1].Kind)
	for i, s := range sources {
		assert.Equal(t, i+1, s.ID)
	}
}

func TestCitationKeyWithoutURL(t *testing.T) {
	reg := NewCitationRegistry()

	first, _ := reg.Cite(llm.SourceRef{Type: "issue", Title: "Crash", IssueNumber: 12})
	again, isNew := reg.Cite(llm.SourceRef{Type: "Issue", Title: "Crash on start", IssueNumber: 12})
	comment, _ := reg.Cite(llm.SourceRef{Type: "comment", Title: "Crash", IssueNumber: 12})
	byTitle, _ := reg.Cite(llm.SourceRef{Title: "Untracked"})

	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 1, again.ID)
	assert.False(t, isNew)
	assert.Equal(t, "Crash", again.Title)
	assert.Equal(t, 2, comment.ID)
	assert.Equal(t, 3, byTitle.ID)
	assert.Equal(t, models.SourceIssue, byTitle.Kind)
}

func TestCitationURLNormalisation(t *testing.T) {
	reg := NewCitationRegistry()
	x, _ := reg.Cite(llm.SourceRef{URL: "https://github.com/acme/widget/issues/3/"})
	y, _ := reg.Cite(llm.SourceRef{URL: " https://github.com/acme/widget/issues/3"})
	assert.Equal(t, x.ID, y.ID)
}
