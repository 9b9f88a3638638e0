package search

import (
	"fmt"
	"strings"

	"github.com/pinpoint/internal/llm"
	"github.com/pinpoint/pkg/models"
)

// CitationRegistry numbers sources in order of first reference. A source
// seen again keeps its number.
type CitationRegistry struct {
	ids     map[string]int
	sources []models.CitationSource
}

func NewCitationRegistry() *CitationRegistry {
	return &CitationRegistry{ids: make(map[string]int)}
}

// Cite returns the numbered citation for ref and whether it is new.
func (r *CitationRegistry) Cite(ref llm.SourceRef) (models.CitationSource, bool) {
	kind := models.SourceIssue
	if strings.EqualFold(strings.TrimSpace(ref.Type), string(models.SourceComment)) {
		kind = models.SourceComment
	}

	key := citationKey(kind, ref)
	if id, ok := r.ids[key]; ok {
		return r.sources[id-1], false
	}

	src := models.CitationSource{
		ID:          len(r.sources) + 1,
		Kind:        kind,
		Title:       strings.TrimSpace(ref.Title),
		URL:         strings.TrimSpace(ref.URL),
		IssueNumber: ref.IssueNumber,
		Author:      ref.Author,
		Preview:     ref.Preview,
	}
	r.ids[key] = src.ID
	r.sources = append(r.sources, src)
	return src, true
}

// Sources returns every citation so far, ordered by id.
func (r *CitationRegistry) Sources() []models.CitationSource {
	return append([]models.CitationSource(nil), r.sources...)
}

func citationKey(kind models.SourceKind, ref llm.SourceRef) string {
	if u := strings.TrimRight(strings.TrimSpace(ref.URL), "/"); u != "" {
		return "url:" + u
	}
	if ref.IssueNumber > 0 {
		return fmt.Sprintf("%s:%d", kind, ref.IssueNumber)
	}
	return fmt.Sprintf("%s:title:%s", kind, strings.ToLower(strings.TrimSpace(ref.Title)))
}
