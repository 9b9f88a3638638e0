package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Search request models

// SearchRequest is one question submitted by a caller. Repository is
// optional and, when set, must look like "owner/name".
type SearchRequest struct {
	Repository string `json:"repo,omitempty" query:"repo" form:"repo"`
	Query      string `json:"query" query:"query" form:"query"`
}

var repoPattern = regexp.MustCompile(`^[^/\s]+/[^/\s]+$`)

// ValidRepository reports whether s is a well-formed "owner/name" identifier.
func ValidRepository(s string) bool {
	return repoPattern.MatchString(s)
}

// Validate checks the request before any remote call is made.
func (r *SearchRequest) Validate(minQueryLength int) error {
	r.Query = strings.TrimSpace(r.Query)
	r.Repository = strings.TrimSpace(r.Repository)

	if len([]rune(r.Query)) < minQueryLength {
		return fmt.Errorf("query must be at least %d characters", minQueryLength)
	}
	if r.Repository != "" && !ValidRepository(r.Repository) {
		return fmt.Errorf("repository %q must be in owner/name form", r.Repository)
	}
	return nil
}

// Query analysis models

// Intent classifies what the asker is trying to do.
type Intent string

const (
	IntentBugReport      Intent = "bug_report"
	IntentFeatureRequest Intent = "feature_request"
	IntentHelpNeeded     Intent = "help_needed"
	IntentConfiguration  Intent = "configuration"
	IntentPerformance    Intent = "performance"
	IntentCompatibility  Intent = "compatibility"
	IntentGeneralInfo    Intent = "general_info"
)

// Intents lists every accepted intent value.
var Intents = []Intent{
	IntentBugReport,
	IntentFeatureRequest,
	IntentHelpNeeded,
	IntentConfiguration,
	IntentPerformance,
	IntentCompatibility,
	IntentGeneralInfo,
}

// IrrelevantTechnology marks a question that is not about software.
const IrrelevantTechnology = "irrelevant"

// QueryAnalysis is the structured result of analysing a question.
type QueryAnalysis struct {
	Technology string   `json:"technology"`
	Queries    []string `json:"queries"`
	Intent     Intent   `json:"intent,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Irrelevant reports whether the analysis is the "not a technical question"
// sentinel. The technology alone decides; models asked for a fixed number
// of queries often repeat the sentinel in each of them.
func (a QueryAnalysis) Irrelevant() bool {
	return strings.EqualFold(strings.TrimSpace(a.Technology), IrrelevantTechnology)
}

// Issue tracker models

// Issue is one tracker issue. ID is the dedup key.
type Issue struct {
	ID        int64     `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Body      string    `json:"body,omitempty"`
	State     string    `json:"state"`
	Author    string    `json:"author"`
	Reactions int       `json:"reactions"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Comment is a reply on an issue.
type Comment struct {
	Body            string `json:"body"`
	Author          string `json:"author"`
	URL             string `json:"url,omitempty"`
	EngagementScore int    `json:"engagement_score"`
}

// Default values used when the tracker omits comment fields.
const (
	DefaultCommentBody   = ""
	DefaultCommentAuthor = "unknown"
)

// IssueWithComments is an issue plus its highest-engagement comments.
type IssueWithComments struct {
	Issue
	Comments []Comment `json:"comments"`
}

// Answer models

// SourceKind tells whether a citation points at an issue or a comment.
type SourceKind string

const (
	SourceIssue   SourceKind = "issue"
	SourceComment SourceKind = "comment"
)

// CitationSource is a numbered reference used in the generated answer.
type CitationSource struct {
	ID          int        `json:"id"`
	Kind        SourceKind `json:"type"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	IssueNumber int        `json:"issue_number"`
	Author      string     `json:"author,omitempty"`
	Preview     string     `json:"preview,omitempty"`
}

// SearchAnswer is the assembled answer text and the sources it cites.
type SearchAnswer struct {
	Text    string           `json:"text"`
	Sources []CitationSource `json:"sources"`
}
