package prompts

import (
	"fmt"
	"strings"

	"github.com/pinpoint/pkg/models"
)

// PromptBuilder provides methods for building the pipeline's AI prompts
type PromptBuilder struct {
	queryCount int
}

// NewPromptBuilder creates a prompt builder that asks for queryCount
// search queries.
func NewPromptBuilder(queryCount int) *PromptBuilder {
	if queryCount <= 0 {
		queryCount = 3
	}
	return &PromptBuilder{queryCount: queryCount}
}

// BuildAnalysisPrompt returns the system instruction and user message for
// question analysis.
func (pb *PromptBuilder) BuildAnalysisPrompt(query string) (system, user string, err error) {
	system, err = Render(AnalysisTemplate, map[string]any{"query_count": fmt.Sprint(pb.queryCount)})
	if err != nil {
		return "", "", err
	}
	user, err = Render(AnalysisUserTemplate, map[string]any{"query": query})
	if err != nil {
		return "", "", err
	}
	return system, user, nil
}

// BuildAnswerPrompt embeds the question and the collected evidence in the
// answer instruction.
func (pb *PromptBuilder) BuildAnswerPrompt(query string, evidence []models.IssueWithComments) (string, error) {
	return Render(AnswerTemplate, map[string]any{
		"query":    query,
		"evidence": BuildEvidenceSection(evidence),
	})
}

// BuildEvidenceSection renders issues and their comments as markdown. It
// returns "" when there is no evidence.
func BuildEvidenceSection(evidence []models.IssueWithComments) string {
	if len(evidence) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(EvidenceHeader + "\n\n")
	for _, iwc := range evidence {
		fmt.Fprintf(&b, "%s%d: %s\n", IssuePrefix, iwc.Number, iwc.Title)
		fmt.Fprintf(&b, "URL: %s\n", iwc.URL)
		fmt.Fprintf(&b, "State: %s | Author: %s | Reactions: %d\n\n", iwc.State, iwc.Author, iwc.Reactions)
		if body := strings.TrimSpace(iwc.Body); body != "" {
			b.WriteString(body)
			b.WriteString("\n\n")
		}

		if len(iwc.Comments) > 0 {
			b.WriteString(CommentsHeader + "\n\n")
			for _, c := range iwc.Comments {
				fmt.Fprintf(&b, "- %s (reactions: %d)", c.Author, c.EngagementScore)
				if c.URL != "" {
					fmt.Fprintf(&b, " %s", c.URL)
				}
				b.WriteString("\n")
				if body := strings.TrimSpace(c.Body); body != "" {
					b.WriteString(indent(body, "  "))
					b.WriteString("\n")
				}
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
