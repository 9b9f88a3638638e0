package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpoint/internal/upstream"
	"github.com/pinpoint/pkg/models"
)

type sseEvent struct {
	Name string
	Data string
}

// parseSSE splits a server-sent event body into events, skipping comments.
func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, ":"), line == "":
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			default:
				t.Fatalf("unexpected line %q", line)
			}
		}
		if ev.Name != "" {
			events = append(events, ev)
		}
	}
	return events
}

func names(events []sseEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Name)
	}
	return out
}

func TestEncoderFullSequence(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Ready("Search started"))
	require.NoError(t, enc.Queries(models.QueryAnalysis{Technology: "vite", Queries: []string{"build hangs"}, Intent: models.IntentBugReport, Confidence: 0.8}))
	require.NoError(t, enc.RepoInvalid("bad/repo", "not found"))
	require.NoError(t, enc.Repository("vitejs/vite", true))
	require.NoError(t, enc.Issues([]models.Issue{issue(1, 1)}))
	require.NoError(t, enc.Comments([]models.IssueWithComments{{Issue: issue(1, 1), Comments: []models.Comment{{}, {}}}}))
	require.NoError(t, enc.AnswerStart())
	require.NoError(t, enc.AnswerChunk("Upgrade."))
	require.NoError(t, enc.Sources([]models.CitationSource{{ID: 1, Kind: models.SourceIssue, Title: "t", URL: "u", IssueNumber: 1}}))
	require.NoError(t, enc.AnswerEnd())
	assert.Equal(t, StageDone, enc.Stage())

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, ":"))
	assert.Equal(t, paddingSize, strings.Index(out, "event: ready"))

	events := parseSSE(t, out)
	assert.Equal(t, []string{
		EventReady, EventSearchQueries, EventRepoInvalid, EventGetRepository, EventSearchIssues,
		EventIssuesComments, EventAnswerStart, EventAnswerChunk, EventSourcesUpdate, EventAnswerEnd,
	}, names(events))

	assert.JSONEq(t, `{"technology":"vite","queries":["build hangs"],"intent":"bug_report","confidence":0.8}`, events[1].Data)
	assert.JSONEq(t, `{"repo":"vitejs/vite","fallback":true}`, events[3].Data)
	assert.JSONEq(t, `{"total_issues":1,"issues":[{"id":1,"number":1,"title":"issue 1","url":"https://github.com/acme/widget/issues/1","state":"open","reactions":0}]}`, events[4].Data)
	assert.JSONEq(t, `{"total_issues":1,"total_comments":2}`, events[5].Data)
	assert.JSONEq(t, `{"message":"Generating AI response..."}`, events[6].Data)
	assert.JSONEq(t, `{"text":"Upgrade."}`, events[7].Data)
	assert.JSONEq(t, `{"sources":[{"id":1,"type":"issue","title":"t","url":"u","issue_number":1}]}`, events[8].Data)
	assert.JSONEq(t, `{"message":"Response complete"}`, events[9].Data)
}

func TestEncoderRejectsSkippedStages(t *testing.T) {
	enc := NewEncoder(&bytes.Buffer{})

	err := enc.Issues(nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, enc.Ready("go"))
	assert.ErrorIs(t, enc.Repository("a/b", false), ErrInvalidTransition)
	assert.ErrorIs(t, enc.AnswerChunk("x"), ErrInvalidTransition)
	assert.Equal(t, StageReady, enc.Stage())
}

func TestEncoderNothingAfterTerminal(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Ready("go"))
	require.NoError(t, enc.NotRelevant("nope"))
	assert.Equal(t, StageAborted, enc.Stage())

	size := buf.Len()
	assert.ErrorIs(t, enc.Queries(models.QueryAnalysis{}), ErrInvalidTransition)
	assert.ErrorIs(t, enc.Error(errors.New("late")), ErrInvalidTransition)
	assert.Equal(t, size, buf.Len())
	assert.Equal(t, []string{EventReady, EventQueryNotRelevant}, names(parseSSE(t, buf.String())))
}

func TestEncoderErrorFromAnyStage(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Ready("go"))
	require.NoError(t, enc.Queries(models.QueryAnalysis{Technology: "x", Queries: []string{"y"}}))

	err := upstream.New(upstream.KindRateLimited, "github", "search issues", "API rate limit exceeded", nil).WithRetryAfter(1500 * time.Millisecond)
	require.NoError(t, enc.Error(err))
	assert.Equal(t, StageAborted, enc.Stage())

	events := parseSSE(t, buf.String())
	require.Len(t, events, 3)
	assert.Equal(t, EventStreamingError, events[2].Name)
	assert.JSONEq(t, `{"kind":"rate_limited","status":429,"message":"API rate limit exceeded","retry_after":2}`, events[2].Data)
}

func TestNewErrorPayload(t *testing.T) {
	p := NewErrorPayload(errors.New("boom"))
	assert.Equal(t, ErrorPayload{Kind: upstream.KindUnexpected, Status: 500, Message: "An unexpected error occurred"}, p)

	p = NewErrorPayload(upstream.New(upstream.KindTimeout, "gemini", "stream", "", nil))
	assert.Equal(t, upstream.KindTimeout, p.Kind)
	assert.Equal(t, 504, p.Status)
	assert.Equal(t, 30, p.RetryAfter)
	assert.Equal(t, "An upstream service timed out", p.Message)

	data, err := json.Marshal(NewErrorPayload(upstream.New(upstream.KindNotFound, "resolver", "discover repository", "no repository found", ErrNoRepository)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"not_found","status":404,"message":"no repository found"}`, string(data))
}

func TestEncoderFlushesAndObserves(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := NewEncoder(rec)

	var seen []Event
	enc.Observe(func(ev Event) { seen = append(seen, ev) })
	require.NoError(t, enc.Ready("go"))

	assert.True(t, rec.Flushed)
	require.Len(t, seen, 1)
	assert.Equal(t, Event{Name: EventReady, Data: MessagePayload{Message: "go"}}, seen[0])
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestEncoderWriteFailure(t *testing.T) {
	enc := NewEncoder(brokenWriter{})
	err := enc.Ready("go")
	require.Error(t, err)
	assert.Equal(t, StageNew, enc.Stage())
	assert.Equal(t, err, enc.Ready("again"))
}
