package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/pinpoint/internal/upstream"
	"github.com/pinpoint/pkg/models"
)

// Stage is the encoder's position in the pipeline.
type Stage string

const (
	StageNew                Stage = "new"
	StageReady              Stage = "ready"
	StageQueriesEmitted     Stage = "queries_emitted"
	StageRepoResolved       Stage = "repo_resolved"
	StageIssuesFound        Stage = "issues_found"
	StageCommentsAggregated Stage = "comments_aggregated"
	StageAnswering          Stage = "answering"
	StageDone               Stage = "done"
	StageAborted            Stage = "aborted"
)

// Terminal reports whether no more events may follow.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageAborted
}

// Event names on the wire.
const (
	EventReady            = "ready"
	EventSearchQueries    = "search_queries"
	EventQueryNotRelevant = "query_not_relevant"
	EventRepoInvalid      = "repo_invalid"
	EventGetRepository    = "get_repository"
	EventStreamingError   = "streaming_error"
	EventSearchIssues     = "search_issues"
	EventIssuesComments   = "get_issues_comments"
	EventAnswerStart      = "generate_streaming_answer_start"
	EventAnswerChunk      = "streaming_answer_chunk"
	EventSourcesUpdate    = "sources_update"
	EventAnswerEnd        = "streaming_answer_end"
)

// paddingSize is the size of the leading comment that pushes the first
// event through buffering proxies.
const paddingSize = 2048

// ErrInvalidTransition is returned for an event the current stage does not
// allow, including any event after the stream has ended.
var ErrInvalidTransition = errors.New("invalid stream transition")

type transition struct {
	from Stage
	to   Stage
}

// transitions lists, per event, the stages it may follow and the stage it
// leads to. streaming_error is handled separately.
var transitions = map[string][]transition{
	EventReady:            {{StageNew, StageReady}},
	EventSearchQueries:    {{StageReady, StageQueriesEmitted}},
	EventQueryNotRelevant: {{StageReady, StageAborted}, {StageQueriesEmitted, StageAborted}},
	EventRepoInvalid:      {{StageQueriesEmitted, StageQueriesEmitted}},
	EventGetRepository:    {{StageQueriesEmitted, StageRepoResolved}},
	EventSearchIssues:     {{StageRepoResolved, StageIssuesFound}},
	EventIssuesComments:   {{StageIssuesFound, StageCommentsAggregated}},
	EventAnswerStart:      {{StageCommentsAggregated, StageAnswering}},
	EventAnswerChunk:      {{StageAnswering, StageAnswering}},
	EventSourcesUpdate:    {{StageAnswering, StageAnswering}},
	EventAnswerEnd:        {{StageAnswering, StageDone}},
}

// Payloads

type MessagePayload struct {
	Message string `json:"message"`
}

type QueriesPayload struct {
	Technology string        `json:"technology"`
	Queries    []string      `json:"queries"`
	Intent     models.Intent `json:"intent,omitempty"`
	Confidence float64       `json:"confidence"`
}

type RepoInvalidPayload struct {
	Repo    string `json:"repo"`
	Message string `json:"message"`
}

type RepositoryPayload struct {
	Repo     string `json:"repo"`
	Fallback bool   `json:"fallback"`
}

// IssueSummary is the part of an issue sent to clients.
type IssueSummary struct {
	ID        int64  `json:"id"`
	Number    int    `json:"number"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	State     string `json:"state,omitempty"`
	Reactions int    `json:"reactions"`
}

type IssuesPayload struct {
	TotalIssues int            `json:"total_issues"`
	Issues      []IssueSummary `json:"issues"`
}

type CommentsPayload struct {
	TotalIssues   int `json:"total_issues"`
	TotalComments int `json:"total_comments"`
}

type ChunkPayload struct {
	Text string `json:"text"`
}

// SourcesPayload lists the sources cited by one answer unit. A source the
// unit names twice appears once; ids stay stable across units.
type SourcesPayload struct {
	Sources []models.CitationSource `json:"sources"`
}

type ErrorPayload struct {
	Kind       upstream.Kind `json:"kind"`
	Status     int           `json:"status"`
	Message    string        `json:"message"`
	RetryAfter int           `json:"retry_after,omitempty"` // seconds
}

// Event is one encoded event, as seen by observers.
type Event struct {
	Name string
	Data any
}

// Encoder writes pipeline events as server-sent events and enforces their
// order. It is not safe for concurrent use.
type Encoder struct {
	w        io.Writer
	flusher  http.Flusher
	stage    Stage
	padded   bool
	err      error
	observer func(Event)
}

// NewEncoder writes to w, flushing after every event when w is an
// http.Flusher.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w, stage: StageNew}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Observe registers fn to receive every event after it is written.
func (e *Encoder) Observe(fn func(Event)) {
	e.observer = fn
}

// Stage returns the current stage.
func (e *Encoder) Stage() Stage {
	return e.stage
}

func (e *Encoder) Ready(message string) error {
	return e.emit(EventReady, MessagePayload{Message: message})
}

func (e *Encoder) Queries(a models.QueryAnalysis) error {
	return e.emit(EventSearchQueries, QueriesPayload{
		Technology: a.Technology,
		Queries:    a.Queries,
		Intent:     a.Intent,
		Confidence: a.Confidence,
	})
}

func (e *Encoder) NotRelevant(message string) error {
	return e.emit(EventQueryNotRelevant, MessagePayload{Message: message})
}

func (e *Encoder) RepoInvalid(repo, message string) error {
	return e.emit(EventRepoInvalid, RepoInvalidPayload{Repo: repo, Message: message})
}

func (e *Encoder) Repository(repo string, fallback bool) error {
	return e.emit(EventGetRepository, RepositoryPayload{Repo: repo, Fallback: fallback})
}

func (e *Encoder) Issues(issues []models.Issue) error {
	summaries := make([]IssueSummary, 0, len(issues))
	for _, is := range issues {
		summaries = append(summaries, IssueSummary{
			ID:        is.ID,
			Number:    is.Number,
			Title:     is.Title,
			URL:       is.URL,
			State:     is.State,
			Reactions: is.Reactions,
		})
	}
	return e.emit(EventSearchIssues, IssuesPayload{TotalIssues: len(issues), Issues: summaries})
}

func (e *Encoder) Comments(evidence []models.IssueWithComments) error {
	total := 0
	for _, iwc := range evidence {
		total += len(iwc.Comments)
	}
	return e.emit(EventIssuesComments, CommentsPayload{TotalIssues: len(evidence), TotalComments: total})
}

func (e *Encoder) AnswerStart() error {
	return e.emit(EventAnswerStart, MessagePayload{Message: "Generating AI response..."})
}

func (e *Encoder) AnswerChunk(text string) error {
	return e.emit(EventAnswerChunk, ChunkPayload{Text: text})
}

func (e *Encoder) Sources(sources []models.CitationSource) error {
	return e.emit(EventSourcesUpdate, SourcesPayload{Sources: sources})
}

func (e *Encoder) AnswerEnd() error {
	return e.emit(EventAnswerEnd, MessagePayload{Message: "Response complete"})
}

// Error ends the stream with a classified error event. It is allowed from
// every non-terminal stage.
func (e *Encoder) Error(err error) error {
	if e.stage.Terminal() {
		return fmt.Errorf("%w: %s after %s", ErrInvalidTransition, EventStreamingError, e.stage)
	}
	if err := e.write(EventStreamingError, NewErrorPayload(err)); err != nil {
		return err
	}
	e.stage = StageAborted
	return nil
}

func (e *Encoder) emit(name string, data any) error {
	next, ok := e.next(name)
	if !ok {
		return fmt.Errorf("%w: %s after %s", ErrInvalidTransition, name, e.stage)
	}
	if err := e.write(name, data); err != nil {
		return err
	}
	e.stage = next
	return nil
}

func (e *Encoder) next(name string) (Stage, bool) {
	for _, t := range transitions[name] {
		if t.from == e.stage {
			return t.to, true
		}
	}
	return "", false
}

func (e *Encoder) write(name string, data any) error {
	if e.err != nil {
		return e.err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	var b strings.Builder
	if !e.padded {
		b.WriteString(":")
		b.WriteString(strings.Repeat(" ", paddingSize-3))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "event: %s\ndata: %s\n\n", name, payload)

	if _, err := io.WriteString(e.w, b.String()); err != nil {
		e.err = fmt.Errorf("write %s: %w", name, err)
		return e.err
	}
	e.padded = true
	if e.flusher != nil {
		e.flusher.Flush()
	}
	if e.observer != nil {
		e.observer(Event{Name: name, Data: data})
	}
	return nil
}

// NewErrorPayload describes err for clients.
func NewErrorPayload(err error) ErrorPayload {
	kind := upstream.KindOf(err)
	if kind == "" {
		kind = upstream.KindUnexpected
	}

	msg := kindMessages[kind]
	var ue *upstream.Error
	if errors.As(err, &ue) && ue.Message != "" {
		msg = ue.Message
	}

	p := ErrorPayload{
		Kind:    kind,
		Status:  upstream.HTTPStatus(kind),
		Message: msg,
	}
	if d := upstream.RetryAfterOf(err); d > 0 {
		p.RetryAfter = int(math.Ceil(d.Seconds()))
	}
	return p
}

var kindMessages = map[upstream.Kind]string{
	upstream.KindNotFound:            "The requested resource was not found",
	upstream.KindAccessDenied:        "Access to an upstream service was denied",
	upstream.KindRateLimited:         "An upstream rate limit was exceeded, please retry later",
	upstream.KindTimeout:             "An upstream service timed out",
	upstream.KindValidationFailed:    "The request or a model response failed validation",
	upstream.KindUpstreamUnavailable: "An upstream service is unavailable",
	upstream.KindUnexpected:          "An unexpected error occurred",
}
