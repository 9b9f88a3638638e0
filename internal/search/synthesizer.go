package search

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"

	"github.com/pinpoint/internal/llm"
	"github.com/pinpoint/internal/prompts"
	"github.com/pinpoint/internal/upstream"
	"github.com/pinpoint/pkg/models"
)

// AnswerEventKind is the type of an AnswerEvent.
type AnswerEventKind int

const (
	AnswerChunk AnswerEventKind = iota
	SourcesUpdate
	AnswerError
)

// AnswerEvent is one step of a synthesized answer. Err is set only for
// AnswerError, which is always the last event.
type AnswerEvent struct {
	Kind    AnswerEventKind
	Text    string
	Sources []models.CitationSource
	Err     error
}

var errAnswerConsumed = errors.New("answer stream already consumed")

var answerSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type":    map[string]any{"type": "string", "enum": []any{"answer", "sources", "error"}},
			"text":    map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
			"sources": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":         map[string]any{"type": "string", "enum": []any{"issue", "comment"}},
						"title":        map[string]any{"type": "string"},
						"url":          map[string]any{"type": "string"},
						"issue_number": map[string]any{"type": "integer"},
						"author":       map[string]any{"type": "string"},
						"preview":      map[string]any{"type": "string"},
					},
					"required": []any{"type", "title", "url", "issue_number"},
				},
			},
		},
		"required": []any{"type"},
	},
}

// Synthesizer streams an answer grounded in the collected evidence.
type Synthesizer struct {
	gen     llm.Generator
	builder *prompts.PromptBuilder
}

func NewSynthesizer(gen llm.Generator) *Synthesizer {
	return &Synthesizer{gen: gen, builder: prompts.NewPromptBuilder(0)}
}

// Synthesize starts one streaming generation when the returned sequence is
// ranged over. The sequence can be consumed once; it ends after the answer
// completes or after an AnswerError. Stopping early cancels the
// generation.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, evidence []models.IssueWithComments) iter.Seq[AnswerEvent] {
	var used atomic.Bool
	return func(yield func(AnswerEvent) bool) {
		if used.Swap(true) {
			yield(AnswerEvent{Kind: AnswerError, Err: errAnswerConsumed})
			return
		}

		text, err := s.builder.BuildAnswerPrompt(query, evidence)
		if err != nil {
			yield(AnswerEvent{Kind: AnswerError, Err: err})
			return
		}

		citations := NewCitationRegistry()
		p := llm.Prompt{User: text, Schema: answerSchema}
		for unit, err := range llm.StreamUnits(ctx, s.gen, p) {
			if err != nil {
				yield(AnswerEvent{Kind: AnswerError, Err: err})
				return
			}

			switch unit.Kind {
			case llm.UnitAnswer:
				if unit.Text == "" {
					continue
				}
				if !yield(AnswerEvent{Kind: AnswerChunk, Text: unit.Text}) {
					return
				}
			case llm.UnitSources:
				sources := citeAll(citations, unit.Sources)
				if len(sources) == 0 {
					continue
				}
				if !yield(AnswerEvent{Kind: SourcesUpdate, Sources: sources}) {
					return
				}
			case llm.UnitError:
				yield(AnswerEvent{
					Kind: AnswerError,
					Err:  upstream.New(upstream.KindUnexpected, s.gen.Name(), "generate answer", unit.Message, nil),
				})
				return
			}
		}
	}
}

// citeAll numbers refs, dropping repeats within the same update.
func citeAll(reg *CitationRegistry, refs []llm.SourceRef) []models.CitationSource {
	var out []models.CitationSource
	seen := make(map[int]bool)
	for _, ref := range refs {
		src, _ := reg.Cite(ref)
		if seen[src.ID] {
			continue
		}
		seen[src.ID] = true
		out = append(out, src)
	}
	return out
}
