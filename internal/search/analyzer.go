// Package search runs the question-to-answer pipeline: analyse the
// question, resolve a repository, search its issues, collect comments and
// stream a cited answer.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pinpoint/internal/llm"
	"github.com/pinpoint/internal/prompts"
	"github.com/pinpoint/internal/upstream"
	"github.com/pinpoint/pkg/models"
)

// AnalysisError means the model's analysis could not be repaired into a
// schema-valid QueryAnalysis. Its kind is ValidationFailed.
type AnalysisError struct {
	Raw string
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("query analysis: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Analyzer turns a question into a technology name and search queries
// with one structured generation.
type Analyzer struct {
	gen     llm.Generator
	builder *prompts.PromptBuilder
	schema  *llm.Schema
}

// NewAnalyzer builds an analyzer that accepts between one and queryCount
// queries from the model.
func NewAnalyzer(gen llm.Generator, queryCount int) (*Analyzer, error) {
	if queryCount <= 0 {
		queryCount = 3
	}
	schema, err := llm.CompileSchema("query_analysis", analysisSchema(queryCount))
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		gen:     gen,
		builder: prompts.NewPromptBuilder(queryCount),
		schema:  schema,
	}, nil
}

func analysisSchema(queryCount int) map[string]any {
	intents := make([]any, 0, len(models.Intents))
	for _, in := range models.Intents {
		intents = append(intents, string(in))
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"technology": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"queries": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string", "minLength": 1},
				"minItems": 1,
				"maxItems": queryCount,
			},
			"intent": map[string]any{
				"type": "string",
				"enum": intents,
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
		},
		"required": []any{"technology", "queries", "confidence"},
	}
}

// Analyze runs the analysis. Provider failures keep their upstream kind;
// unusable output is an *AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, query string) (models.QueryAnalysis, error) {
	system, user, err := a.builder.BuildAnalysisPrompt(query)
	if err != nil {
		return models.QueryAnalysis{}, err
	}

	raw, err := a.gen.Generate(ctx, llm.Prompt{
		System: system,
		User:   user,
		Schema: a.schema.Document(),
	})
	if err != nil {
		return models.QueryAnalysis{}, err
	}

	var analysis models.QueryAnalysis
	stats, err := a.schema.Decode(raw, &analysis)
	if err != nil {
		return models.QueryAnalysis{}, &AnalysisError{
			Raw: raw,
			Err: upstream.New(upstream.KindValidationFailed, a.gen.Name(), "analyze query", "model returned an invalid analysis", err),
		}
	}
	if stats.WasRepaired {
		zerolog.Ctx(ctx).Debug().Strs("strategies", stats.Strategies).Msg("repaired analysis output")
	}

	analysis.Technology = strings.TrimSpace(analysis.Technology)
	queries := analysis.Queries[:0]
	for _, q := range analysis.Queries {
		if q = strings.Join(strings.Fields(q), " "); q != "" {
			queries = append(queries, q)
		}
	}
	analysis.Queries = queries
	if len(analysis.Queries) == 0 || analysis.Technology == "" {
		return models.QueryAnalysis{}, &AnalysisError{
			Raw: raw,
			Err: upstream.New(upstream.KindValidationFailed, a.gen.Name(), "analyze query", "analysis has no usable queries", nil),
		}
	}
	return analysis, nil
}
