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

func newTestAnalyzer(t *testing.T, gen *stubGenerator) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(gen, 3)
	require.NoError(t, err)
	return a
}

func TestAnalyze(t *testing.T) {
	gen := &stubGenerator{analysis: `{"technology": " react ", "queries": ["useEffect  infinite loop", "effect runs twice", " "], "intent": "bug_report", "confidence": 0.92}`}
	a := newTestAnalyzer(t, gen)

	got, err := a.Analyze(context.Background(), "my react useEffect keeps running in a loop")
	require.NoError(t, err)
	assert.Equal(t, models.QueryAnalysis{
		Technology: "react",
		Queries:    []string{"useEffect infinite loop", "effect runs twice"},
		Intent:     models.IntentBugReport,
		Confidence: 0.92,
	}, got)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0].System, "exactly 3 search queries")
	assert.Equal(t, "User Query: my react useEffect keeps running in a loop", gen.prompts[0].User)
	assert.Equal(t, "object", gen.prompts[0].Schema["type"])
}

func TestAnalyzeRepairsOutput(t *testing.T) {
	gen := &stubGenerator{analysis: "```json\n{\"technology\": \"vite\", \"queries\": [\"build hangs\",], \"confidence\": 0.7,}\n```"}
	a := newTestAnalyzer(t, gen)

	got, err := a.Analyze(context.Background(), "vite build hangs")
	require.NoError(t, err)
	assert.Equal(t, "vite", got.Technology)
	assert.Equal(t, []string{"build hangs"}, got.Queries)
}

func TestAnalyzeSentinel(t *testing.T) {
	gen := &stubGenerator{analysis: `{"technology": "irrelevant", "queries": ["irrelevant"], "intent": "general_info", "confidence": 1}`}
	a := newTestAnalyzer(t, gen)

	got, err := a.Analyze(context.Background(), "what is the best pizza topping in naples")
	require.NoError(t, err)
	assert.True(t, got.Irrelevant())
}

func TestAnalyzeRejectsInvalidOutput(t *testing.T) {
	tests := map[string]string{
		"missing queries":  `{"technology": "go", "confidence": 0.5}`,
		"too many queries": `{"technology": "go", "queries": ["a b", "c d", "e f", "g h"], "confidence": 0.5}`,
		"unknown intent":   `{"technology": "go", "queries": ["a b"], "intent": "gossip", "confidence": 0.5}`,
		"confidence range": `{"technology": "go", "queries": ["a b"], "confidence": 1.5}`,
		"blank queries":    `{"technology": "go", "queries": ["  "], "confidence": 0.5}`,
		"not json":         `I could not work out the technology.`,
		"empty technology": `{"technology": "", "queries": ["a b"], "confidence": 0.5}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			a := newTestAnalyzer(t, &stubGenerator{analysis: raw})

			_, err := a.Analyze(context.Background(), "some question about go modules")
			require.Error(t, err)

			var ae *AnalysisError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, raw, ae.Raw)
			assert.Equal(t, upstream.KindValidationFailed, upstream.KindOf(err))
		})
	}
}

func TestAnalyzeKeepsProviderKind(t *testing.T) {
	boom := upstream.New(upstream.KindRateLimited, "stub-llm", "generate", "quota", nil)
	a := newTestAnalyzer(t, &stubGenerator{analysisErr: boom})

	_, err := a.Analyze(context.Background(), "some question about go modules")
	require.ErrorIs(t, err, boom)

	var ae *AnalysisError
	assert.False(t, errors.As(err, &ae))
	assert.Equal(t, upstream.KindRateLimited, upstream.KindOf(err))
}
