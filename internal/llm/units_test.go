package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpoint/internal/upstream"
)

func collect(t *testing.T, r io.Reader) ([]Unit, error) {
	t.Helper()
	var units []Unit
	for u, err := range DecodeUnits(r) {
		if err != nil {
			return units, err
		}
		units = append(units, u)
	}
	return units, nil
}

func TestDecodeUnitsArray(t *testing.T) {
	raw := `[
		{"type": "answer", "text": "Use a ref "},
		{"type": "sources", "sources": [{"type": "issue", "title": "Hooks", "url": "https://x/1", "issue_number": 1}]},
		{"type": "answer", "text": "instead."}
	]`

	units, err := collect(t, strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, Unit{Kind: UnitAnswer, Text: "Use a ref "}, units[0])
	assert.Equal(t, UnitSources, units[1].Kind)
	assert.Equal(t, []SourceRef{{Type: "issue", Title: "Hooks", URL: "https://x/1", IssueNumber: 1}}, units[1].Sources)
	assert.Equal(t, "instead.", units[2].Text)
}

func TestDecodeUnitsNewlineDelimited(t *testing.T) {
	raw := "{\"type\":\"answer\",\"text\":\"a\"}\n{\"type\":\"answer\",\"text\":\"b\"}{\"type\":\"error\",\"message\":\"cannot answer\"}\n"

	units, err := collect(t, strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []Unit{
		{Kind: UnitAnswer, Text: "a"},
		{Kind: UnitAnswer, Text: "b"},
		{Kind: UnitError, Message: "cannot answer"},
	}, units)
}

func TestDecodeUnitsPlainText(t *testing.T) {
	units, err := collect(t, strings.NewReader("  Just some prose about `hooks`."))
	require.NoError(t, err)

	var text strings.Builder
	for _, u := range units {
		assert.Equal(t, UnitAnswer, u.Kind)
		text.WriteString(u.Text)
	}
	assert.Equal(t, "Just some prose about `hooks`.", text.String())
}

func joinText(t *testing.T, units []Unit) string {
	t.Helper()
	var text strings.Builder
	for _, u := range units {
		assert.Equal(t, UnitAnswer, u.Kind)
		text.WriteString(u.Text)
	}
	return text.String()
}

func TestDecodeUnitsBracketedText(t *testing.T) {
	tests := map[string]string{
		"markdown link":         "[Issue #12](https://github.com/a/b/issues/12) explains the fix.",
		"braced placeholder":    "{x} is the value passed to the hook.",
		"object that breaks":    `{"answer" is the key you want}`,
		"array element breaks":  `[{"a" b}] is not valid JSON`,
		"link after whitespace": "  \n[docs](https://react.dev) cover this.",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			units, err := collect(t, strings.NewReader(raw))
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(raw), joinText(t, units))
		})
	}
}

func TestDecodeUnitsCodeFence(t *testing.T) {
	raw := "```json\n[{\"type\":\"answer\",\"text\":\"fenced\"}]\n```"

	units, err := collect(t, strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []Unit{{Kind: UnitAnswer, Text: "fenced"}}, units)
}

func TestDecodeUnitsUnknownShape(t *testing.T) {
	raw := `[{"type": "mystery", "value": 1}, {"content": "from content"}, "bare string"]`

	units, err := collect(t, strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, Unit{Kind: UnitAnswer, Text: `{"type": "mystery", "value": 1}`}, units[0])
	assert.Equal(t, Unit{Kind: UnitAnswer, Text: "from content"}, units[1])
	assert.Equal(t, Unit{Kind: UnitAnswer, Text: "bare string"}, units[2])
}

func TestDecodeUnitsTruncatedTail(t *testing.T) {
	raw := `{"type":"answer","text":"complete"}{"type":"answer","text":"cut off`

	units, err := collect(t, strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "complete", units[0].Text)
	assert.Equal(t, UnitAnswer, units[1].Kind)
	assert.Contains(t, units[1].Text, "cut off")
}

func TestDecodeUnitsEmpty(t *testing.T) {
	units, err := collect(t, strings.NewReader("   \n"))
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestDecodeUnitsReadError(t *testing.T) {
	boom := upstream.New(upstream.KindRateLimited, "gemini", "stream", "quota", nil)
	r := io.MultiReader(strings.NewReader(`{"type":"answer","text":"a"}`), &failingReader{err: boom})

	units, err := collect(t, r)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Unit{{Kind: UnitAnswer, Text: "a"}}, units)
}

type failingReader struct{ err error }

func (f *failingReader) Read([]byte) (int, error) { return 0, f.err }

// chunkGenerator streams fixed chunks and records whether it was stopped.
type chunkGenerator struct {
	chunks  []string
	err     error
	stopped atomic.Bool
}

func (g *chunkGenerator) Name() string { return "chunks" }

func (g *chunkGenerator) Generate(context.Context, Prompt) (string, error) {
	return strings.Join(g.chunks, ""), nil
}

func (g *chunkGenerator) Stream(ctx context.Context, _ Prompt, onChunk ChunkFunc) error {
	for _, c := range g.chunks {
		if err := onChunk(c); err != nil {
			g.stopped.Store(true)
			return err
		}
	}
	return g.err
}

func TestStreamUnitsAcrossChunkBoundaries(t *testing.T) {
	gen := &chunkGenerator{chunks: []string{
		`[{"type":"ans`, `wer","text":"Hello "},`,
		`{"type":"answer","text":"world"}`, `]`,
	}}

	var texts []string
	for u, err := range StreamUnits(context.Background(), gen, Prompt{}) {
		require.NoError(t, err)
		texts = append(texts, u.Text)
	}
	assert.Equal(t, []string{"Hello ", "world"}, texts)
}

func TestStreamUnitsKeepsLeadingBracket(t *testing.T) {
	gen := &chunkGenerator{chunks: []string{
		"[Issue #12](https://github.com/a/b/issues/12) explains ",
		"the fix: set strict mode off.",
	}}

	var units []Unit
	for u, err := range StreamUnits(context.Background(), gen, Prompt{}) {
		require.NoError(t, err)
		units = append(units, u)
	}
	assert.Equal(t, "[Issue #12](https://github.com/a/b/issues/12) explains the fix: set strict mode off.", joinText(t, units))
}

func TestStreamUnitsPropagatesGeneratorError(t *testing.T) {
	boom := upstream.New(upstream.KindUpstreamUnavailable, "gemini", "stream", "overloaded", nil)
	gen := &chunkGenerator{chunks: []string{"partial text"}, err: boom}

	var gotErr error
	var text strings.Builder
	for u, err := range StreamUnits(context.Background(), gen, Prompt{}) {
		if err != nil {
			gotErr = err
			break
		}
		text.WriteString(u.Text)
	}
	assert.Equal(t, "partial text", text.String())
	assert.True(t, errors.Is(gotErr, boom))
}

func TestStreamUnitsEarlyStopCancelsGeneration(t *testing.T) {
	gen := &chunkGenerator{chunks: []string{
		`{"type":"error","message":"nope"}`,
		`{"type":"answer","text":"never read"}`,
		`{"type":"answer","text":"never read"}`,
	}}

	for u, err := range StreamUnits(context.Background(), gen, Prompt{}) {
		require.NoError(t, err)
		assert.Equal(t, UnitError, u.Kind)
		break
	}
	assert.True(t, gen.stopped.Load())
}
