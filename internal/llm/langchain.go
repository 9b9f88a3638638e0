package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"github.com/pinpoint/internal/upstream"
)

// LangchainGenerator adapts any langchaingo model. Providers without
// constrained decoding get the schema appended to the system instruction
// and JSON mode enabled.
type LangchainGenerator struct {
	model       llms.Model
	provider    Provider
	timeout     time.Duration
	temperature float64
}

var _ Generator = (*LangchainGenerator)(nil)

func NewLangchain(model llms.Model, provider Provider, timeout time.Duration, temperature float64) *LangchainGenerator {
	return &LangchainGenerator{
		model:       model,
		provider:    provider,
		timeout:     timeout,
		temperature: temperature,
	}
}

func (g *LangchainGenerator) Name() string {
	return string(g.provider)
}

func (g *LangchainGenerator) messages(p Prompt) []llms.MessageContent {
	system := p.System
	if p.Schema != nil {
		if schema, err := json.Marshal(p.Schema); err == nil {
			system = strings.TrimSpace(system + "\n\nRespond only with JSON that validates against this JSON Schema:\n" + string(schema))
		}
	}

	var msgs []llms.MessageContent
	if system != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, p.User))
}

func (g *LangchainGenerator) callOptions(p Prompt) []llms.CallOption {
	temp := g.temperature
	if p.Temperature != nil {
		temp = *p.Temperature
	}
	opts := []llms.CallOption{llms.WithTemperature(temp)}
	// JSON mode only admits a top-level object.
	if p.Schema != nil && p.Schema["type"] == "object" {
		opts = append(opts, llms.WithJSONMode())
	}
	return opts
}

func (g *LangchainGenerator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// Generate implements Generator.
func (g *LangchainGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.model.GenerateContent(callCtx, g.messages(p), g.callOptions(p)...)
	if err != nil {
		return "", classify(g.Name(), "generate", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", upstream.Errorf(upstream.KindValidationFailed, g.Name(), "generate", "empty response from model")
	}
	return resp.Choices[0].Content, nil
}

// Stream implements Generator. Models that ignore the streaming callback
// deliver their whole response as a single chunk.
func (g *LangchainGenerator) Stream(ctx context.Context, p Prompt, onChunk ChunkFunc) error {
	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	var (
		streamed bool
		chunkErr error
	)
	opts := append(g.callOptions(p), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		streamed = true
		if err := onChunk(string(chunk)); err != nil {
			chunkErr = err
			return err
		}
		return nil
	}))

	resp, err := g.model.GenerateContent(callCtx, g.messages(p), opts...)
	if chunkErr != nil {
		return chunkErr
	}
	if err != nil {
		return classify(g.Name(), "stream", err)
	}

	if !streamed && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
		zerolog.Ctx(ctx).Debug().Str("provider", g.Name()).Msg("model did not stream, forwarding full response")
		return onChunk(resp.Choices[0].Content)
	}
	return nil
}
