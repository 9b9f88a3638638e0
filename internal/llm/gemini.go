package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/pinpoint/internal/upstream"
)

// GeminiOptions configures the native Gemini backend.
type GeminiOptions struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
	HTTPClient  *http.Client
}

// GeminiGenerator talks to the Gemini API through the genai SDK, using
// constrained JSON decoding when the prompt carries a schema.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	temperature float64
}

var _ Generator = (*GeminiGenerator)(nil)

func NewGemini(ctx context.Context, opts GeminiOptions) (*GeminiGenerator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = opts.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiGenerator{
		client:      client,
		model:       opts.Model,
		timeout:     opts.Timeout,
		temperature: opts.Temperature,
	}, nil
}

func (g *GeminiGenerator) Name() string {
	return string(ProviderGemini)
}

func (g *GeminiGenerator) contentConfig(p Prompt) *genai.GenerateContentConfig {
	temp := g.temperature
	if p.Temperature != nil {
		temp = *p.Temperature
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temp)),
	}
	if p.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p.System}}}
	}
	if p.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = p.Schema
	}
	return cfg
}

func (g *GeminiGenerator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(callCtx, g.model, genai.Text(p.User), g.contentConfig(p))
	if err != nil {
		return "", classify(g.Name(), "generate", err)
	}

	text := resp.Text()
	zerolog.Ctx(ctx).Debug().
		Str("model", g.model).
		Int("bytes", len(text)).
		Dur("took", time.Since(start)).
		Msg("gemini generate")

	if text == "" {
		return "", upstream.Errorf(upstream.KindValidationFailed, g.Name(), "generate", "empty response, possibly blocked by safety filters")
	}
	return text, nil
}

// Stream implements Generator.
func (g *GeminiGenerator) Stream(ctx context.Context, p Prompt, onChunk ChunkFunc) error {
	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	chunks := 0
	for resp, err := range g.client.Models.GenerateContentStream(callCtx, g.model, genai.Text(p.User), g.contentConfig(p)) {
		if err != nil {
			return classify(g.Name(), "stream", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		chunks++
		if err := onChunk(text); err != nil {
			return err
		}
	}

	zerolog.Ctx(ctx).Debug().Str("model", g.model).Int("chunks", chunks).Msg("gemini stream finished")
	return nil
}
