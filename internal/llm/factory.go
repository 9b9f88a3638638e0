package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/pinpoint/internal/config"
)

// New creates the configured generator.
func New(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	log.Debug().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Float64("temperature", cfg.Temperature).
		Msg("Creating generator")

	switch Provider(cfg.Provider) {
	case ProviderGemini:
		return NewGemini(ctx, GeminiOptions{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
		})
	case ProviderOpenAI:
		model, err := createOpenAIModel(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create model for provider %s: %w", cfg.Provider, err)
		}
		return NewLangchain(model, ProviderOpenAI, cfg.Timeout, cfg.Temperature), nil
	case ProviderOllama:
		model, err := createOllamaModel(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create model for provider %s: %w", cfg.Provider, err)
		}
		return NewLangchain(model, ProviderOllama, cfg.Timeout, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func createOpenAIModel(cfg config.LLMConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

func createOllamaModel(cfg config.LLMConfig) (llms.Model, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	return ollama.New(opts...)
}
