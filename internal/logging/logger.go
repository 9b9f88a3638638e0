package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. format is "json" or
// "pretty"; an unknown level falls back to info.
func Setup(level, format string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if strings.EqualFold(format, "pretty") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger
}

// WithRequest returns a context carrying a logger tagged with the request
// id and, when known, the repository being searched.
func WithRequest(ctx context.Context, requestID, repo string) context.Context {
	lc := log.Logger.With().Str("request_id", requestID)
	if repo != "" {
		lc = lc.Str("repo", repo)
	}
	logger := lc.Logger()
	return logger.WithContext(ctx)
}

// Stage logs the start of a pipeline stage.
func Stage(ctx context.Context, stage string) *zerolog.Event {
	return zerolog.Ctx(ctx).Debug().Str("stage", stage)
}

// WithRepo adds the repository to the context's logger.
func WithRepo(ctx context.Context, repo string) context.Context {
	logger := zerolog.Ctx(ctx).With().Str("repo", repo).Logger()
	return logger.WithContext(ctx)
}
