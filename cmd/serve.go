package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/pinpoint/internal/api"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Pinpoint API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides server.port)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	log.Info().
		Str("llm_provider", cfg.LLM.Provider).
		Str("llm_model", cfg.LLM.Model).
		Bool("github_token", cfg.GitHub.Token != "").
		Msg("starting pinpoint")

	server := api.NewServer(cfg.Server, pipeline, cfg.Search.MinQueryLength)
	return server.Start(ctx)
}
