package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pinpoint/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "pinpoint.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration and print the effective settings",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Created Pinpoint configuration at %s\n", outputPath)
	fmt.Fprintf(c.App.Writer, "Set github.token and llm.api_key there, or export GITHUB_TOKEN and GEMINI_API_KEY (%s* variables override both).\n", config.EnvPrefix)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintln(w, "Pinpoint configuration is valid")
	fmt.Fprintf(w, "  server:  port %d, prefix %s, origins %v\n", cfg.Server.Port, cfg.Server.APIPrefix, cfg.Server.AllowedOrigins())
	fmt.Fprintf(w, "  llm:     %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(w, "  github:  token set: %v, %d results per query\n", cfg.GitHub.Token != "", cfg.GitHub.PerPage)
	fmt.Fprintf(w, "  search:  %d queries, %d comments per issue, %d total\n", cfg.Search.QueryCount, cfg.Search.MaxCommentsPerIssue, cfg.Search.MaxTotalComments)
	return nil
}
