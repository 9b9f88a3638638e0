package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pinpoint/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "pinpoint",
		Usage:   "Answer developer questions from GitHub issue discussions",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: ./pinpoint.toml or ~/.pinpoint.toml)",
				EnvVars: []string{"PINPOINT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override log.level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.AskCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
