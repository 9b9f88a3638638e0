package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pinpoint/internal/api"
	"github.com/pinpoint/internal/search"
	"github.com/pinpoint/pkg/models"
)

// AskCommand returns the command that answers one question in the terminal.
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:  "ask",
		Usage: "Answer a question from GitHub issues",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "Search this `OWNER/NAME` repository instead of discovering one",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Print the final answer and its sources as JSON",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Print every pipeline stage",
			},
		},
		ArgsUsage: "QUESTION",
		Action:    runAsk,
	}
}

func runAsk(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: QUESTION")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	req := models.SearchRequest{
		Repository: c.String("repo"),
		Query:      strings.Join(c.Args().Slice(), " "),
	}
	if err := req.Validate(cfg.Search.MinQueryLength); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	pipeline, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	progress := c.App.Writer
	if c.Bool("json") {
		progress = io.Discard
	}

	answer, err := ask(ctx, pipeline, req, progress, c.Bool("verbose"))
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}
	return nil
}

// errNotRelevant is returned when the question is not about software.
var errNotRelevant = errors.New("question is not about a software technology")

// ask runs one search, printing progress and answer text to out as events
// arrive, and returns the assembled answer.
func ask(ctx context.Context, runner api.SearchRunner, req models.SearchRequest, out io.Writer, verbose bool) (models.SearchAnswer, error) {
	var (
		text    strings.Builder
		sources []models.CitationSource
		seen    = make(map[int]bool)
		failure error
	)

	enc := search.NewEncoder(io.Discard)
	enc.Observe(func(ev search.Event) {
		switch data := ev.Data.(type) {
		case search.QueriesPayload:
			if verbose {
				fmt.Fprintf(out, "technology: %s\n", data.Technology)
				for _, q := range data.Queries {
					fmt.Fprintf(out, "  query: %s\n", q)
				}
			}
		case search.RepoInvalidPayload:
			fmt.Fprintf(out, "warning: %s (%s)\n", data.Message, data.Repo)
		case search.RepositoryPayload:
			if verbose {
				fmt.Fprintf(out, "repository: %s (fallback: %v)\n", data.Repo, data.Fallback)
			}
		case search.IssuesPayload:
			if verbose {
				fmt.Fprintf(out, "found %d issues\n", data.TotalIssues)
			}
		case search.CommentsPayload:
			if verbose {
				fmt.Fprintf(out, "collected %d comments from %d issues\n\n", data.TotalComments, data.TotalIssues)
			}
		case search.ChunkPayload:
			text.WriteString(data.Text)
			fmt.Fprint(out, data.Text)
		case search.SourcesPayload:
			for _, s := range data.Sources {
				if !seen[s.ID] {
					seen[s.ID] = true
					sources = append(sources, s)
				}
			}
		case search.ErrorPayload:
			failure = fmt.Errorf("%s: %s", data.Kind, data.Message)
		case search.MessagePayload:
			if ev.Name == search.EventQueryNotRelevant {
				failure = fmt.Errorf("%w: %s", errNotRelevant, data.Message)
			}
		}
	})

	if err := runner.Run(ctx, req, enc); err != nil {
		return models.SearchAnswer{}, err
	}
	if failure != nil {
		return models.SearchAnswer{}, failure
	}

	if text.Len() > 0 {
		fmt.Fprintln(out)
	}
	if len(sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, s := range sources {
			fmt.Fprintf(out, "  [%d] %s %s\n", s.ID, s.Title, s.URL)
		}
	}

	return models.SearchAnswer{Text: text.String(), Sources: sources}, nil
}
