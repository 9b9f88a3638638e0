package search

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/pinpoint/internal/llm"
	"github.com/pinpoint/internal/logging"
	"github.com/pinpoint/internal/providers"
	"github.com/pinpoint/internal/upstream"
	"github.com/pinpoint/pkg/models"
)

// Limits bounds the work done for one request.
type Limits struct {
	QueryCount          int
	MaxCommentsPerIssue int
	MaxTotalComments    int
	MaxConcurrency      int
	MaxBodyChars        int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		QueryCount:          3,
		MaxCommentsPerIssue: 5,
		MaxTotalComments:    50,
		MaxConcurrency:      8,
		MaxBodyChars:        2000,
	}
}

// Pipeline answers one question per Run. The tracker and generator are
// shared across requests; everything else is per run.
type Pipeline struct {
	analyzer    *Analyzer
	resolver    *Resolver
	searcher    *IssueSearcher
	aggregator  *CommentAggregator
	synthesizer *Synthesizer
	limits      Limits
}

// NewPipeline wires the stages around one tracker and one generator.
func NewPipeline(tracker providers.IssueTracker, gen llm.Generator, limits Limits) (*Pipeline, error) {
	if tracker == nil || gen == nil {
		return nil, errors.New("search pipeline needs an issue tracker and a generator")
	}
	analyzer, err := NewAnalyzer(gen, limits.QueryCount)
	if err != nil {
		return nil, fmt.Errorf("build analyzer: %w", err)
	}
	return &Pipeline{
		analyzer:    analyzer,
		resolver:    NewResolver(tracker),
		searcher:    NewIssueSearcher(tracker, limits.MaxConcurrency),
		aggregator:  NewCommentAggregator(tracker, limits.MaxConcurrency, limits.MaxBodyChars),
		synthesizer: NewSynthesizer(gen),
		limits:      limits,
	}, nil
}

// Run executes the pipeline for req and writes its events to enc. Every
// outcome other than cancellation or a failed write ends the stream with a
// terminal event and returns nil. A cancelled context returns its error
// without writing anything further.
func (p *Pipeline) Run(ctx context.Context, req models.SearchRequest, enc *Encoder) (err error) {
	log := zerolog.Ctx(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("search pipeline panicked")
			err = p.abort(ctx, enc, upstream.Errorf(upstream.KindUnexpected, "pipeline", "run", "internal error"))
		}
		log.Info().
			Str("stage", string(enc.Stage())).
			Dur("took", time.Since(start)).
			Err(err).
			Msg("search finished")
	}()

	if err := enc.Ready("Search started"); err != nil {
		return err
	}

	logging.Stage(ctx, "analyze").Msg("analyzing query")
	analysis, err := p.analyzer.Analyze(ctx, req.Query)
	if err != nil {
		return p.abort(ctx, enc, err)
	}
	if analysis.Irrelevant() {
		log.Info().Msg("query is not about software")
		return enc.NotRelevant("Your question does not appear to be about a software technology. Try describing a specific library, framework or error.")
	}
	if err := enc.Queries(analysis); err != nil {
		return err
	}

	logging.Stage(ctx, "resolve").Str("technology", analysis.Technology).Msg("resolving repository")
	res, err := p.resolver.Resolve(ctx, req.Repository, analysis.Technology)
	if res.Rejected != "" {
		if werr := enc.RepoInvalid(res.Rejected, res.RejectedReason); werr != nil {
			return werr
		}
	}
	if err != nil {
		return p.abort(ctx, enc, err)
	}
	if err := enc.Repository(res.Repo, res.Fallback); err != nil {
		return err
	}
	ctx = logging.WithRepo(ctx, res.Repo)

	logging.Stage(ctx, "search").Strs("queries", analysis.Queries).Msg("searching issues")
	issues, err := p.searcher.Search(ctx, res.Repo, analysis.Queries)
	if err != nil {
		return p.abort(ctx, enc, err)
	}
	if err := enc.Issues(issues); err != nil {
		return err
	}

	logging.Stage(ctx, "comments").Int("issues", len(issues)).Msg("collecting comments")
	evidence := p.aggregator.Aggregate(ctx, res.Repo, issues, p.limits.MaxCommentsPerIssue, p.limits.MaxTotalComments)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := enc.Comments(evidence); err != nil {
		return err
	}

	logging.Stage(ctx, "answer").Int("evidence", len(evidence)).Msg("generating answer")
	if err := enc.AnswerStart(); err != nil {
		return err
	}
	for ev := range p.synthesizer.Synthesize(ctx, req.Query, evidence) {
		switch ev.Kind {
		case AnswerChunk:
			err = enc.AnswerChunk(ev.Text)
		case SourcesUpdate:
			err = enc.Sources(ev.Sources)
		case AnswerError:
			return p.abort(ctx, enc, ev.Err)
		}
		if err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return enc.AnswerEnd()
}

// abort ends the stream with err as a streaming_error event. Cancellation
// writes nothing.
func (p *Pipeline) abort(ctx context.Context, enc *Encoder, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	log := zerolog.Ctx(ctx)
	if errors.Is(err, ErrNoRepository) {
		log.Info().Err(err).Msg("no repository to search")
	} else {
		log.Error().Err(err).Str("kind", string(upstream.KindOf(err))).Msg("search failed")
	}
	if enc.Stage().Terminal() {
		return nil
	}
	return enc.Error(err)
}
