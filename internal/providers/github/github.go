package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/pinpoint/internal/providers"
	"github.com/pinpoint/internal/retry"
	"github.com/pinpoint/pkg/models"
	"github.com/pinpoint/pkg/shared"
)

const (
	serviceName = "github"

	// commentsPageSize is the single page of comments read per issue.
	commentsPageSize = 100
)

// Options configures a Client.
type Options struct {
	Credentials       shared.ForgeCredentials
	Timeout           time.Duration // per remote call
	PerPage           int           // issues per search
	RequestsPerSecond float64
	Retry             retry.Config
	HTTPClient        *http.Client // base client; oauth2 wraps its transport
}

// Client is the GitHub implementation of providers.IssueTracker. It is safe
// for concurrent use.
type Client struct {
	gh      *gh.Client
	timeout time.Duration
	perPage int
	retry   retry.Config
}

var _ providers.IssueTracker = (*Client)(nil)

// limitTransport paces outgoing requests through a shared token bucket.
type limitTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// NewClient creates a GitHub client. An empty token gives anonymous access
// with GitHub's lower rate limits.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}

	httpClient := &http.Client{Transport: base.Transport, Timeout: base.Timeout}
	if opts.Credentials.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Credentials.Token})
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, ts)
	}

	transport := httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	httpClient.Transport = &limitTransport{
		base:    transport,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}

	client := gh.NewClient(httpClient)
	if opts.Credentials.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(opts.Credentials.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		client.BaseURL = u
	}

	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		gh:      client,
		timeout: timeout,
		perPage: perPage,
		retry:   opts.Retry,
	}, nil
}

func (c *Client) Name() string {
	return serviceName
}

// call runs one remote operation with the per-call timeout, retry policy
// and error classification applied.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) (*gh.Response, error)) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		start := time.Now()
		resp, err := fn(callCtx)
		ev := zerolog.Ctx(ctx).Debug().Str("op", op).Dur("took", time.Since(start))
		if resp != nil {
			ev = ev.Int("status", resp.StatusCode).Int("rate_remaining", resp.Rate.Remaining)
		}
		ev.Err(err).Msg("github call")

		return classify(op, resp, err)
	})
}

// RepoExists implements providers.IssueTracker.
func (c *Client) RepoExists(ctx context.Context, repo string) (bool, error) {
	owner, name, err := providers.SplitRepo(repo)
	if err != nil {
		return false, invalidRepo("get repository", repo)
	}

	err = c.call(ctx, "get repository", func(ctx context.Context) (*gh.Response, error) {
		_, resp, err := c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SearchIssues implements providers.IssueTracker. Results are sorted by
// reaction count, highest first, and pull requests are skipped.
func (c *Client) SearchIssues(ctx context.Context, repo, query string) ([]models.Issue, error) {
	if !models.ValidRepository(repo) {
		return nil, invalidRepo("search issues", repo)
	}

	q := fmt.Sprintf("repo:%s is:issue %s", repo, strings.TrimSpace(query))
	opts := &gh.SearchOptions{
		Sort:        "reactions",
		Order:       "desc",
		ListOptions: gh.ListOptions{PerPage: c.perPage},
	}

	var result *gh.IssuesSearchResult
	err := c.call(ctx, "search issues", func(ctx context.Context) (*gh.Response, error) {
		r, resp, err := c.gh.Search.Issues(ctx, q, opts)
		result = r
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	issues := make([]models.Issue, 0, len(result.Issues))
	for _, is := range result.Issues {
		if is == nil || is.IsPullRequest() {
			continue
		}
		issues = append(issues, issueFromGitHub(is))
	}
	return issues, nil
}

// ListComments implements providers.IssueTracker.
func (c *Client) ListComments(ctx context.Context, repo string, number int) ([]models.Comment, error) {
	owner, name, err := providers.SplitRepo(repo)
	if err != nil {
		return nil, invalidRepo("list comments", repo)
	}

	opts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: commentsPageSize},
	}

	var raw []*gh.IssueComment
	err = c.call(ctx, "list comments", func(ctx context.Context) (*gh.Response, error) {
		r, resp, err := c.gh.Issues.ListComments(ctx, owner, name, number, opts)
		raw = r
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	comments := make([]models.Comment, 0, len(raw))
	for _, rc := range raw {
		if rc == nil {
			continue
		}
		comments = append(comments, commentFromGitHub(rc))
	}
	return comments, nil
}

func issueFromGitHub(is *gh.Issue) models.Issue {
	author := is.GetUser().GetLogin()
	if author == "" {
		author = models.DefaultCommentAuthor
	}
	return models.Issue{
		ID:        is.GetID(),
		Number:    is.GetNumber(),
		Title:     is.GetTitle(),
		URL:       is.GetHTMLURL(),
		Body:      is.GetBody(),
		State:     is.GetState(),
		Author:    author,
		Reactions: is.GetReactions().GetTotalCount(),
		CreatedAt: is.GetCreatedAt().Time,
	}
}

func commentFromGitHub(rc *gh.IssueComment) models.Comment {
	author := rc.GetUser().GetLogin()
	if author == "" {
		author = models.DefaultCommentAuthor
	}
	return models.Comment{
		Body:            rc.GetBody(),
		Author:          author,
		URL:             rc.GetHTMLURL(),
		EngagementScore: rc.GetReactions().GetTotalCount(),
	}
}
