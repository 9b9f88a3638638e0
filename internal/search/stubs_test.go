package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pinpoint/internal/llm"
	"github.com/pinpoint/pkg/models"
)

// stubTracker is an in-memory IssueTracker that records every call.
type stubTracker struct {
	mu    sync.Mutex
	calls []string

	exists      map[string]bool
	existsErr   map[string]error
	discover    map[string]string
	discoverErr error
	issues      map[string][]models.Issue // by query
	searchErr   map[string]error
	comments    map[int][]models.Comment
	commentErr  map[int]error
	onSearch    func() // runs inside every SearchIssues call
}

func (s *stubTracker) record(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *stubTracker) Calls(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (s *stubTracker) Name() string { return "stub" }

func (s *stubTracker) RepoExists(ctx context.Context, repo string) (bool, error) {
	s.record("exists:%s", repo)
	if err := s.existsErr[repo]; err != nil {
		return false, err
	}
	return s.exists[repo], nil
}

func (s *stubTracker) DiscoverRepository(ctx context.Context, technology string) (string, bool, error) {
	s.record("discover:%s", technology)
	if s.discoverErr != nil {
		return "", false, s.discoverErr
	}
	repo, ok := s.discover[technology]
	return repo, ok, nil
}

func (s *stubTracker) SearchIssues(ctx context.Context, repo, query string) ([]models.Issue, error) {
	s.record("search:%s", query)
	if s.onSearch != nil {
		s.onSearch()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.searchErr[query]; err != nil {
		return nil, err
	}
	return s.issues[query], nil
}

func (s *stubTracker) ListComments(ctx context.Context, repo string, number int) ([]models.Comment, error) {
	s.record("comments:%d", number)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.commentErr[number]; err != nil {
		return nil, err
	}
	return s.comments[number], nil
}

// stubGenerator returns a fixed analysis and streams fixed chunks.
type stubGenerator struct {
	analysis    string
	analysisErr error
	chunks      []string
	streamErr   error
	panicOn     string

	mu      sync.Mutex
	prompts []llm.Prompt
}

func (g *stubGenerator) Name() string { return "stub-llm" }

func (g *stubGenerator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	g.mu.Unlock()
	if g.panicOn == "generate" {
		panic("generator exploded")
	}
	if g.analysisErr != nil {
		return "", g.analysisErr
	}
	return g.analysis, nil
}

func (g *stubGenerator) Stream(ctx context.Context, p llm.Prompt, onChunk llm.ChunkFunc) error {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	g.mu.Unlock()
	for _, c := range g.chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return g.streamErr
}

func issue(id int64, number int) models.Issue {
	return models.Issue{
		ID:     id,
		Number: number,
		Title:  fmt.Sprintf("issue %d", number),
		URL:    fmt.Sprintf("https://github.com/acme/widget/issues/%d", number),
		State:  "open",
		Author: "someone",
	}
}
