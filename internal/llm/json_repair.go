package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats records what RepairJSON had to do to a model response.
type RepairStats struct {
	OriginalBytes int           `json:"original_bytes"`
	RepairedBytes int           `json:"repaired_bytes"`
	Strategies    []string      `json:"strategies"`
	RepairTime    time.Duration `json:"repair_time"`
	WasRepaired   bool          `json:"was_repaired"`
}

var (
	fencePattern         = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// RepairJSON turns a model response into valid JSON, trying in order:
// markdown fence removal, extraction of the outermost value, trailing comma
// removal, and finally the jsonrepair library.
func RepairJSON(raw string) (string, RepairStats, error) {
	start := time.Now()
	stats := RepairStats{OriginalBytes: len(raw)}

	done := func(s string, err error) (string, RepairStats, error) {
		stats.RepairedBytes = len(s)
		stats.RepairTime = time.Since(start)
		stats.WasRepaired = len(stats.Strategies) > 0
		return s, stats, err
	}

	candidate := strings.TrimSpace(raw)
	if json.Valid([]byte(candidate)) {
		return done(candidate, nil)
	}

	if m := fencePattern.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
		stats.Strategies = append(stats.Strategies, "code_fence")
		if json.Valid([]byte(candidate)) {
			return done(candidate, nil)
		}
	}

	if extracted := extractJSON(candidate); extracted != "" && extracted != candidate {
		candidate = extracted
		stats.Strategies = append(stats.Strategies, "extract")
		if json.Valid([]byte(candidate)) {
			return done(candidate, nil)
		}
	}

	if trailingCommaPattern.MatchString(candidate) {
		candidate = trailingCommaPattern.ReplaceAllString(candidate, "$1")
		stats.Strategies = append(stats.Strategies, "trailing_commas")
		if json.Valid([]byte(candidate)) {
			return done(candidate, nil)
		}
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err == nil && json.Valid([]byte(repaired)) {
		stats.Strategies = append(stats.Strategies, "jsonrepair_library")
		return done(repaired, nil)
	}

	return done(candidate, fmt.Errorf("JSON repair failed after %d strategies", len(stats.Strategies)+1))
}

// extractJSON returns the text from the first '{' or '[' to the last
// matching closer, or "" when there is none.
func extractJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}
