package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/memoryball/pkg/types"
)

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseAnalysisResult parses a model reply into subjects. Replies without usable JSON
// yield an empty result rather than an error: no subjects is a normal outcome.
func ParseAnalysisResult(raw string) (*types.AnalysisResult, error) {
	raw = SanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return &types.AnalysisResult{
			Description: "Model returned non-JSON response",
			Tags:        []string{"non-json"},
		}, nil
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return &types.AnalysisResult{
			Description: "Failed to parse model response",
			Tags:        []string{"parse-error"},
		}, nil
	}

	subjects := result.Subjects[:0]
	for _, s := range result.Subjects {
		if strings.EqualFold(strings.TrimSpace(s.Label), "none") {
			continue
		}
		s.Box = NormalizeBox(s.Box)
		if s.Box.W <= 0 || s.Box.H <= 0 {
			continue
		}
		s.Confidence = clamp(s.Confidence, 0, 1)
		subjects = append(subjects, s)
	}
	result.Subjects = subjects
	result.Tags = NormalizeTags(result.Tags)

	return &result, nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// NormalizeBox clamps a normalized box into [0,1] and trims the extent at the image edge.
func NormalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}

// NormalizeTags ensures tags are cleaned and limited to 5 entries
func NormalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
