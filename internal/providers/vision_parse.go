package providers

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// visionReplySchema is the canonical schema for the judge's JSON verdict.
const visionReplySchema = `{
	"type": "object",
	"required": ["decision", "score"],
	"properties": {
		"decision": {"type": "string", "enum": ["YES", "NO"]},
		"score": {"type": "number", "minimum": 0, "maximum": 1},
		"reason": {"type": "string"},
		"similar_count": {"type": "integer", "minimum": 0}
	}
}`

var (
	visionSchemaOnce sync.Once
	visionSchema     *jsonschema.Schema
)

func compiledVisionSchema() *jsonschema.Schema {
	visionSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("vision.json", bytes.NewReader([]byte(visionReplySchema))); err != nil {
			panic(err)
		}
		visionSchema = compiler.MustCompile("vision.json")
	})
	return visionSchema
}

// visionReply mirrors the JSON structure the judge is instructed to return.
type visionReply struct {
	Decision     string  `json:"decision"`
	Score        float64 `json:"score"`
	Reason       string  `json:"reason"`
	SimilarCount int     `json:"similar_count"`
}

// ParseVisionReply parses the judge's raw reply into a VisionResult.
// The happy path is schema-validated JSON; the single fallback branch is a
// low-confidence heuristic decision from affirmative-token detection in the
// raw text. It never fails.
func ParseVisionReply(content string) *VisionResult {
	candidate := stripCodeFences(content)
	if candidate == "" {
		candidate = extractJSONCandidate(content)
	}

	if candidate != "" {
		var doc any
		if err := json.Unmarshal([]byte(candidate), &doc); err == nil {
			if err := compiledVisionSchema().Validate(doc); err == nil {
				var reply visionReply
				if err := json.Unmarshal([]byte(candidate), &reply); err == nil {
					reason := reply.Reason
					if reason == "" {
						reason = truncate(content, 50)
					}
					return &VisionResult{
						Decision:   reply.Decision == "YES",
						Score:      reply.Score,
						Reason:     reason,
						MatchCount: reply.SimilarCount,
					}
				}
			}
		}
	}

	// Fallback: heuristic decision from the raw text.
	upper := strings.ToUpper(content)
	return &VisionResult{
		Decision:   strings.Contains(upper, "YES"),
		Score:      0.5,
		Reason:     truncate(content, 100),
		MatchCount: 0,
	}
}

// stripCodeFences removes a surrounding markdown code fence, returning the
// inner text, or "" if the content is not fenced.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONCandidate pulls the outermost {...} span out of surrounding
// prose, or "" if none exists.
func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(trimmed, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
