package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/avoronkov/lab_ingest/internal/aiclient"
)

const (
	aiTriggerCandidates = 5
	aiTriggerMinTextLen = 100
	aiMaxExcerptChars   = 8000
	aiBiomarkerSample   = 12
	aiTemperature       = 0.1
)

// Completer is the AI completion collaborator boundary.
type Completer interface {
	Complete(ctx context.Context, req aiclient.CompletionRequest) (string, error)
}

const aiSystemPrompt = `You extract laboratory biomarker measurements from report text. ` +
	`Respond with a strict JSON array of objects shaped exactly like ` +
	`[{"markerName": "Glucose", "value": 92, "unit": "mg/dL"}]. ` +
	`Return [] when nothing can be extracted. No prose, no markdown.`

func (s *Supervisor) aiCandidates(ctx context.Context, text string) ([]Candidate, error) {
	excerpt := text
	truncated := false
	if len(excerpt) > aiMaxExcerptChars {
		excerpt = excerpt[:aiMaxExcerptChars]
		truncated = true
	}

	sample, err := s.index.Sample(ctx, aiBiomarkerSample)
	if err != nil {
		return nil, err
	}

	var prompt strings.Builder
	prompt.WriteString("Known biomarkers (name, canonical unit):\n")
	for _, bm := range sample {
		fmt.Fprintf(&prompt, "- %s (%s)\n", bm.DisplayName, bm.CanonicalUnit)
	}
	prompt.WriteString("\nReport text")
	if truncated {
		prompt.WriteString(" (truncated)")
	}
	prompt.WriteString(":\n")
	prompt.WriteString(excerpt)

	content, err := s.completer.Complete(ctx, aiclient.CompletionRequest{
		SystemPrompt: aiSystemPrompt,
		UserPrompt:   prompt.String(),
		Temperature:  aiTemperature,
	})
	if err != nil {
		return nil, err
	}

	return parseAICandidates(content), nil
}

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if match := codeFence.FindStringSubmatch(content); match != nil {
		return strings.TrimSpace(match[1])
	}
	return content
}

// parseAICandidates decodes the constrained JSON array. Any shape mismatch
// degrades to fewer (or zero) candidates, never to an error: graceful
// degradation is the contract for this strategy.
func parseAICandidates(content string) []Candidate {
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &elements); err != nil {
		return nil
	}

	var candidates []Candidate

	for _, raw := range elements {
		var obj struct {
			MarkerName string `json:"markerName"`
			Value      any    `json:"value"`
			Unit       string `json:"unit"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}

		name := strings.TrimSpace(obj.MarkerName)
		if name == "" {
			continue
		}

		value, ok := coerceFloat(obj.Value)
		if !ok {
			continue
		}

		candidates = append(candidates, Candidate{
			Name:  name,
			Value: value,
			Unit:  strings.TrimSpace(obj.Unit),
		})
	}

	return candidates
}

func coerceFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
