package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

// Supervisor orchestrates the extraction strategies in strict priority order:
// specialized parsers, heuristic scanning, then the AI fallback when the
// heuristic yield is too thin.
type Supervisor struct {
	log       *slog.Logger
	index     *Index
	completer Completer // nil disables the AI fallback
	parsers   []SpecializedParser
}

func NewSupervisor(log *slog.Logger, index *Index, completer Completer, parsers []SpecializedParser) *Supervisor {
	return &Supervisor{
		log:       log,
		index:     index,
		completer: completer,
		parsers:   parsers,
	}
}

// DefaultParsers returns the specialized parser registry in priority order.
func DefaultParsers() []SpecializedParser {
	return []SpecializedParser{
		NewTrueAgeParser(),
		NewQuestPanelParser(),
		NewCSVExportParser(),
	}
}

func (s *Supervisor) Supervise(ctx context.Context, text string, opts Options) (*Result, error) {
	for _, parser := range s.parsers {
		outcome, err := parser.Parse(ctx, text, s.index, opts)
		if err != nil {
			return nil, fmt.Errorf("parser %q failed: %w", parser.Name(), err)
		}

		if outcome.Matched && len(outcome.Measurements) > 0 {
			s.log.DebugContext(ctx, "specialized parser matched",
				slog.String("parser", parser.Name()),
				slog.Int("measurements", len(outcome.Measurements)),
			)

			return &Result{
				Method:       parser.Name(),
				Measurements: outcome.Measurements,
				Summary:      outcome.Summary,
				Notes:        outcome.Notes,
			}, nil
		}
	}

	candidates := HeuristicCandidates(text)
	method := MethodHeuristic

	if s.completer != nil && len(candidates) < aiTriggerCandidates && len(text) > aiTriggerMinTextLen {
		merged, usedAI := s.mergeAICandidates(ctx, text, candidates)
		candidates = merged
		if usedAI {
			method = MethodAIEnhanced
		}
	}

	measurements := make([]*domain.Measurement, 0, len(candidates))
	for _, c := range candidates {
		m, err := resolveCandidate(ctx, s.index, c, opts)
		if err != nil {
			return nil, err
		}
		measurements = append(measurements, m)
	}

	result := &Result{
		Method:       method,
		Measurements: measurements,
		Summary:      fmt.Sprintf("%s extraction found %d measurements", method, len(measurements)),
	}

	if len(measurements) == 0 {
		result.Method = MethodNone
		result.Summary = "no measurements extracted"
		result.Notes = append(result.Notes, zeroResultNote(opts.ContentType))
	}

	return result, nil
}

// mergeAICandidates runs the AI fallback and merges its proposals, dropping
// any whose normalized name collides with an existing heuristic candidate.
// Fallback failures degrade to heuristic-only results.
func (s *Supervisor) mergeAICandidates(ctx context.Context, text string, heuristic []Candidate) ([]Candidate, bool) {
	proposed, err := s.aiCandidates(ctx, text)
	if err != nil {
		s.log.WarnContext(ctx, "ai fallback failed, degrading to heuristic results",
			slog.String("err", err.Error()),
		)
		return heuristic, false
	}

	seen := make(map[string]struct{}, len(heuristic))
	for _, c := range heuristic {
		seen[domain.NormalizeMarkerName(c.Name)] = struct{}{}
	}

	merged := heuristic
	added := false

	for _, c := range proposed {
		slug := domain.NormalizeMarkerName(c.Name)
		if _, dup := seen[slug]; dup {
			continue
		}

		seen[slug] = struct{}{}
		merged = append(merged, c)
		added = true
	}

	return merged, added
}

func zeroResultNote(contentType string) string {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "image/") || strings.Contains(ct, "pdf") {
		return "source may be image-based with no extractable text layer"
	}
	return "no recognizable measurements in the provided text"
}
