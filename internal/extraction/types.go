package extraction

import (
	"context"
	"time"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

// Options carries per-upload context into every extraction strategy.
type Options struct {
	ContentType string
	FileName    string
	CapturedAt  *time.Time
}

// Candidate is a raw (name, value, unit) proposal from the heuristic or AI
// strategy, before biomarker resolution and confidence scoring.
type Candidate struct {
	Name  string
	Value float64
	Unit  string
}

// ParseOutcome is a specialized parser's verdict on one document. A parser
// that recognizes the vendor format but extracts nothing reports
// Matched=false so the supervisor falls through to the next strategy.
type ParseOutcome struct {
	Matched      bool
	Measurements []*domain.Measurement
	Summary      string
	Notes        []string
}

// SpecializedParser recognizes exactly one vendor report format.
type SpecializedParser interface {
	Name() string
	Parse(ctx context.Context, text string, index *Index, opts Options) (*ParseOutcome, error)
}

// Result is the supervisor's output snapshot for one upload.
type Result struct {
	Method       string
	Measurements []*domain.Measurement
	Summary      string
	Notes        []string
}

const (
	MethodHeuristic  = "heuristic"
	MethodAIEnhanced = "ai-enhanced"
	MethodNone       = "none"
)
