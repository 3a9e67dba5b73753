package planlink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

const (
	maxPlansConsidered = 5
	maxEvidenceEntries = 25
	maxMarkersPerNote  = 10
)

// markerFocusAreas maps normalized marker slugs onto the focus-area buckets
// plans declare.
var markerFocusAreas = map[string]string{
	"glucose":          "metabolic",
	"fastingglucose":   "metabolic",
	"hemoglobina1c":    "metabolic",
	"hba1c":            "metabolic",
	"insulin":          "metabolic",
	"totalcholesterol": "cardiovascular",
	"cholesteroltotal": "cardiovascular",
	"ldlcholesterol":   "cardiovascular",
	"hdlcholesterol":   "cardiovascular",
	"triglycerides":    "cardiovascular",
	"apolipoproteinb":  "cardiovascular",
	"biologicalage":    "longevity",
	"epigeneticage":    "longevity",
	"dunedinpace":      "longevity",
	"telomerelength":   "longevity",
	"crp":              "inflammation",
	"hscrp":            "inflammation",
	"homocysteine":     "inflammation",
	"vitamind":         "micronutrients",
	"vitaminb12":       "micronutrients",
	"ferritin":         "micronutrients",
	"tsh":              "hormonal",
	"freet3":           "hormonal",
	"freet4":           "hormonal",
	"testosterone":     "hormonal",
	"cortisol":         "hormonal",
}

type PlanStore interface {
	ActivePlans(ctx context.Context, userID string, limit int) ([]*domain.Plan, error)
	UpdateEvidence(ctx context.Context, planID string, evidence []domain.EvidenceNote) error
}

type UploadLinker interface {
	SetPlanID(ctx context.Context, uploadID, planID string) error
}

// Linker attaches an upload's extracted measurements to the user's most
// relevant active plan as evidence.
type Linker struct {
	log     *slog.Logger
	plans   PlanStore
	uploads UploadLinker
}

func NewLinker(log *slog.Logger, plans PlanStore, uploads UploadLinker) *Linker {
	return &Linker{
		log:     log,
		plans:   plans,
		uploads: uploads,
	}
}

// AutoLink scores the user's active plans against the measurements' focus
// areas and links the best match. Returns the linked plan id, or empty when
// nothing matched. Ties break toward the most recent plan.
func (l *Linker) AutoLink(ctx context.Context, uploadID, userID string, measurements []*domain.Measurement) (string, error) {
	scores, markers := focusAreaScores(measurements)
	if len(scores) == 0 {
		return "", nil
	}

	plans, err := l.plans.ActivePlans(ctx, userID, maxPlansConsidered)
	if err != nil {
		return "", fmt.Errorf("failed to load active plans: %w", err)
	}

	best := pickPlan(plans, scores)
	if best == nil {
		return "", nil
	}

	if err := l.uploads.SetPlanID(ctx, uploadID, best.ID); err != nil {
		return "", fmt.Errorf("failed to link upload to plan: %w", err)
	}

	note := domain.EvidenceNote{
		UploadID:   uploadID,
		Markers:    markers,
		FocusAreas: matchedAreas(best, scores),
		NotedAt:    time.Now().UTC(),
	}

	evidence := appendEvidence(best.Evidence, note)
	if err := l.plans.UpdateEvidence(ctx, best.ID, evidence); err != nil {
		return "", fmt.Errorf("failed to append evidence: %w", err)
	}

	l.log.InfoContext(ctx, "upload linked to plan",
		slog.String("upload_id", uploadID),
		slog.String("plan_id", best.ID),
		slog.Any("focus_areas", note.FocusAreas),
	)

	return best.ID, nil
}

func focusAreaScores(measurements []*domain.Measurement) (map[string]int, []string) {
	scores := make(map[string]int)

	var markers []string
	for _, m := range measurements {
		if len(markers) < maxMarkersPerNote {
			markers = append(markers, m.MarkerName)
		}

		area, ok := markerFocusAreas[domain.NormalizeMarkerName(m.MarkerName)]
		if !ok {
			continue
		}
		scores[area]++
	}

	return scores, markers
}

// pickPlan keeps the store's most-recent-first order, so on equal scores the
// first (most recent) plan wins.
func pickPlan(plans []*domain.Plan, scores map[string]int) *domain.Plan {
	var (
		best      *domain.Plan
		bestScore int
	)

	for _, plan := range plans {
		score := 0
		for _, area := range plan.FocusAreas {
			score += scores[area]
		}

		if score > bestScore {
			best = plan
			bestScore = score
		}
	}

	return best
}

func matchedAreas(plan *domain.Plan, scores map[string]int) []string {
	var areas []string
	for _, area := range plan.FocusAreas {
		if scores[area] > 0 {
			areas = append(areas, area)
		}
	}
	return areas
}

// appendEvidence appends one note and FIFO-trims the log to its cap, always
// retaining the most recent entries.
func appendEvidence(evidence []domain.EvidenceNote, note domain.EvidenceNote) []domain.EvidenceNote {
	evidence = append(evidence, note)
	if len(evidence) > maxEvidenceEntries {
		evidence = evidence[len(evidence)-maxEvidenceEntries:]
	}
	return evidence
}
