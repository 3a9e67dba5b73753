package extraction

import (
	"context"
	"math"
	"regexp"
	"strconv"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

// metricSpec is one named metric a specialized parser knows how to find:
// alias patterns, the vendor's reporting unit, and a rounding precision.
type metricSpec struct {
	name      string
	unit      string
	precision int
	aliases   []*regexp.Regexp
}

// metricAlias compiles an alias expression into the shared
// `<alias> [:|-]* <number>` search pattern.
func metricAlias(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr + `\s*[:\-]*\s*(-?\d+(?:\.\d+)?)`)
}

func extractMetrics(ctx context.Context, text string, index *Index, specs []metricSpec, opts Options) ([]*domain.Measurement, error) {
	var measurements []*domain.Measurement

	for _, spec := range specs {
		for _, alias := range spec.aliases {
			match := alias.FindStringSubmatch(text)
			if match == nil {
				continue
			}

			value, err := strconv.ParseFloat(match[1], 64)
			if err != nil {
				continue
			}

			m, err := resolveCandidate(ctx, index, Candidate{
				Name:  spec.name,
				Value: roundTo(value, spec.precision),
				Unit:  spec.unit,
			}, opts)
			if err != nil {
				return nil, err
			}

			measurements = append(measurements, m)

			break
		}
	}

	return measurements, nil
}

func roundTo(value float64, precision int) float64 {
	p := math.Pow10(precision)
	return math.Round(value*p) / p
}

// resolveCandidate maps a raw candidate onto the biomarker index and scores
// it: 0.85 when mapped, 0.65 when not, +0.10 when the unit agrees with the
// canonical one, capped at 1.0. Unmapped candidates keep their raw label and
// are flagged; anything under 0.7 is flagged low-confidence.
func resolveCandidate(ctx context.Context, index *Index, c Candidate, opts Options) (*domain.Measurement, error) {
	slug := domain.NormalizeMarkerName(c.Name)

	bm, mapped, err := index.Lookup(ctx, slug)
	if err != nil {
		return nil, err
	}

	name := c.Name
	confidence := 0.65

	var biomarkerID *string
	var flags []string

	if mapped {
		name = bm.DisplayName
		biomarkerID = &bm.ID
		confidence = 0.85

		if c.Unit != "" && domain.NormalizeUnit(c.Unit) == domain.NormalizeUnit(bm.CanonicalUnit) {
			confidence += 0.10
		}
	} else {
		flags = append(flags, domain.FlagUnmappedBiomarker)
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.7 {
		flags = append(flags, domain.FlagLowConfidence)
	}

	return &domain.Measurement{
		MarkerName:  name,
		BiomarkerID: biomarkerID,
		Value:       c.Value,
		Unit:        c.Unit,
		Confidence:  confidence,
		Flags:       flags,
		CapturedAt:  opts.CapturedAt,
	}, nil
}
