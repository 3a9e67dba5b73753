package extraction

import (
	"context"
	"fmt"
	"regexp"
)

// QuestPanelParser recognizes Quest Diagnostics blood panel summaries.
type QuestPanelParser struct {
	gate    *regexp.Regexp
	metrics []metricSpec
}

func NewQuestPanelParser() *QuestPanelParser {
	return &QuestPanelParser{
		gate: regexp.MustCompile(`(?i)quest\s+diagnostics`),
		metrics: []metricSpec{
			{
				name:      "Glucose",
				unit:      "mg/dL",
				precision: 0,
				aliases: []*regexp.Regexp{
					metricAlias(`glucose,?\s*(?:fasting|serum)?`),
				},
			},
			{
				name:      "Hemoglobin A1c",
				unit:      "%",
				precision: 1,
				aliases: []*regexp.Regexp{
					metricAlias(`hemoglobin\s+a1c`),
					metricAlias(`hba1c`),
				},
			},
			{
				name:      "Total Cholesterol",
				unit:      "mg/dL",
				precision: 0,
				aliases: []*regexp.Regexp{
					metricAlias(`cholesterol,?\s+total`),
					metricAlias(`total\s+cholesterol`),
				},
			},
			{
				name:      "LDL Cholesterol",
				unit:      "mg/dL",
				precision: 0,
				aliases: []*regexp.Regexp{
					metricAlias(`ldl[\s\-]?c(?:holesterol)?(?:\s+calc(?:ulated)?)?`),
				},
			},
			{
				name:      "HDL Cholesterol",
				unit:      "mg/dL",
				precision: 0,
				aliases: []*regexp.Regexp{
					metricAlias(`hdl[\s\-]?c(?:holesterol)?`),
				},
			},
			{
				name:      "Triglycerides",
				unit:      "mg/dL",
				precision: 0,
				aliases: []*regexp.Regexp{
					metricAlias(`triglycerides`),
				},
			},
		},
	}
}

func (p *QuestPanelParser) Name() string {
	return "quest-panel"
}

func (p *QuestPanelParser) Parse(ctx context.Context, text string, index *Index, opts Options) (*ParseOutcome, error) {
	if !p.gate.MatchString(text) {
		return &ParseOutcome{}, nil
	}

	measurements, err := extractMetrics(ctx, text, index, p.metrics, opts)
	if err != nil {
		return nil, err
	}

	if len(measurements) == 0 {
		return &ParseOutcome{Notes: []string{"quest vocabulary present but no metrics found"}}, nil
	}

	return &ParseOutcome{
		Matched:      true,
		Measurements: measurements,
		Summary:      fmt.Sprintf("Quest panel: extracted %d measurements", len(measurements)),
	}, nil
}
