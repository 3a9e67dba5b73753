package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// TrueAgeParser recognizes TruDiagnostic "TrueAge" epigenetic age reports.
type TrueAgeParser struct {
	gate    *regexp.Regexp
	metrics []metricSpec
}

func NewTrueAgeParser() *TrueAgeParser {
	return &TrueAgeParser{
		gate: regexp.MustCompile(`(?i)\b(TrueAge|TruAge|TruDiagnostic)\b`),
		metrics: []metricSpec{
			{
				name:      "Biological Age",
				unit:      "years",
				precision: 1,
				aliases: []*regexp.Regexp{
					metricAlias(`biological\s+age`),
					metricAlias(`epigenetic\s+age`),
				},
			},
			{
				name:      "DunedinPACE",
				unit:      "pace",
				precision: 2,
				aliases: []*regexp.Regexp{
					metricAlias(`dunedin\s*pace`),
					metricAlias(`pace\s+of\s+aging`),
				},
			},
			{
				name:      "Telomere Length",
				unit:      "kb",
				precision: 2,
				aliases: []*regexp.Regexp{
					metricAlias(`telomere\s+length`),
				},
			},
		},
	}
}

func (p *TrueAgeParser) Name() string {
	return "trueage"
}

func (p *TrueAgeParser) Parse(ctx context.Context, text string, index *Index, opts Options) (*ParseOutcome, error) {
	if !p.gate.MatchString(text) && !strings.Contains(strings.ToLower(opts.FileName), "trueage") {
		return &ParseOutcome{}, nil
	}

	measurements, err := extractMetrics(ctx, text, index, p.metrics, opts)
	if err != nil {
		return nil, err
	}

	// The vendor gate alone is not a match: without at least one metric the
	// supervisor must fall through to heuristic extraction.
	if len(measurements) == 0 {
		return &ParseOutcome{Notes: []string{"trueage vocabulary present but no metrics found"}}, nil
	}

	return &ParseOutcome{
		Matched:      true,
		Measurements: measurements,
		Summary:      fmt.Sprintf("TrueAge report: extracted %d measurements", len(measurements)),
	}, nil
}
