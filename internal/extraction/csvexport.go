package extraction

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
)

// CSVExportParser handles tabular lab exports: a header row naming at least a
// marker column and a value column, one measurement per row.
type CSVExportParser struct{}

func NewCSVExportParser() *CSVExportParser {
	return &CSVExportParser{}
}

type csvExportRow struct {
	Marker string `csv:"marker"`
	Name   string `csv:"name"`
	Value  string `csv:"value"`
	Result string `csv:"result"`
	Unit   string `csv:"unit"`
	Units  string `csv:"units"`
}

func (r *csvExportRow) marker() string {
	if r.Marker != "" {
		return r.Marker
	}
	return r.Name
}

func (r *csvExportRow) value() string {
	if r.Value != "" {
		return r.Value
	}
	return r.Result
}

func (r *csvExportRow) unit() string {
	if r.Unit != "" {
		return r.Unit
	}
	return r.Units
}

func (p *CSVExportParser) Name() string {
	return "csv-export"
}

func (p *CSVExportParser) Parse(ctx context.Context, text string, index *Index, opts Options) (*ParseOutcome, error) {
	body, ok := normalizeCSVHeader(text)
	if !ok {
		return &ParseOutcome{}, nil
	}

	reader := csv.NewReader(strings.NewReader(body))
	reader.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		return &ParseOutcome{}, nil
	}

	var (
		out     ParseOutcome
		skipped int
	)

	for {
		var row csvExportRow

		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Malformed rows are skipped, not fatal.
			skipped++
			continue
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(row.value()), 64)
		if err != nil || strings.TrimSpace(row.marker()) == "" {
			skipped++
			continue
		}

		m, err := resolveCandidate(ctx, index, Candidate{
			Name:  strings.TrimSpace(row.marker()),
			Value: value,
			Unit:  strings.TrimSpace(row.unit()),
		}, opts)
		if err != nil {
			return nil, err
		}

		out.Measurements = append(out.Measurements, m)
	}

	if len(out.Measurements) == 0 {
		return &ParseOutcome{Notes: []string{"csv header present but no decodable rows"}}, nil
	}

	out.Matched = true
	out.Summary = fmt.Sprintf("CSV export: extracted %d measurements", len(out.Measurements))
	if skipped > 0 {
		out.Notes = append(out.Notes, fmt.Sprintf("%d rows skipped as malformed", skipped))
	}

	return &out, nil
}

// normalizeCSVHeader lowercases the header row so vendor capitalization does
// not defeat column matching, and reports whether the document looks like a
// measurement export at all.
func normalizeCSVHeader(text string) (string, bool) {
	lines := strings.Split(strings.TrimLeft(text, "\r\n \t"), "\n")
	if len(lines) < 2 {
		return "", false
	}

	header := strings.ToLower(strings.TrimSpace(lines[0]))
	fields := strings.Split(header, ",")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	header = strings.Join(fields, ",")

	hasMarker := strings.Contains(header, "marker") || strings.Contains(header, "name")
	hasValue := strings.Contains(header, "value") || strings.Contains(header, "result")

	if !strings.Contains(header, ",") || !hasMarker || !hasValue {
		return "", false
	}

	lines[0] = header

	return strings.Join(lines, "\n"), true
}
