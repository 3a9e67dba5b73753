package extraction

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxHeuristicCandidates bounds per-document scanning cost.
const MaxHeuristicCandidates = 60

// heuristicLine proposes `label [:|-] value unit?` from one line of text.
var heuristicLine = regexp.MustCompile(
	`^\s*([A-Za-z][A-Za-z0-9 ()%/.\-]{0,60}?)\s*[:\-]\s*(-?\d+(?:\.\d+)?)\s*([A-Za-z%µ][A-Za-z0-9µ%/^.]*)?`,
)

// HeuristicCandidates scans arbitrary text line by line and proposes
// measurement candidates without any knowledge of the report format.
// Unparsable lines are discarded.
func HeuristicCandidates(text string) []Candidate {
	var candidates []Candidate

	for _, line := range strings.Split(text, "\n") {
		if len(candidates) >= MaxHeuristicCandidates {
			break
		}

		match := heuristicLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		value, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}

		name := strings.TrimSpace(match[1])
		if name == "" {
			continue
		}

		candidates = append(candidates, Candidate{
			Name:  name,
			Value: value,
			Unit:  strings.TrimSpace(match[3]),
		})
	}

	return candidates
}
