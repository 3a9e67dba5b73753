package domain

import "strings"

// Biomarker is a canonical marker definition from the reference table.
type Biomarker struct {
	ID            string `db:"id"`
	Slug          string `db:"slug"`
	DisplayName   string `db:"display_name"`
	CanonicalUnit string `db:"canonical_unit"`
}

// NormalizeMarkerName reduces a raw marker label to the slug form used for
// biomarker lookups and cross-strategy deduplication: lowercase with every
// non-alphanumeric rune dropped.
func NormalizeMarkerName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeUnit canonicalizes a unit string for comparison. Case, spaces and
// the micro sign spelling all vary across lab vendors.
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.ReplaceAll(u, " ", "")
	u = strings.ReplaceAll(u, "µ", "u")
	return u
}
