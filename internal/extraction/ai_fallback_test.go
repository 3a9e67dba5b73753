package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAICandidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    []Candidate
	}{
		{
			name:    "plain array",
			content: `[{"markerName": "Glucose", "value": 92, "unit": "mg/dL"}]`,
			want:    []Candidate{{Name: "Glucose", Value: 92, Unit: "mg/dL"}},
		},
		{
			name: "fenced json block",
			content: "```json\n" +
				`[{"markerName": "TSH", "value": 2.1, "unit": "mIU/L"}]` +
				"\n```",
			want: []Candidate{{Name: "TSH", Value: 2.1, Unit: "mIU/L"}},
		},
		{
			name:    "string value is coerced",
			content: `[{"markerName": "Ferritin", "value": "80.5", "unit": "ng/mL"}]`,
			want:    []Candidate{{Name: "Ferritin", Value: 80.5, Unit: "ng/mL"}},
		},
		{
			name: "malformed elements are dropped, not fatal",
			content: `[
				{"markerName": "Glucose", "value": 92, "unit": "mg/dL"},
				{"markerName": "", "value": 1},
				{"markerName": "Broken", "value": "not-a-number"},
				{"markerName": "Vitamin D", "value": 42}
			]`,
			want: []Candidate{
				{Name: "Glucose", Value: 92, Unit: "mg/dL"},
				{Name: "Vitamin D", Value: 42},
			},
		},
		{
			name:    "empty array",
			content: "[]",
			want:    nil,
		},
		{
			name:    "prose instead of json",
			content: "I could not find any measurements in the text.",
			want:    nil,
		},
		{
			name:    "object instead of array",
			content: `{"markerName": "Glucose", "value": 92}`,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, parseAICandidates(tt.content))
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[]", stripCodeFence("```json\n[]\n```"))
	assert.Equal(t, "[]", stripCodeFence("```\n[]\n```"))
	assert.Equal(t, "[]", stripCodeFence("  [] "))
	assert.Equal(t, "no fences here", stripCodeFence("no fences here"))
}
