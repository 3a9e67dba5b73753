package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrueAgeParser(t *testing.T) {
	t.Parallel()

	parser := NewTrueAgeParser()
	index := testIndex()

	t.Run("extracts known metrics", func(t *testing.T) {
		t.Parallel()

		text := "TruDiagnostic TrueAge Complete Report\n" +
			"Your Biological Age: 38.42 years\n" +
			"DunedinPACE 0.874\n" +
			"Telomere Length: 6.918 kb\n"

		outcome, err := parser.Parse(context.Background(), text, index, Options{})
		require.NoError(t, err)

		assert.True(t, outcome.Matched)
		require.Len(t, outcome.Measurements, 3)

		assert.Equal(t, "Biological Age", outcome.Measurements[0].MarkerName)
		assert.InDelta(t, 38.4, outcome.Measurements[0].Value, 1e-9)
		assert.Equal(t, "years", outcome.Measurements[0].Unit)

		assert.Equal(t, "DunedinPACE", outcome.Measurements[1].MarkerName)
		assert.InDelta(t, 0.87, outcome.Measurements[1].Value, 1e-9)

		assert.InDelta(t, 6.92, outcome.Measurements[2].Value, 1e-9)
	})

	t.Run("gates on filename when vocabulary is absent", func(t *testing.T) {
		t.Parallel()

		text := "Epigenetic Age: 41.0\n"

		outcome, err := parser.Parse(context.Background(), text, index, Options{FileName: "trueage-2026.pdf"})
		require.NoError(t, err)

		assert.True(t, outcome.Matched)
		require.Len(t, outcome.Measurements, 1)
		assert.Equal(t, "Biological Age", outcome.Measurements[0].MarkerName)
	})

	t.Run("no gate means no match", func(t *testing.T) {
		t.Parallel()

		outcome, err := parser.Parse(context.Background(), "Biological Age: 38.4\n", index, Options{})
		require.NoError(t, err)

		assert.False(t, outcome.Matched)
		assert.Empty(t, outcome.Measurements)
	})

	t.Run("gate without metrics falls through", func(t *testing.T) {
		t.Parallel()

		outcome, err := parser.Parse(context.Background(), "TruDiagnostic cover letter, results to follow", index, Options{})
		require.NoError(t, err)

		assert.False(t, outcome.Matched)
		assert.NotEmpty(t, outcome.Notes)
	})
}

func TestQuestPanelParser(t *testing.T) {
	t.Parallel()

	parser := NewQuestPanelParser()
	index := testIndex()

	t.Run("extracts panel metrics", func(t *testing.T) {
		t.Parallel()

		text := "Quest Diagnostics Laboratory Report\n" +
			"GLUCOSE, FASTING: 95 mg/dL\n" +
			"HEMOGLOBIN A1C: 5.38 %\n" +
			"CHOLESTEROL, TOTAL: 182 mg/dL\n" +
			"TRIGLYCERIDES: 88 mg/dL\n"

		outcome, err := parser.Parse(context.Background(), text, index, Options{})
		require.NoError(t, err)

		assert.True(t, outcome.Matched)
		require.Len(t, outcome.Measurements, 4)

		assert.Equal(t, "Glucose", outcome.Measurements[0].MarkerName)
		assert.InDelta(t, 95, outcome.Measurements[0].Value, 1e-9)

		assert.Equal(t, "Hemoglobin A1c", outcome.Measurements[1].MarkerName)
		assert.InDelta(t, 5.4, outcome.Measurements[1].Value, 1e-9)
	})

	t.Run("no gate means no match", func(t *testing.T) {
		t.Parallel()

		outcome, err := parser.Parse(context.Background(), "GLUCOSE: 95 mg/dL\n", index, Options{})
		require.NoError(t, err)

		assert.False(t, outcome.Matched)
	})
}

func TestCSVExportParser(t *testing.T) {
	t.Parallel()

	parser := NewCSVExportParser()
	index := testIndex()

	t.Run("decodes marker and value columns", func(t *testing.T) {
		t.Parallel()

		text := "Marker,Value,Unit\n" +
			"Glucose,95,mg/dL\n" +
			"Hemoglobin A1c,5.4,%\n"

		outcome, err := parser.Parse(context.Background(), text, index, Options{})
		require.NoError(t, err)

		assert.True(t, outcome.Matched)
		require.Len(t, outcome.Measurements, 2)
		assert.Equal(t, "Glucose", outcome.Measurements[0].MarkerName)
		assert.Equal(t, "mg/dL", outcome.Measurements[0].Unit)
	})

	t.Run("accepts name and result column aliases", func(t *testing.T) {
		t.Parallel()

		text := "name,result,units\n" +
			"Ferritin,80,ng/mL\n"

		outcome, err := parser.Parse(context.Background(), text, index, Options{})
		require.NoError(t, err)

		assert.True(t, outcome.Matched)
		require.Len(t, outcome.Measurements, 1)
		assert.Equal(t, "Ferritin", outcome.Measurements[0].MarkerName)
	})

	t.Run("skips malformed rows and notes them", func(t *testing.T) {
		t.Parallel()

		text := "marker,value\n" +
			"Glucose,95\n" +
			"NoValueHere,\n" +
			",12\n"

		outcome, err := parser.Parse(context.Background(), text, index, Options{})
		require.NoError(t, err)

		assert.True(t, outcome.Matched)
		require.Len(t, outcome.Measurements, 1)
		assert.Equal(t, []string{"2 rows skipped as malformed"}, outcome.Notes)
	})

	t.Run("non tabular text is not a match", func(t *testing.T) {
		t.Parallel()

		outcome, err := parser.Parse(context.Background(), "Glucose: 95 mg/dL\n", index, Options{})
		require.NoError(t, err)

		assert.False(t, outcome.Matched)
	})

	t.Run("header without value column is not a match", func(t *testing.T) {
		t.Parallel()

		outcome, err := parser.Parse(context.Background(), "marker,comment\nGlucose,fine\n", index, Options{})
		require.NoError(t, err)

		assert.False(t, outcome.Matched)
	})
}
