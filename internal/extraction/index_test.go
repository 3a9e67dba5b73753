package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

func TestIndex_Lookup(t *testing.T) {
	t.Parallel()

	source := &staticSource{biomarkers: []*domain.Biomarker{
		{ID: "bm-glucose", Slug: "glucose", DisplayName: "Glucose", CanonicalUnit: "mg/dl"},
	}}
	index := NewIndex(source)

	bm, ok, err := index.Lookup(context.Background(), "glucose")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Glucose", bm.DisplayName)

	_, ok, err = index.Lookup(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, source.calls, "the reference table loads once")
}

func TestIndex_SampleIsStable(t *testing.T) {
	t.Parallel()

	index := NewIndex(&staticSource{biomarkers: []*domain.Biomarker{
		{Slug: "tsh", DisplayName: "TSH"},
		{Slug: "glucose", DisplayName: "Glucose"},
		{Slug: "ferritin", DisplayName: "Ferritin"},
	}})

	sample, err := index.Sample(context.Background(), 2)
	require.NoError(t, err)

	require.Len(t, sample, 2)
	assert.Equal(t, "Ferritin", sample[0].DisplayName)
	assert.Equal(t, "Glucose", sample[1].DisplayName)

	all, err := index.Sample(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

type failingSource struct{}

func (failingSource) Biomarkers(context.Context) ([]*domain.Biomarker, error) {
	return nil, errors.New("connection refused")
}

func TestIndex_SourceFailurePropagates(t *testing.T) {
	t.Parallel()

	index := NewIndex(failingSource{})

	_, _, err := index.Lookup(context.Background(), "glucose")
	require.Error(t, err)
}
