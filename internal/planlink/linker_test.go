package planlink

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

type fakePlanStore struct {
	plans []*domain.Plan

	updatedPlanID string
	evidence      []domain.EvidenceNote
}

func (s *fakePlanStore) ActivePlans(_ context.Context, _ string, limit int) ([]*domain.Plan, error) {
	if len(s.plans) > limit {
		return s.plans[:limit], nil
	}
	return s.plans, nil
}

func (s *fakePlanStore) UpdateEvidence(_ context.Context, planID string, evidence []domain.EvidenceNote) error {
	s.updatedPlanID = planID
	s.evidence = evidence
	return nil
}

type fakeUploadLinker struct {
	uploadID string
	planID   string
}

func (l *fakeUploadLinker) SetPlanID(_ context.Context, uploadID, planID string) error {
	l.uploadID = uploadID
	l.planID = planID
	return nil
}

func measurementsFor(names ...string) []*domain.Measurement {
	out := make([]*domain.Measurement, 0, len(names))
	for _, name := range names {
		out = append(out, &domain.Measurement{MarkerName: name, Value: 1})
	}
	return out
}

func TestAutoLink_PicksHighestScoringPlan(t *testing.T) {
	t.Parallel()

	plans := &fakePlanStore{plans: []*domain.Plan{
		{ID: "plan-cardio", FocusAreas: []string{"cardiovascular"}},
		{ID: "plan-metabolic", FocusAreas: []string{"metabolic"}},
	}}
	uploads := &fakeUploadLinker{}
	linker := NewLinker(slog.New(slog.DiscardHandler), plans, uploads)

	measurements := measurementsFor("Glucose", "Hemoglobin A1c", "LDL Cholesterol")

	planID, err := linker.AutoLink(context.Background(), "upload-1", "user-1", measurements)
	require.NoError(t, err)

	assert.Equal(t, "plan-metabolic", planID)
	assert.Equal(t, "plan-metabolic", uploads.planID)
	assert.Equal(t, "upload-1", uploads.uploadID)

	require.Len(t, plans.evidence, 1)
	note := plans.evidence[0]
	assert.Equal(t, "upload-1", note.UploadID)
	assert.Equal(t, []string{"Glucose", "Hemoglobin A1c", "LDL Cholesterol"}, note.Markers)
	assert.Equal(t, []string{"metabolic"}, note.FocusAreas)
}

func TestAutoLink_TieBreaksTowardMostRecentPlan(t *testing.T) {
	t.Parallel()

	// ActivePlans returns most recent first; equal scores keep the first row.
	plans := &fakePlanStore{plans: []*domain.Plan{
		{ID: "plan-newer", FocusAreas: []string{"metabolic"}},
		{ID: "plan-older", FocusAreas: []string{"metabolic"}},
	}}
	linker := NewLinker(slog.New(slog.DiscardHandler), plans, &fakeUploadLinker{})

	planID, err := linker.AutoLink(context.Background(), "upload-1", "user-1", measurementsFor("Glucose"))
	require.NoError(t, err)

	assert.Equal(t, "plan-newer", planID)
}

func TestAutoLink_NoFocusAreaOverlapIsNoOp(t *testing.T) {
	t.Parallel()

	plans := &fakePlanStore{plans: []*domain.Plan{
		{ID: "plan-hormonal", FocusAreas: []string{"hormonal"}},
	}}
	uploads := &fakeUploadLinker{}
	linker := NewLinker(slog.New(slog.DiscardHandler), plans, uploads)

	planID, err := linker.AutoLink(context.Background(), "upload-1", "user-1", measurementsFor("Glucose"))
	require.NoError(t, err)

	assert.Empty(t, planID)
	assert.Empty(t, uploads.planID)
	assert.Empty(t, plans.updatedPlanID)
}

func TestAutoLink_UnknownMarkersAreNoOp(t *testing.T) {
	t.Parallel()

	plans := &fakePlanStore{plans: []*domain.Plan{
		{ID: "plan-metabolic", FocusAreas: []string{"metabolic"}},
	}}
	linker := NewLinker(slog.New(slog.DiscardHandler), plans, &fakeUploadLinker{})

	planID, err := linker.AutoLink(context.Background(), "upload-1", "user-1", measurementsFor("Mystery Marker"))
	require.NoError(t, err)

	assert.Empty(t, planID)
}

func TestAutoLink_EvidenceLogIsCapped(t *testing.T) {
	t.Parallel()

	existing := make([]domain.EvidenceNote, maxEvidenceEntries)
	for i := range existing {
		existing[i] = domain.EvidenceNote{UploadID: fmt.Sprintf("upload-%d", i), NotedAt: time.Now()}
	}

	plans := &fakePlanStore{plans: []*domain.Plan{
		{ID: "plan-metabolic", FocusAreas: []string{"metabolic"}, Evidence: existing},
	}}
	linker := NewLinker(slog.New(slog.DiscardHandler), plans, &fakeUploadLinker{})

	_, err := linker.AutoLink(context.Background(), "upload-new", "user-1", measurementsFor("Glucose"))
	require.NoError(t, err)

	require.Len(t, plans.evidence, maxEvidenceEntries)
	assert.Equal(t, "upload-1", plans.evidence[0].UploadID, "the oldest entry is dropped")
	assert.Equal(t, "upload-new", plans.evidence[maxEvidenceEntries-1].UploadID)
}

func TestAutoLink_MarkerListIsCapped(t *testing.T) {
	t.Parallel()

	names := make([]string, maxMarkersPerNote+5)
	for i := range names {
		names[i] = "Glucose"
	}

	plans := &fakePlanStore{plans: []*domain.Plan{
		{ID: "plan-metabolic", FocusAreas: []string{"metabolic"}},
	}}
	linker := NewLinker(slog.New(slog.DiscardHandler), plans, &fakeUploadLinker{})

	_, err := linker.AutoLink(context.Background(), "upload-1", "user-1", measurementsFor(names...))
	require.NoError(t, err)

	require.Len(t, plans.evidence, 1)
	assert.Len(t, plans.evidence[0].Markers, maxMarkersPerNote)
}
