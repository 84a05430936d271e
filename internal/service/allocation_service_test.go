package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/registry"
)

func TestAllocationAddReportsExistingAssessment(t *testing.T) {
	env := newTestEnv(t)
	workshop := env.seedWorkshop(t, func(w *models.Workshop) { w.Phase = models.PhaseSubmission })
	submission := env.seedSubmission(t, workshop.ID, 1, false)

	created, err := env.allocations.AddAllocation(context.Background(), teacher, submission.ID, 2, 1)
	require.NoError(t, err)
	require.False(t, created.Existing)

	again, err := env.allocations.AddAllocation(context.Background(), teacher, submission.ID, 2, 1)
	require.ErrorIs(t, err, allocation.ErrAllocationExists)
	require.True(t, again.Existing)
	require.Equal(t, created.AssessmentID, again.AssessmentID)
}

func TestAllocationAddGuards(t *testing.T) {
	env := newTestEnv(t)
	workshop := env.seedWorkshop(t, func(w *models.Workshop) { w.Phase = models.PhaseClosed })
	submission := env.seedSubmission(t, workshop.ID, 1, false)

	_, err := env.allocations.AddAllocation(context.Background(), student(3), submission.ID, 2, 1)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.allocations.AddAllocation(context.Background(), teacher, submission.ID, 2, 1)
	require.ErrorIs(t, err, ErrPhaseForbidden)

	_, err = env.allocations.AddAllocation(context.Background(), teacher, 999, 2, 1)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestAllocationRemoveKeepsGradedWithoutForce(t *testing.T) {
	env := newTestEnv(t)
	workshop := env.seedWorkshop(t, func(w *models.Workshop) { w.Phase = models.PhaseAssessment })
	submission := env.seedSubmission(t, workshop.ID, 1, false)
	assessment := env.seedAssessment(t, submission.ID, 2, 1, ptr(60), nil)

	err := env.allocations.RemoveAllocation(context.Background(), teacher, assessment.ID, false)
	require.ErrorIs(t, err, allocation.ErrAssessmentGraded)

	require.NoError(t, env.allocations.RemoveAllocation(context.Background(), teacher, assessment.ID, true))
	require.ErrorIs(t, env.allocations.RemoveAllocation(context.Background(), teacher, assessment.ID, true), ErrAssessmentNotFound)
}

func TestAllocationExecuteManual(t *testing.T) {
	env := newTestEnv(t)
	workshop := env.seedWorkshop(t, func(w *models.Workshop) { w.Phase = models.PhaseSubmission })
	first := env.seedSubmission(t, workshop.ID, 1, false)
	second := env.seedSubmission(t, workshop.ID, 2, false)

	settings, err := json.Marshal(allocation.ManualSettings{Add: []allocation.ManualPair{
		{SubmissionID: first.ID, ReviewerID: 2},
		{SubmissionID: second.ID, ReviewerID: 1},
	}})
	require.NoError(t, err)

	resp, err := env.allocations.Execute(context.Background(), teacher, workshop.ID, allocation.ManualName, settings)
	require.NoError(t, err)
	require.Equal(t, allocation.ManualName, resp.Allocator)
	require.Equal(t, allocation.StatusExecuted.String(), resp.Status)
	require.Equal(t, "2 added, 0 removed, 0 failed", resp.Message)
	require.Equal(t, []string{EventAllocationExecuted}, env.events.names())

	var count int64
	require.NoError(t, env.db.Model(&models.Assessment{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestAllocationExecuteUnknownAllocator(t *testing.T) {
	env := newTestEnv(t)
	workshop := env.seedWorkshop(t, nil)

	_, err := env.allocations.Execute(context.Background(), teacher, workshop.ID, "lottery", nil)
	require.ErrorIs(t, err, registry.ErrUnknown)
	require.Empty(t, env.events.names())
}

func TestAllocationRunScheduledWithoutScheduledAllocator(t *testing.T) {
	env := newTestEnv(t)
	workshop := env.seedWorkshop(t, nil)

	_, err := env.allocations.RunScheduled(context.Background(), workshop.ID, true, time.Now())
	require.ErrorIs(t, err, registry.ErrUnknown)
}
