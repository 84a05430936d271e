package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
)

func TestSubmissionGradeRowsGroupsBySubmission(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	workshop := seedWorkshop(t, db, models.PhaseAssessment)
	other := seedWorkshop(t, db, models.PhaseAssessment)

	first := seedSubmission(t, db, workshop.ID, 1, false)
	second := seedSubmission(t, db, workshop.ID, 2, false)
	foreign := seedSubmission(t, db, other.ID, 3, false)
	seedAssessment(t, db, second.ID, 1, 1, ptr(40))
	seedAssessment(t, db, first.ID, 2, 1, ptr(60))
	seedAssessment(t, db, first.ID, 3, 0, nil)
	seedAssessment(t, db, foreign.ID, 1, 1, ptr(10))

	rows, err := repo.SubmissionGradeRows(context.Background(), workshop.ID, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, first.ID, rows[0].SubmissionID)
	require.Equal(t, first.ID, rows[1].SubmissionID)
	require.Nil(t, rows[1].Grade)
	require.Equal(t, 0, rows[1].Weight)
	require.Equal(t, second.ID, rows[2].SubmissionID)

	rows, err = repo.SubmissionGradeRows(context.Background(), workshop.ID, []uint{second.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.InDelta(t, 40, *rows[0].Grade, 1e-9)
}

func TestSubmissionGradeRoundTripsWithoutDrift(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	workshop := seedWorkshop(t, db, models.PhaseAssessment)
	submission := seedSubmission(t, db, workshop.ID, 1, false)

	grades := []float64{56.12, 12.59, 10.00, 0.00}
	items := make([]grading.Weighted, 0, len(grades))
	for i, g := range grades {
		seedAssessment(t, db, submission.ID, uint(10+i), 1, ptr(g))
		items = append(items, grading.Weighted{Value: ptr(g), Weight: 1})
	}
	mean, ok := grading.WeightedMean(items)
	require.True(t, ok)
	want := grading.Round(mean, grading.DefaultDecimals)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.UpdateGrade(context.Background(), submission.ID, want, utc(i)))
		stored, err := repo.GetByID(context.Background(), submission.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.Grade)
		require.Equal(t, want, *stored.Grade)
		require.False(t, grading.Differ(stored.Grade, &want, grading.DefaultDecimals))
		want = *stored.Grade
	}
	require.Equal(t, 19.6775, want)
}

func TestSubmissionRepositoryDeleteCascadesAssessments(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	workshop := seedWorkshop(t, db, models.PhaseSubmission)
	submission := seedSubmission(t, db, workshop.ID, 1, false)
	seedAssessment(t, db, submission.ID, 2, 1, nil)

	count, err := repo.CountAssessments(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	require.NoError(t, repo.Delete(context.Background(), submission.ID))

	count, err = repo.CountAssessments(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSubmissionRepositoryGetByAuthorIgnoresExamples(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	workshop := seedWorkshop(t, db, models.PhaseSubmission)
	seedSubmission(t, db, workshop.ID, 1, true)

	_, err := repo.GetByAuthor(context.Background(), workshop.ID, 1)
	require.Error(t, err)

	own := seedSubmission(t, db, workshop.ID, 1, false)
	found, err := repo.GetByAuthor(context.Background(), workshop.ID, 1)
	require.NoError(t, err)
	require.Equal(t, own.ID, found.ID)
}
