package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
)

func TestScheduledAllocationSaveUpsertsPerWorkshop(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScheduledAllocationRepository(db)
	workshop := seedWorkshop(t, db, models.PhaseSubmission)
	deadline := utc(0)
	workshop.SubmissionEnd = &deadline
	require.NoError(t, db.Save(&workshop).Error)

	first := models.ScheduledAllocation{WorkshopID: workshop.ID, Enabled: true, Settings: datatypes.JSON(`{"numofreviews":3}`)}
	require.NoError(t, repo.Save(context.Background(), &first))

	second := models.ScheduledAllocation{WorkshopID: workshop.ID, Enabled: true, Settings: datatypes.JSON(`{"numofreviews":4}`)}
	require.NoError(t, repo.Save(context.Background(), &second))
	require.Equal(t, first.ID, second.ID)

	stored, err := repo.Get(context.Background(), workshop.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"numofreviews":4}`, string(stored.Settings))

	due, err := repo.ListDue(context.Background(), utc(-1))
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = repo.ListDue(context.Background(), utc(1))
	require.NoError(t, err)
	require.Equal(t, []uint{workshop.ID}, due)
}

func TestGradeItemPublishUpsertsGrades(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradeItemRepository(db)
	workshop := seedWorkshop(t, db, models.PhaseEvaluation)

	require.NoError(t, repo.Publish(context.Background(), workshop.ID, map[int]map[uint]*float64{
		models.GradeItemSubmission: {1: ptr(56), 2: nil},
	}))
	require.NoError(t, repo.Publish(context.Background(), workshop.ID, map[int]map[uint]*float64{
		models.GradeItemSubmission: {1: ptr(64)},
	}))

	items, err := repo.List(context.Background(), workshop.ID, models.GradeItemSubmission)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.InDelta(t, 64, *items[0].Grade, 1e-9)
	require.Nil(t, items[1].Grade)

	gradingItems, err := repo.List(context.Background(), workshop.ID, models.GradeItemGrading)
	require.NoError(t, err)
	require.Empty(t, gradingItems)
}

func TestGradeItemPublishWritesBothItemsOrNothing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradeItemRepository(db)
	workshop := seedWorkshop(t, db, models.PhaseEvaluation)

	require.NoError(t, db.Exec("CREATE TRIGGER reject_grading_item BEFORE INSERT ON "+models.GradeItem{}.TableName()+
		" WHEN NEW.item_number = 1 BEGIN SELECT RAISE(ABORT, 'grading item rejected'); END").Error)

	err := repo.Publish(context.Background(), workshop.ID, map[int]map[uint]*float64{
		models.GradeItemSubmission: {2: ptr(40)},
		models.GradeItemGrading:    {2: ptr(12)},
	})
	require.Error(t, err)

	items, err := repo.List(context.Background(), workshop.ID, models.GradeItemSubmission)
	require.NoError(t, err)
	require.Empty(t, items, "a failing item rolls back the other one")
}

func TestGradingFormRepositoryBacksStrategy(t *testing.T) {
	db := setupTestDB(t)
	forms := NewGradingFormRepository(db)
	strategy := grading.NewAccumulative(forms)

	_, err := forms.GetForm(context.Background(), 1, grading.AccumulativeName)
	require.ErrorIs(t, err, grading.ErrFormNotDefined)

	def := grading.AccumulativeDefinition{Dimensions: []grading.Dimension{{ID: "clarity", MaxGrade: 10, Weight: 1}}}
	require.NoError(t, strategy.SaveDefinition(context.Background(), 1, def))
	def.Dimensions[0].MaxGrade = 20
	require.NoError(t, strategy.SaveDefinition(context.Background(), 1, def))

	form, _ := json.Marshal(grading.FilledForm{Grades: map[string]float64{"clarity": 5}})
	score, err := strategy.Score(context.Background(), 1, form)
	require.NoError(t, err)
	require.InDelta(t, 25, score, 1e-9)

	require.NoError(t, strategy.DeleteInstance(context.Background(), 1))
	_, err = strategy.Score(context.Background(), 1, form)
	require.ErrorIs(t, err, grading.ErrFormNotDefined)
}

func TestParticipantUpsertUpdatesCapabilities(t *testing.T) {
	db := setupTestDB(t)
	repo := NewParticipantRepository(db)

	require.NoError(t, repo.Upsert(context.Background(), &models.Participant{WorkshopID: 1, UserID: 4, GroupID: 2, CanSubmit: true, CanAssess: true}))
	require.NoError(t, repo.Upsert(context.Background(), &models.Participant{WorkshopID: 1, UserID: 4, GroupID: 2, CanSubmit: true, CanAssess: false}))
	require.NoError(t, repo.Upsert(context.Background(), &models.Participant{WorkshopID: 1, UserID: 4, GroupID: 3, CanSubmit: true, CanAssess: true}))

	participants, err := repo.ListByWorkshop(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	require.False(t, participants[0].CanAssess)

	require.NoError(t, repo.Remove(context.Background(), 1, 4))
	participants, err = repo.ListByWorkshop(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, participants)
}
