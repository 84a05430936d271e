package allocation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newStore(db *gorm.DB) Store {
	return Store{
		Workshops:    repository.NewWorkshopRepository(db),
		Submissions:  repository.NewSubmissionRepository(db),
		Assessments:  repository.NewAssessmentRepository(db),
		Participants: repository.NewParticipantRepository(db),
		Scheduled:    repository.NewScheduledAllocationRepository(db),
	}
}

func seedWorkshop(t *testing.T, db *gorm.DB, mutate func(*models.Workshop)) models.Workshop {
	t.Helper()
	workshop := models.Workshop{
		CourseID:     1,
		Name:         "Peer review",
		Phase:        models.PhaseSubmission,
		Grade:        80,
		GradingGrade: 20,
		Strategy:     "accumulative",
		Evaluation:   "best",
	}
	if mutate != nil {
		mutate(&workshop)
	}
	require.NoError(t, db.Create(&workshop).Error)
	return workshop
}

func seedSubmission(t *testing.T, db *gorm.DB, workshopID, authorID uint, example bool) models.Submission {
	t.Helper()
	submission := models.Submission{WorkshopID: workshopID, AuthorID: authorID, Example: example, Title: "Essay"}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func countAssessments(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Assessment{}).Count(&count).Error)
	return count
}

func TestAddAllocationRejectsDuplicatePair(t *testing.T) {
	db := setupTestDB(t)
	store := newStore(db)
	workshop := seedWorkshop(t, db, nil)
	submission := seedSubmission(t, db, workshop.ID, 1, false)

	id, err := AddAllocation(context.Background(), store, workshop, submission, 2, 1)
	require.NoError(t, err)
	require.NotZero(t, id)

	again, err := AddAllocation(context.Background(), store, workshop, submission, 2, 1)
	require.ErrorIs(t, err, ErrAllocationExists)
	require.Equal(t, id, again)
	require.Equal(t, int64(1), countAssessments(t, db))
}

type staleLookups struct {
	repository.AssessmentRepository
}

func (staleLookups) GetByPair(context.Context, uint, uint) (models.Assessment, error) {
	return models.Assessment{}, gorm.ErrRecordNotFound
}

func TestAddAllocationMapsRacingInsertToSentinel(t *testing.T) {
	db := setupTestDB(t)
	store := newStore(db)
	workshop := seedWorkshop(t, db, nil)
	submission := seedSubmission(t, db, workshop.ID, 1, false)

	_, err := AddAllocation(context.Background(), store, workshop, submission, 2, models.WeightDefault)
	require.NoError(t, err)

	racing := store
	racing.Assessments = staleLookups{AssessmentRepository: store.Assessments}
	_, err = AddAllocation(context.Background(), racing, workshop, submission, 2, models.WeightDefault)
	require.ErrorIs(t, err, ErrAllocationExists)
	require.Equal(t, int64(1), countAssessments(t, db))
}

func TestAddAllocationSelfAssessmentPolicy(t *testing.T) {
	db := setupTestDB(t)
	store := newStore(db)

	closed := seedWorkshop(t, db, nil)
	own := seedSubmission(t, db, closed.ID, 1, false)
	_, err := AddAllocation(context.Background(), store, closed, own, 1, 1)
	require.ErrorIs(t, err, ErrSelfAssessmentNotAllowed)
	require.Zero(t, countAssessments(t, db))

	open := seedWorkshop(t, db, func(w *models.Workshop) { w.UseSelfAssessment = true })
	mine := seedSubmission(t, db, open.ID, 1, false)
	_, err = AddAllocation(context.Background(), store, open, mine, 1, 1)
	require.NoError(t, err)
	_, err = AddAllocation(context.Background(), store, open, mine, 1, 1)
	require.ErrorIs(t, err, ErrAllocationExists)
	require.Equal(t, int64(1), countAssessments(t, db))
}

func TestAddAllocationSingleReferencePerExample(t *testing.T) {
	db := setupTestDB(t)
	store := newStore(db)
	workshop := seedWorkshop(t, db, func(w *models.Workshop) { w.UseExamples = true })
	example := seedSubmission(t, db, workshop.ID, 9, true)

	_, err := AddAllocation(context.Background(), store, workshop, example, 9, models.WeightReference)
	require.NoError(t, err, "the example author may hold the reference assessment")

	_, err = AddAllocation(context.Background(), store, workshop, example, 8, models.WeightReference)
	require.ErrorIs(t, err, ErrReferenceExists)

	_, err = AddAllocation(context.Background(), store, workshop, example, 3, models.WeightTraining)
	require.NoError(t, err)
}

func TestAddAllocationRejectsForeignSubmission(t *testing.T) {
	db := setupTestDB(t)
	store := newStore(db)
	workshop := seedWorkshop(t, db, nil)
	other := seedWorkshop(t, db, nil)
	submission := seedSubmission(t, db, other.ID, 1, false)

	_, err := AddAllocation(context.Background(), store, workshop, submission, 2, 1)
	require.ErrorIs(t, err, ErrSubmissionMismatch)
}

func TestRemoveAllocationRefusesGradedUnlessForced(t *testing.T) {
	db := setupTestDB(t)
	store := newStore(db)
	workshop := seedWorkshop(t, db, nil)
	submission := seedSubmission(t, db, workshop.ID, 1, false)

	id, err := AddAllocation(context.Background(), store, workshop, submission, 2, 1)
	require.NoError(t, err)
	grade := 70.0
	require.NoError(t, db.Model(&models.Assessment{}).Where("id = ?", id).Update("grade", grade).Error)

	require.ErrorIs(t, RemoveAllocation(context.Background(), store, workshop, id, false), ErrAssessmentGraded)
	require.NoError(t, RemoveAllocation(context.Background(), store, workshop, id, true))
	require.Zero(t, countAssessments(t, db))
}

func TestManualExecuteReportsEachPairing(t *testing.T) {
	db := setupTestDB(t)
	store := newStore(db)
	workshop := seedWorkshop(t, db, nil)
	submission := seedSubmission(t, db, workshop.ID, 1, false)
	manual := NewManual(store, zerolog.Nop())

	raw, err := json.Marshal(ManualSettings{Add: []ManualPair{
		{SubmissionID: submission.ID, ReviewerID: 2},
		{SubmissionID: submission.ID, ReviewerID: 2},
		{SubmissionID: submission.ID, ReviewerID: 1},
	}})
	require.NoError(t, err)

	result, err := manual.Init(context.Background(), workshop, raw)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, result.Status)

	require.NoError(t, manual.Execute(context.Background(), workshop, raw, result))
	require.Equal(t, StatusExecuted, result.Status)
	require.Equal(t, "1 added, 0 removed, 1 failed", result.Message)
	require.Len(t, result.Log, 3)
	require.Equal(t, LogOK, result.Log[0].Type)
	require.Equal(t, LogInfo, result.Log[1].Type)
	require.Equal(t, LogError, result.Log[2].Type)
	require.Equal(t, int64(1), countAssessments(t, db))
}

func TestManualInitRejectsInvalidSettings(t *testing.T) {
	manual := NewManual(Store{}, zerolog.Nop())
	_, err := manual.Init(context.Background(), models.Workshop{}, json.RawMessage(`{"add":[{"submission_id":0,"reviewer_id":2}]}`))
	require.Error(t, err)

	_, err = manual.Init(context.Background(), models.Workshop{}, json.RawMessage(`{"add":`))
	require.ErrorIs(t, err, ErrInvalidSettings)
}
