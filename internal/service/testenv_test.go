package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/evaluation"
	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Fire(_ context.Context, name string, _ EventPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeGradebook struct {
	published    map[int]map[uint]*float64
	publishCalls int
	deleteCalls  int
	err          error
}

func newFakeGradebook() *fakeGradebook {
	return &fakeGradebook{published: make(map[int]map[uint]*float64)}
}

func (f *fakeGradebook) PublishGradeItems(_ context.Context, _ uint, items map[int]map[uint]*float64) error {
	f.publishCalls++
	if f.err != nil {
		return f.err
	}
	for item, grades := range items {
		f.published[item] = grades
	}
	return nil
}

func (f *fakeGradebook) DeleteGradeItems(context.Context, uint) error {
	f.deleteCalls++
	f.published = make(map[int]map[uint]*float64)
	return nil
}

type fakeFileStore struct {
	calls int
	areas []string
}

func (f *fakeFileStore) StoreArea(_ context.Context, area, name string, reader io.Reader) (string, error) {
	f.calls++
	f.areas = append(f.areas, area)
	_, _ = io.Copy(io.Discard, reader)
	return "https://files.example.com/" + area + "/" + name, nil
}

type testEnv struct {
	db           *gorm.DB
	store        allocation.Store
	aggregations repository.AggregationRepository
	forms        repository.GradingFormRepository
	plugins      Plugins
	gradebook    *fakeGradebook
	files        *fakeFileStore
	events       *recordingSink

	aggregation AggregationService
	phases      PhaseService
	workshops   WorkshopService
	submissions SubmissionService
	assessments AssessmentService
	allocations AllocationService
	evaluation  EvaluationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	logger := testLogger()
	validate := validator.New(validator.WithRequiredStructEnabled())

	store := allocation.Store{
		Workshops:    repository.NewWorkshopRepository(db),
		Submissions:  repository.NewSubmissionRepository(db),
		Assessments:  repository.NewAssessmentRepository(db),
		Participants: repository.NewParticipantRepository(db),
		Scheduled:    repository.NewScheduledAllocationRepository(db),
	}
	forms := repository.NewGradingFormRepository(db)
	bestSettings := repository.NewBestSettingsRepository(db)
	aggregations := repository.NewAggregationRepository(db)

	plugins := Plugins{
		Strategies: grading.NewRegistry(),
		Allocators: allocation.NewRegistry(),
		Evaluators: evaluation.NewRegistry(),
	}
	plugins.Strategies.Register(grading.AccumulativeName, func() grading.Strategy { return grading.NewAccumulative(forms) })
	plugins.Allocators.Register(allocation.ManualName, func() allocation.Allocator { return allocation.NewManual(store, logger) })
	plugins.Allocators.Register(allocation.RandomName, func() allocation.Allocator {
		return allocation.NewRandom(store, logger).WithSeed(7)
	})
	plugins.Evaluators.Register(evaluation.BestName, func() evaluation.Evaluator { return evaluation.NewBest(bestSettings) })

	env := &testEnv{
		db:           db,
		store:        store,
		aggregations: aggregations,
		forms:        forms,
		plugins:      plugins,
		gradebook:    newFakeGradebook(),
		files:        &fakeFileStore{},
		events:       &recordingSink{},
	}

	env.aggregation = NewAggregationService(store.Submissions, store.Assessments, aggregations, grading.DefaultDecimals, logger)
	env.phases = NewPhaseService(store.Workshops, store.Submissions, store.Assessments, env.gradebook, env.events, grading.DefaultDecimals, logger)
	env.workshops = NewWorkshopService(store.Workshops, store.Participants, plugins, env.gradebook, env.events, nil, WorkshopDefaults{Grade: 80, GradingGrade: 20}, validate, logger)
	env.submissions = NewSubmissionService(store.Workshops, store.Submissions, store.Assessments, env.files, env.events, validate, logger)
	env.assessments = NewAssessmentService(store, plugins.Strategies, env.aggregation, env.events, validate, logger)
	env.allocations = NewAllocationService(store, plugins.Allocators, env.events, logger)
	env.evaluation = NewEvaluationService(store.Workshops, store.Assessments, aggregations, plugins.Evaluators, env.aggregation, env.events, logger)
	return env
}

var (
	teacher = ActorForRole(100, "teacher")
	manager = ActorForRole(101, "manager")
)

func student(id uint) Actor {
	return ActorForRole(id, "student")
}

func (e *testEnv) seedWorkshop(t *testing.T, mutate func(*models.Workshop)) models.Workshop {
	t.Helper()
	workshop := models.Workshop{
		CourseID:     1,
		Name:         "Peer review",
		Phase:        models.PhaseSetup,
		Grade:        80,
		GradingGrade: 20,
		Strategy:     grading.AccumulativeName,
		Evaluation:   evaluation.BestName,
	}
	if mutate != nil {
		mutate(&workshop)
	}
	require.NoError(t, e.db.Create(&workshop).Error)
	return workshop
}

// seedForm stores a two-dimension accumulative form: "content" out of 10 with weight 1,
// "style" out of 10 with weight 1.
func (e *testEnv) seedForm(t *testing.T, workshopID uint) {
	t.Helper()
	strategy := grading.NewAccumulative(e.forms)
	require.NoError(t, strategy.SaveDefinition(context.Background(), workshopID, grading.AccumulativeDefinition{
		Dimensions: []grading.Dimension{
			{ID: "content", MaxGrade: 10, Weight: 1},
			{ID: "style", MaxGrade: 10, Weight: 1},
		},
	}))
}

func (e *testEnv) seedSubmission(t *testing.T, workshopID, authorID uint, example bool) models.Submission {
	t.Helper()
	submission := models.Submission{WorkshopID: workshopID, AuthorID: authorID, Example: example, Title: "Essay"}
	require.NoError(t, e.db.Create(&submission).Error)
	return submission
}

func (e *testEnv) seedAssessment(t *testing.T, submissionID, reviewerID uint, weight int, grade, gradingGrade *float64) models.Assessment {
	t.Helper()
	assessment := models.Assessment{
		SubmissionID: submissionID,
		ReviewerID:   reviewerID,
		Weight:       weight,
		Grade:        grade,
		GradingGrade: gradingGrade,
	}
	require.NoError(t, e.db.Create(&assessment).Error)
	return assessment
}

func (e *testEnv) reloadWorkshop(t *testing.T, id uint) models.Workshop {
	t.Helper()
	var workshop models.Workshop
	require.NoError(t, e.db.First(&workshop, id).Error)
	return workshop
}

func (e *testEnv) reloadSubmission(t *testing.T, id uint) models.Submission {
	t.Helper()
	var submission models.Submission
	require.NoError(t, e.db.First(&submission, id).Error)
	return submission
}

func (e *testEnv) reloadAssessment(t *testing.T, id uint) models.Assessment {
	t.Helper()
	var assessment models.Assessment
	require.NoError(t, e.db.First(&assessment, id).Error)
	return assessment
}

func form(content, style float64) []byte {
	return []byte(fmt.Sprintf(`{"grades":{"content":%g,"style":%g}}`, content, style))
}

func ptr(v float64) *float64 { return &v }

func at(hours int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(hours) * time.Hour)
}

func timeRef(t time.Time) *time.Time { return &t }
