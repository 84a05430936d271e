package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// AssessmentService handles reviewers filling in their assessments.
type AssessmentService interface {
	Get(ctx context.Context, actor Actor, id uint) (dto.AssessmentResponse, error)
	ListForReviewer(ctx context.Context, actor Actor, workshopID uint) ([]dto.AssessmentResponse, error)
	Submit(ctx context.Context, actor Actor, id uint, payload dto.AssessmentSubmitRequest) (dto.AssessmentResponse, error)
	OverrideGradingGrade(ctx context.Context, actor Actor, id uint, payload dto.GradingGradeOverrideRequest) (dto.AssessmentResponse, error)
	StartExampleTraining(ctx context.Context, actor Actor, exampleID uint) (dto.AssessmentResponse, error)
}

type assessmentService struct {
	store       allocation.Store
	strategies  *grading.Registry
	aggregation AggregationService
	events      EventSink
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAssessmentService constructs the assessment service.
func NewAssessmentService(
	store allocation.Store,
	strategies *grading.Registry,
	aggregation AggregationService,
	events EventSink,
	validate *validator.Validate,
	logger zerolog.Logger,
) AssessmentService {
	return &assessmentService{
		store:       store,
		strategies:  strategies,
		aggregation: aggregation,
		events:      sinkOrNop(events),
		validator:   validate,
		sanitizer:   bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "assessment_service").Logger(),
		now:         time.Now,
	}
}

func (s *assessmentService) Get(ctx context.Context, actor Actor, id uint) (dto.AssessmentResponse, error) {
	assessment, err := loadAssessment(ctx, s.store.Assessments, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if assessment.ReviewerID != actor.ID && !actor.Can(CapViewAll) {
		return dto.AssessmentResponse{}, ErrNotOwner
	}
	return dto.NewAssessmentResponse(assessment), nil
}

func (s *assessmentService) ListForReviewer(ctx context.Context, actor Actor, workshopID uint) ([]dto.AssessmentResponse, error) {
	reviewer := actor.ID
	items, err := s.store.Assessments.List(ctx, repository.AssessmentFilter{WorkshopID: workshopID, ReviewerID: &reviewer})
	if err != nil {
		return nil, err
	}
	responses := make([]dto.AssessmentResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, dto.NewAssessmentResponse(item))
	}
	return responses, nil
}

// Submit stores the reviewer's filled form and its grade, then refreshes every aggregate
// the grade feeds: the submission's grade and, for examples, the trainees' grading grades.
func (s *assessmentService) Submit(ctx context.Context, actor Actor, id uint, payload dto.AssessmentSubmitRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment, err := loadAssessment(ctx, s.store.Assessments, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if assessment.ReviewerID != actor.ID {
		return dto.AssessmentResponse{}, ErrNotOwner
	}
	submission, err := loadSubmission(ctx, s.store.Submissions, assessment.SubmissionID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	workshop, err := loadWorkshop(ctx, s.store.Workshops, submission.WorkshopID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if err := s.checkAssessing(ctx, actor, workshop, submission, assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	strategy, err := s.strategies.Get(workshop.Strategy)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	score, err := strategy.Score(ctx, workshop.ID, payload.Form)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	grade := grading.Round(score, grading.DefaultDecimals)

	assessment.Form = datatypes.JSON(payload.Form)
	assessment.Grade = &grade
	assessment.FeedbackAuthor = s.sanitizer.Sanitize(payload.FeedbackAuthor)
	assessment.FeedbackReviewer = s.sanitizer.Sanitize(payload.FeedbackReviewer)
	if err := s.store.Assessments.Update(ctx, &assessment); err != nil {
		s.logger.Error().Err(err).Uint("assessment_id", id).Msg("failed to store assessment")
		return dto.AssessmentResponse{}, err
	}

	switch {
	case !submission.Example:
		err = s.aggregation.RefreshSubmission(ctx, workshop.ID, submission.ID)
	case assessment.Weight == models.WeightReference:
		err = s.refreshAfterReference(ctx, strategy, workshop, submission, assessment)
	default:
		err = s.gradeTraining(ctx, strategy, workshop, submission, &assessment)
	}
	if err != nil {
		s.logger.Error().Err(err).Uint("assessment_id", id).Msg("failed to refresh aggregates")
		return dto.AssessmentResponse{}, err
	}

	s.events.Fire(ctx, EventAssessmentEvaluated, EventPayload{
		WorkshopID: workshop.ID,
		ActorID:    actor.ID,
		EntityType: "assessment",
		EntityID:   entityRef(id),
		Data:       map[string]interface{}{"submission_id": submission.ID, "grade": grade},
	})
	return dto.NewAssessmentResponse(assessment), nil
}

func (s *assessmentService) checkAssessing(ctx context.Context, actor Actor, workshop models.Workshop, submission models.Submission, assessment models.Assessment) error {
	guards := GuardsFor(workshop, actor, s.now().UTC())

	switch {
	case !submission.Example:
		if err := requireCapability(actor, CapPeerAssess); err != nil {
			return err
		}
		if !guards.AssessingAllowed() {
			return phaseDenied("assessing", workshop.Phase)
		}
		if workshop.UseExamples && workshop.ExamplesMode == models.ExamplesBeforeAssessment && !actor.Can(CapManageExamples) {
			return ensureExamplesAssessed(ctx, s.store.Submissions, s.store.Assessments, workshop.ID, actor.ID)
		}
		return nil
	case assessment.Weight == models.WeightReference:
		if err := requireCapability(actor, CapManageExamples); err != nil {
			return err
		}
		if !guards.ManagingExamplesAllowed() {
			return phaseDenied("assessing the reference", workshop.Phase)
		}
		return nil
	default:
		if !guards.AssessingExamplesAllowed() {
			return phaseDenied("assessing an example", workshop.Phase)
		}
		return nil
	}
}

// refreshAfterReference re-aggregates the example and re-scores every graded training
// assessment against the new reference.
func (s *assessmentService) refreshAfterReference(ctx context.Context, strategy grading.Strategy, workshop models.Workshop, example models.Submission, reference models.Assessment) error {
	if err := s.aggregation.RefreshSubmission(ctx, workshop.ID, example.ID); err != nil {
		return err
	}

	exampleID := example.ID
	assessments, err := s.store.Assessments.List(ctx, repository.AssessmentFilter{WorkshopID: workshop.ID, SubmissionID: &exampleID})
	if err != nil {
		return err
	}
	for i := range assessments {
		trainee := assessments[i]
		if trainee.Weight != models.WeightTraining || !trainee.IsGraded() {
			continue
		}
		changed, err := s.compareWithReference(ctx, strategy, workshop.ID, reference, &trainee)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		if err := s.aggregation.RefreshReviewer(ctx, workshop.ID, trainee.ReviewerID); err != nil {
			return err
		}
	}
	return nil
}

// gradeTraining scores a trainee's example assessment against the reference, when the
// reference was already given.
func (s *assessmentService) gradeTraining(ctx context.Context, strategy grading.Strategy, workshop models.Workshop, example models.Submission, trainee *models.Assessment) error {
	reference, err := s.store.Assessments.GetReference(ctx, example.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !reference.IsGraded() {
		return nil
	}

	if _, err := s.compareWithReference(ctx, strategy, workshop.ID, reference, trainee); err != nil {
		return err
	}
	return s.aggregation.RefreshReviewer(ctx, workshop.ID, trainee.ReviewerID)
}

func (s *assessmentService) compareWithReference(ctx context.Context, strategy grading.Strategy, workshopID uint, reference models.Assessment, trainee *models.Assessment) (bool, error) {
	score, err := strategy.Compare(ctx, workshopID, []byte(reference.Form), []byte(trainee.Form))
	if err != nil {
		return false, err
	}
	value := grading.Round(score, grading.DefaultDecimals)
	if !grading.Differ(trainee.GradingGrade, &value, grading.DefaultDecimals) {
		return false, nil
	}
	if err := s.store.Assessments.UpdateGradingGrade(ctx, trainee.ID, &value); err != nil {
		return false, err
	}
	trainee.GradingGrade = &value
	return true, nil
}

func (s *assessmentService) OverrideGradingGrade(ctx context.Context, actor Actor, id uint, payload dto.GradingGradeOverrideRequest) (dto.AssessmentResponse, error) {
	if err := requireCapability(actor, CapOverrideGrades); err != nil {
		return dto.AssessmentResponse{}, err
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment, err := loadAssessment(ctx, s.store.Assessments, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	submission, err := loadSubmission(ctx, s.store.Submissions, assessment.SubmissionID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	workshop, err := loadWorkshop(ctx, s.store.Workshops, submission.WorkshopID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if !GuardsFor(workshop, actor, s.now().UTC()).OverridingAllowed() {
		return dto.AssessmentResponse{}, phaseDenied("overriding a grading grade", workshop.Phase)
	}

	assessment.GradingGradeOver = payload.GradingGradeOver
	if payload.GradingGradeOver != nil {
		by := actor.ID
		assessment.GradingGradeOverBy = &by
	} else {
		assessment.GradingGradeOverBy = nil
	}
	if err := s.store.Assessments.Update(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.events.Fire(ctx, EventAssessmentEvaluated, EventPayload{
		WorkshopID: workshop.ID,
		ActorID:    actor.ID,
		EntityType: "assessment",
		EntityID:   entityRef(id),
		Data:       map[string]interface{}{"override": payload.GradingGradeOver != nil},
	})
	return dto.NewAssessmentResponse(assessment), nil
}

// StartExampleTraining allocates the actor's training assessment of an example, reusing
// the existing one.
func (s *assessmentService) StartExampleTraining(ctx context.Context, actor Actor, exampleID uint) (dto.AssessmentResponse, error) {
	if err := requireCapability(actor, CapPeerAssess); err != nil {
		return dto.AssessmentResponse{}, err
	}
	example, err := loadSubmission(ctx, s.store.Submissions, exampleID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if !example.Example {
		return dto.AssessmentResponse{}, ErrSubmissionNotFound
	}
	workshop, err := loadWorkshop(ctx, s.store.Workshops, example.WorkshopID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if !GuardsFor(workshop, actor, s.now().UTC()).AssessingExamplesAllowed() {
		return dto.AssessmentResponse{}, phaseDenied("training on examples", workshop.Phase)
	}

	id, err := allocation.AddAllocation(ctx, s.store, workshop, example, actor.ID, models.WeightTraining)
	if err != nil && !errors.Is(err, allocation.ErrAllocationExists) {
		return dto.AssessmentResponse{}, err
	}

	assessment, err := loadAssessment(ctx, s.store.Assessments, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	return dto.NewAssessmentResponse(assessment), nil
}
