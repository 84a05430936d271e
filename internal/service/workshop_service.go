package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/evaluation"
	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// ResetOptions selects the user data a reset removes.
type ResetOptions struct {
	Submissions bool
	Assessments bool
	Phase       bool
}

// WorkshopDefaults are applied to settings a create request leaves out.
type WorkshopDefaults struct {
	Grade        float64
	GradingGrade float64
	Strategy     string
	Evaluation   string
}

// Plugins groups the registries a workshop instance is composed from.
type Plugins struct {
	Strategies *grading.Registry
	Allocators *allocation.Registry
	Evaluators *evaluation.Registry
}

// WorkshopService manages workshop instances.
type WorkshopService interface {
	Create(ctx context.Context, actor Actor, req dto.WorkshopCreateRequest) (dto.WorkshopResponse, error)
	Get(ctx context.Context, id uint) (dto.WorkshopResponse, error)
	UpdateSettings(ctx context.Context, actor Actor, id uint, req dto.WorkshopSettingsRequest) (dto.WorkshopResponse, error)
	SaveGradingForm(ctx context.Context, actor Actor, id uint, def grading.AccumulativeDefinition) error
	AddParticipant(ctx context.Context, actor Actor, id uint, req dto.ParticipantRequest) (dto.ParticipantResponse, error)
	ListParticipants(ctx context.Context, id uint) ([]dto.ParticipantResponse, error)
	ResetUserData(ctx context.Context, actor Actor, id uint, options ResetOptions) ([]dto.ResetStatus, error)
	DeleteInstance(ctx context.Context, actor Actor, id uint) error
}

type workshopService struct {
	workshops    repository.WorkshopRepository
	participants repository.ParticipantRepository
	plugins      Plugins
	gradebook    Gradebook
	events       EventSink
	refresher    WorkshopRefresher
	defaults     WorkshopDefaults
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	logger       zerolog.Logger
	now          func() time.Time
}

// NewWorkshopService constructs the workshop instance service. A non-nil refresher is
// consulted whenever a workshop is viewed.
func NewWorkshopService(
	workshops repository.WorkshopRepository,
	participants repository.ParticipantRepository,
	plugins Plugins,
	gradebook Gradebook,
	events EventSink,
	refresher WorkshopRefresher,
	defaults WorkshopDefaults,
	validate *validator.Validate,
	logger zerolog.Logger,
) WorkshopService {
	if defaults.Strategy == "" {
		defaults.Strategy = grading.AccumulativeName
	}
	if defaults.Evaluation == "" {
		defaults.Evaluation = evaluation.BestName
	}
	return &workshopService{
		workshops:    workshops,
		participants: participants,
		plugins:      plugins,
		gradebook:    gradebook,
		events:       sinkOrNop(events),
		refresher:    refresher,
		defaults:     defaults,
		validator:    validate,
		sanitizer:    bluemonday.UGCPolicy(),
		logger:       logger.With().Str("component", "workshop_service").Logger(),
		now:          time.Now,
	}
}

func (s *workshopService) Create(ctx context.Context, actor Actor, req dto.WorkshopCreateRequest) (dto.WorkshopResponse, error) {
	if err := requireCapability(actor, CapAddInstance); err != nil {
		return dto.WorkshopResponse{}, err
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.WorkshopResponse{}, err
	}
	if err := s.validateSettings(req.WorkshopSettingsRequest); err != nil {
		return dto.WorkshopResponse{}, err
	}

	workshop := models.Workshop{
		CourseID:     req.CourseID,
		Phase:        models.PhaseSetup,
		Grade:        s.defaults.Grade,
		GradingGrade: s.defaults.GradingGrade,
		Strategy:     s.defaults.Strategy,
		Evaluation:   s.defaults.Evaluation,
	}
	s.applySettings(&workshop, req.WorkshopSettingsRequest)

	if err := s.workshops.Create(ctx, &workshop); err != nil {
		s.logger.Error().Err(err).Uint("course_id", req.CourseID).Msg("failed to create workshop")
		return dto.WorkshopResponse{}, err
	}

	s.events.Fire(ctx, EventWorkshopCreated, EventPayload{WorkshopID: workshop.ID, ActorID: actor.ID, EntityType: "workshop", EntityID: entityRef(workshop.ID)})
	return dto.NewWorkshopResponse(workshop), nil
}

// Get loads the workshop after applying any transition that became due since the last
// access. A failing transition is logged and the current state returned.
func (s *workshopService) Get(ctx context.Context, id uint) (dto.WorkshopResponse, error) {
	if s.refresher != nil {
		if _, err := s.refresher.Refresh(ctx, id, s.now().UTC()); err != nil {
			s.logger.Error().Err(err).Uint("workshop_id", id).Msg("failed to apply due phase switch")
		}
	}
	workshop, err := loadWorkshop(ctx, s.workshops, id)
	if err != nil {
		return dto.WorkshopResponse{}, err
	}
	return dto.NewWorkshopResponse(workshop), nil
}

func (s *workshopService) UpdateSettings(ctx context.Context, actor Actor, id uint, req dto.WorkshopSettingsRequest) (dto.WorkshopResponse, error) {
	if err := requireCapability(actor, CapEditSettings); err != nil {
		return dto.WorkshopResponse{}, err
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.WorkshopResponse{}, err
	}
	if err := s.validateSettings(req); err != nil {
		return dto.WorkshopResponse{}, err
	}

	workshop, err := loadWorkshop(ctx, s.workshops, id)
	if err != nil {
		return dto.WorkshopResponse{}, err
	}
	s.applySettings(&workshop, req)

	if err := s.workshops.Update(ctx, &workshop); err != nil {
		s.logger.Error().Err(err).Uint("workshop_id", id).Msg("failed to update workshop settings")
		return dto.WorkshopResponse{}, err
	}

	s.events.Fire(ctx, EventWorkshopUpdated, EventPayload{WorkshopID: id, ActorID: actor.ID, EntityType: "workshop", EntityID: entityRef(id)})
	return dto.NewWorkshopResponse(workshop), nil
}

// validateSettings checks the rules spanning several fields. Every violation is reported.
func (s *workshopService) validateSettings(req dto.WorkshopSettingsRequest) error {
	var problems FieldErrors

	if req.SubmissionStart != nil && req.SubmissionEnd != nil && !req.SubmissionStart.Before(*req.SubmissionEnd) {
		problems = append(problems, FieldError{Field: "submission_end", Message: "must be after the submission start"})
	}
	if req.AssessmentStart != nil && req.AssessmentEnd != nil && !req.AssessmentStart.Before(*req.AssessmentEnd) {
		problems = append(problems, FieldError{Field: "assessment_end", Message: "must be after the assessment start"})
	}
	if problem, ok := windowOverlap(req); ok {
		problems = append(problems, problem)
	}
	if req.Strategy != "" && !s.plugins.Strategies.Has(req.Strategy) {
		problems = append(problems, FieldError{Field: "strategy", Message: fmt.Sprintf("unknown grading strategy %q", req.Strategy)})
	}
	if req.Evaluation != "" && !s.plugins.Evaluators.Has(req.Evaluation) {
		problems = append(problems, FieldError{Field: "evaluation", Message: fmt.Sprintf("unknown evaluation method %q", req.Evaluation)})
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}

// windowOverlap compares the latest set submission boundary with the earliest set
// assessment boundary; the assessment window may start exactly when submissions close.
func windowOverlap(req dto.WorkshopSettingsRequest) (FieldError, bool) {
	var latest *time.Time
	for _, boundary := range []*time.Time{req.SubmissionStart, req.SubmissionEnd} {
		if boundary != nil && (latest == nil || boundary.After(*latest)) {
			latest = boundary
		}
	}
	field, earliest := "assessment_start", req.AssessmentStart
	if earliest == nil || (req.AssessmentEnd != nil && req.AssessmentEnd.Before(*earliest)) {
		field, earliest = "assessment_end", req.AssessmentEnd
	}
	if latest == nil || earliest == nil || !earliest.Before(*latest) {
		return FieldError{}, false
	}
	return FieldError{Field: field, Message: "must not overlap the submission window"}, true
}

func (s *workshopService) applySettings(workshop *models.Workshop, req dto.WorkshopSettingsRequest) {
	workshop.Name = strings.TrimSpace(req.Name)
	workshop.Intro = s.sanitizer.Sanitize(req.Intro)
	if req.Grade != nil {
		workshop.Grade = *req.Grade
	}
	if req.GradingGrade != nil {
		workshop.GradingGrade = *req.GradingGrade
	}
	workshop.GradeDecimals = req.GradeDecimals
	if req.Strategy != "" {
		workshop.Strategy = req.Strategy
	}
	if req.Evaluation != "" {
		workshop.Evaluation = req.Evaluation
	}
	workshop.SubmissionStart = utcPtr(req.SubmissionStart)
	workshop.SubmissionEnd = utcPtr(req.SubmissionEnd)
	workshop.AssessmentStart = utcPtr(req.AssessmentStart)
	workshop.AssessmentEnd = utcPtr(req.AssessmentEnd)
	workshop.LateSubmissions = req.LateSubmissions
	workshop.UseSelfAssessment = req.UseSelfAssessment
	workshop.UseExamples = req.UseExamples
	workshop.ExamplesMode = models.ExamplesMode(req.ExamplesMode)
	workshop.GroupMode = models.GroupMode(req.GroupMode)
	workshop.PhaseSwitchAssessment = req.PhaseSwitchAssessment
	workshop.NAttachments = req.NAttachments
}

type accumulativeForms interface {
	SaveDefinition(ctx context.Context, workshopID uint, def grading.AccumulativeDefinition) error
}

func (s *workshopService) SaveGradingForm(ctx context.Context, actor Actor, id uint, def grading.AccumulativeDefinition) error {
	if err := requireCapability(actor, CapEditSettings); err != nil {
		return err
	}
	workshop, err := loadWorkshop(ctx, s.workshops, id)
	if err != nil {
		return err
	}
	if workshop.Phase == models.PhaseClosed {
		return phaseDenied("editing the grading form", workshop.Phase)
	}

	strategy, err := s.plugins.Strategies.Get(workshop.Strategy)
	if err != nil {
		return err
	}
	forms, ok := strategy.(accumulativeForms)
	if !ok {
		return fmt.Errorf("grading strategy %q does not accept this form", workshop.Strategy)
	}
	return forms.SaveDefinition(ctx, id, def)
}

func (s *workshopService) AddParticipant(ctx context.Context, actor Actor, id uint, req dto.ParticipantRequest) (dto.ParticipantResponse, error) {
	if err := requireCapability(actor, CapEditSettings); err != nil {
		return dto.ParticipantResponse{}, err
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.ParticipantResponse{}, err
	}
	if _, err := loadWorkshop(ctx, s.workshops, id); err != nil {
		return dto.ParticipantResponse{}, err
	}

	participant := models.Participant{
		WorkshopID: id,
		UserID:     req.UserID,
		GroupID:    req.GroupID,
		CanSubmit:  req.CanSubmit,
		CanAssess:  req.CanAssess,
	}
	if err := s.participants.Upsert(ctx, &participant); err != nil {
		return dto.ParticipantResponse{}, err
	}
	return dto.NewParticipantResponse(participant), nil
}

func (s *workshopService) ListParticipants(ctx context.Context, id uint) ([]dto.ParticipantResponse, error) {
	roster, err := s.participants.ListByWorkshop(ctx, id)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.ParticipantResponse, 0, len(roster))
	for _, participant := range roster {
		responses = append(responses, dto.NewParticipantResponse(participant))
	}
	return responses, nil
}

func (s *workshopService) ResetUserData(ctx context.Context, actor Actor, id uint, options ResetOptions) ([]dto.ResetStatus, error) {
	if err := requireCapability(actor, CapEditSettings); err != nil {
		return nil, err
	}
	if _, err := loadWorkshop(ctx, s.workshops, id); err != nil {
		return nil, err
	}

	scope := repository.ResetScope{
		Submissions: options.Submissions,
		Assessments: options.Assessments,
		Phase:       options.Phase,
	}
	if err := s.workshops.ResetUserData(ctx, id, scope); err != nil {
		s.logger.Error().Err(err).Uint("workshop_id", id).Msg("failed to reset workshop user data")
		return nil, err
	}

	statuses := make([]dto.ResetStatus, 0, 4)
	if options.Submissions {
		statuses = append(statuses, dto.ResetStatus{Component: "submissions", Item: "submissions and their assessments removed"})
	}
	if options.Assessments && !options.Submissions {
		statuses = append(statuses, dto.ResetStatus{Component: "assessments", Item: "assessments removed"})
	}
	if options.Submissions || options.Assessments {
		status := dto.ResetStatus{Component: "gradebook", Item: "published grades removed"}
		if err := s.gradebook.DeleteGradeItems(ctx, id); err != nil {
			s.logger.Warn().Err(err).Uint("workshop_id", id).Msg("failed to clear gradebook items")
			status.Error = true
		}
		statuses = append(statuses, status)
	}
	if options.Phase {
		statuses = append(statuses, dto.ResetStatus{Component: "phase", Item: "phase reset to setup"})
	}

	s.events.Fire(ctx, EventWorkshopReset, EventPayload{
		WorkshopID: id,
		ActorID:    actor.ID,
		EntityType: "workshop",
		EntityID:   entityRef(id),
		Data: map[string]interface{}{
			"submissions": options.Submissions,
			"assessments": options.Assessments,
			"phase":       options.Phase,
		},
	})
	return statuses, nil
}

// DeleteInstance tears the workshop down plugin by plugin and then removes its rows.
// Plugin teardown failures are logged; the rows are removed regardless.
func (s *workshopService) DeleteInstance(ctx context.Context, actor Actor, id uint) error {
	if err := requireCapability(actor, CapAddInstance); err != nil {
		return err
	}
	if _, err := loadWorkshop(ctx, s.workshops, id); err != nil {
		return err
	}

	var failures []error
	for _, evaluator := range s.plugins.Evaluators.All() {
		if err := evaluator.DeleteInstance(ctx, id); err != nil {
			failures = append(failures, fmt.Errorf("evaluator %s: %w", evaluator.Name(), err))
		}
	}
	for _, allocator := range s.plugins.Allocators.All() {
		if err := allocator.DeleteInstance(ctx, id); err != nil {
			failures = append(failures, fmt.Errorf("allocator %s: %w", allocator.Name(), err))
		}
	}
	for _, strategy := range s.plugins.Strategies.All() {
		if err := strategy.DeleteInstance(ctx, id); err != nil {
			failures = append(failures, fmt.Errorf("strategy %s: %w", strategy.Name(), err))
		}
	}
	if err := s.gradebook.DeleteGradeItems(ctx, id); err != nil {
		failures = append(failures, fmt.Errorf("gradebook: %w", err))
	}
	for _, failure := range failures {
		s.logger.Warn().Err(failure).Uint("workshop_id", id).Msg("workshop plugin teardown failed")
	}

	if err := s.workshops.DeleteCascade(ctx, id); err != nil {
		s.logger.Error().Err(err).Uint("workshop_id", id).Msg("failed to delete workshop")
		return err
	}

	s.events.Fire(ctx, EventWorkshopDeleted, EventPayload{WorkshopID: id, ActorID: actor.ID, EntityType: "workshop", EntityID: entityRef(id)})
	return nil
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
