package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/observability"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// PhaseService drives the workshop lifecycle.
type PhaseService interface {
	SwitchPhase(ctx context.Context, actor Actor, workshopID uint, target models.Phase) (dto.WorkshopResponse, error)
	// CheckAutoSwitch moves a submission-phase workshop to assessment once its deadline
	// passed and the automatic switch is enabled. It fires at most once.
	CheckAutoSwitch(ctx context.Context, workshopID uint, now time.Time) (bool, error)
}

type phaseService struct {
	workshops   repository.WorkshopRepository
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	gradebook   Gradebook
	events      EventSink
	decimals    int
	logger      zerolog.Logger
}

// NewPhaseService constructs the phase state machine.
func NewPhaseService(
	workshops repository.WorkshopRepository,
	submissions repository.SubmissionRepository,
	assessments repository.AssessmentRepository,
	gradebook Gradebook,
	events EventSink,
	decimals int,
	logger zerolog.Logger,
) PhaseService {
	return &phaseService{
		workshops:   workshops,
		submissions: submissions,
		assessments: assessments,
		gradebook:   gradebook,
		events:      sinkOrNop(events),
		decimals:    decimals,
		logger:      logger.With().Str("component", "phase_service").Logger(),
	}
}

var phaseTracer = otel.Tracer("github.com/noah-isme/gema-workshop-api/internal/service/phase")

func (s *phaseService) SwitchPhase(ctx context.Context, actor Actor, workshopID uint, target models.Phase) (dto.WorkshopResponse, error) {
	ctx, span := phaseTracer.Start(ctx, "phase.switch", trace.WithAttributes(
		attribute.Int64("workshop.id", int64(workshopID)),
		attribute.Int("phase.target", int(target)),
	))
	defer span.End()

	if err := requireCapability(actor, CapSwitchPhase); err != nil {
		span.SetStatus(codes.Error, "forbidden")
		return dto.WorkshopResponse{}, err
	}

	workshop, err := loadWorkshop(ctx, s.workshops, workshopID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workshop_lookup_failed")
		return dto.WorkshopResponse{}, err
	}
	current := workshop.Phase
	span.SetAttributes(attribute.Int("phase.current", int(current)))

	if !target.Valid() || current == models.PhaseClosed || target <= current {
		span.SetStatus(codes.Error, "invalid_transition")
		return dto.WorkshopResponse{}, fmt.Errorf("%w: %s to %s", ErrInvalidPhaseTransition, current, target)
	}

	swapped, err := s.workshops.SwapPhase(ctx, workshopID, current, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "phase_update_failed")
		return dto.WorkshopResponse{}, err
	}
	if !swapped {
		span.SetStatus(codes.Error, "phase_conflict")
		return dto.WorkshopResponse{}, ErrPhaseConflict
	}

	if target == models.PhaseClosed {
		if err := s.publishGrades(ctx, workshop); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "publication_failed")
			s.logger.Error().Err(err).Uint("workshop_id", workshopID).Msg("failed to publish grades")
			if _, revertErr := s.workshops.SwapPhase(ctx, workshopID, target, current); revertErr != nil {
				s.logger.Error().Err(revertErr).Uint("workshop_id", workshopID).Msg("failed to restore phase after publication failure")
			}
			return dto.WorkshopResponse{}, fmt.Errorf("publish grades: %w", err)
		}
	}

	workshop.Phase = target
	observability.PhaseSwitches().WithLabelValues(current.String(), target.String()).Inc()
	s.events.Fire(ctx, EventPhaseSwitched, EventPayload{
		WorkshopID: workshopID,
		ActorID:    actor.ID,
		EntityType: "workshop",
		EntityID:   entityRef(workshopID),
		Data:       map[string]interface{}{"from": int(current), "to": int(target)},
	})
	if target == models.PhaseClosed {
		s.events.Fire(ctx, EventGradesPublished, EventPayload{WorkshopID: workshopID, ActorID: actor.ID, EntityType: "workshop", EntityID: entityRef(workshopID)})
	}

	s.logger.Info().
		Uint("workshop_id", workshopID).
		Str("from", current.String()).
		Str("to", target.String()).
		Uint("actor_id", actor.ID).
		Msg("workshop phase switched")

	return dto.NewWorkshopResponse(workshop), nil
}

// publishGrades pushes both gradebook items in one call. It runs after the phase was
// claimed, so a request that lost the race never publishes. Submission grades are the final grade of each
// real submission; grading grades are each reviewer's mean with overrides applied, both
// scaled to the workshop ceilings.
func (s *phaseService) publishGrades(ctx context.Context, workshop models.Workshop) error {
	notExample := false
	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{WorkshopID: workshop.ID, Example: &notExample})
	if err != nil {
		return err
	}
	submissionGrades := make(map[uint]*float64, len(submissions))
	for _, submission := range submissions {
		var grade *float64
		if final := submission.FinalGrade(); final != nil {
			grade = grading.Ptr(grading.Round(grading.Scale(*final, workshop.Grade), s.decimals))
		}
		submissionGrades[submission.AuthorID] = grade
	}

	rows, err := s.assessments.GradingGradeRows(ctx, workshop.ID, nil)
	if err != nil {
		return err
	}
	gradingGrades := make(map[uint]*float64)
	for start := 0; start < len(rows); {
		end := start
		items := make([]grading.Weighted, 0)
		for end < len(rows) && rows[end].ReviewerID == rows[start].ReviewerID {
			value := rows[end].GradingGrade
			if rows[end].GradingGradeOver != nil {
				value = rows[end].GradingGradeOver
			}
			items = append(items, grading.Weighted{Value: value, Weight: 1})
			end++
		}
		var grade *float64
		if mean, ok := grading.WeightedMean(items); ok {
			grade = grading.Ptr(grading.Round(grading.Scale(mean, workshop.GradingGrade), s.decimals))
		}
		gradingGrades[rows[start].ReviewerID] = grade
		start = end
	}

	return s.gradebook.PublishGradeItems(ctx, workshop.ID, map[int]map[uint]*float64{
		models.GradeItemSubmission: submissionGrades,
		models.GradeItemGrading:    gradingGrades,
	})
}

func (s *phaseService) CheckAutoSwitch(ctx context.Context, workshopID uint, now time.Time) (bool, error) {
	ctx, span := phaseTracer.Start(ctx, "phase.auto_switch")
	defer span.End()
	span.SetAttributes(attribute.Int64("workshop.id", int64(workshopID)))

	switched, err := s.workshops.SwitchToAssessmentIfDue(ctx, workshopID, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auto_switch_failed")
		return false, err
	}
	if !switched {
		return false, nil
	}

	observability.PhaseSwitches().WithLabelValues(models.PhaseSubmission.String(), models.PhaseAssessment.String()).Inc()
	s.events.Fire(ctx, EventPhaseSwitched, EventPayload{
		WorkshopID: workshopID,
		EntityType: "workshop",
		EntityID:   entityRef(workshopID),
		Data: map[string]interface{}{
			"from":      int(models.PhaseSubmission),
			"to":        int(models.PhaseAssessment),
			"automatic": true,
		},
	})
	s.logger.Info().Uint("workshop_id", workshopID).Msg("workshop switched to assessment after submission deadline")
	return true, nil
}
