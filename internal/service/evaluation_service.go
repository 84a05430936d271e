package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/evaluation"
	"github.com/noah-isme/gema-workshop-api/internal/observability"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// EvaluationService runs the workshop's evaluator over the peer assessments.
type EvaluationService interface {
	Evaluate(ctx context.Context, actor Actor, workshopID uint, settings json.RawMessage) (dto.EvaluationResponse, error)
	ClearGradingGrades(ctx context.Context, actor Actor, workshopID uint) (int64, error)
}

type evaluationService struct {
	workshops    repository.WorkshopRepository
	assessments  repository.AssessmentRepository
	aggregations repository.AggregationRepository
	evaluators   *evaluation.Registry
	aggregation  AggregationService
	events       EventSink
	logger       zerolog.Logger
	now          func() time.Time
}

// NewEvaluationService constructs the evaluation service.
func NewEvaluationService(
	workshops repository.WorkshopRepository,
	assessments repository.AssessmentRepository,
	aggregations repository.AggregationRepository,
	evaluators *evaluation.Registry,
	aggregation AggregationService,
	events EventSink,
	logger zerolog.Logger,
) EvaluationService {
	return &evaluationService{
		workshops:    workshops,
		assessments:  assessments,
		aggregations: aggregations,
		evaluators:   evaluators,
		aggregation:  aggregation,
		events:       sinkOrNop(events),
		logger:       logger.With().Str("component", "evaluation_service").Logger(),
		now:          time.Now,
	}
}

var evaluationTracer = otel.Tracer("github.com/noah-isme/gema-workshop-api/internal/service/evaluation")

// Evaluate writes the evaluator's changed grading grades and weights, then re-aggregates
// the workshop. Re-running it over unchanged data writes nothing.
func (s *evaluationService) Evaluate(ctx context.Context, actor Actor, workshopID uint, settings json.RawMessage) (dto.EvaluationResponse, error) {
	ctx, span := evaluationTracer.Start(ctx, "evaluation.evaluate")
	defer span.End()
	span.SetAttributes(attribute.Int64("workshop.id", int64(workshopID)))

	if err := requireCapability(actor, CapOverrideGrades); err != nil {
		span.SetStatus(codes.Error, "forbidden")
		return dto.EvaluationResponse{}, err
	}
	workshop, err := loadWorkshop(ctx, s.workshops, workshopID)
	if err != nil {
		span.SetStatus(codes.Error, "workshop_lookup_failed")
		return dto.EvaluationResponse{}, err
	}
	if !GuardsFor(workshop, actor, s.now().UTC()).OverridingAllowed() {
		span.SetStatus(codes.Error, "phase_forbidden")
		return dto.EvaluationResponse{}, phaseDenied("evaluating", workshop.Phase)
	}

	evaluator, err := s.evaluators.Get(workshop.Evaluation)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown_evaluator")
		return dto.EvaluationResponse{}, err
	}

	notExample := false
	assessments, err := s.assessments.List(ctx, repository.AssessmentFilter{WorkshopID: workshopID, Example: &notExample})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessment_lookup_failed")
		return dto.EvaluationResponse{}, err
	}

	changes, err := evaluator.Evaluate(ctx, workshop, assessments, settings)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation_failed")
		return dto.EvaluationResponse{}, err
	}

	for _, change := range changes {
		if change.Weight != nil {
			if err := s.assessments.UpdateWeight(ctx, change.AssessmentID, *change.Weight); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "weight_update_failed")
				return dto.EvaluationResponse{}, err
			}
		}
		if !change.TouchesGradingGrade() {
			continue
		}
		var value *float64
		if !change.ClearGradingGrade {
			value = change.GradingGrade
		}
		if err := s.assessments.UpdateGradingGrade(ctx, change.AssessmentID, value); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "grading_grade_update_failed")
			return dto.EvaluationResponse{}, err
		}
	}
	observability.EvaluationChanges().Add(float64(len(changes)))
	span.SetAttributes(attribute.Int("evaluation.changes", len(changes)))

	if err := s.aggregation.RefreshWorkshop(ctx, workshopID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation_failed")
		return dto.EvaluationResponse{}, err
	}

	if len(changes) > 0 {
		s.events.Fire(ctx, EventGradingEvaluated, EventPayload{
			WorkshopID: workshopID,
			ActorID:    actor.ID,
			EntityType: "workshop",
			EntityID:   entityRef(workshopID),
			Data:       map[string]interface{}{"evaluator": evaluator.Name(), "changed": len(changes)},
		})
	}
	s.logger.Info().Uint("workshop_id", workshopID).Str("evaluator", evaluator.Name()).Int("changed", len(changes)).Msg("grading grades evaluated")

	return dto.EvaluationResponse{Evaluator: evaluator.Name(), Changed: len(changes)}, nil
}

// ClearGradingGrades drops the computed grading grades of peer assessments and recomputes
// the aggregates from what remains.
func (s *evaluationService) ClearGradingGrades(ctx context.Context, actor Actor, workshopID uint) (int64, error) {
	if err := requireCapability(actor, CapOverrideGrades); err != nil {
		return 0, err
	}
	workshop, err := loadWorkshop(ctx, s.workshops, workshopID)
	if err != nil {
		return 0, err
	}
	if !GuardsFor(workshop, actor, s.now().UTC()).OverridingAllowed() {
		return 0, phaseDenied("clearing grading grades", workshop.Phase)
	}

	cleared, err := s.assessments.ClearGradingGrades(ctx, workshopID)
	if err != nil {
		return 0, err
	}
	if err := s.aggregations.ClearGrades(ctx, workshopID); err != nil {
		return cleared, err
	}
	if err := s.aggregation.RefreshWorkshop(ctx, workshopID); err != nil {
		return cleared, err
	}
	return cleared, nil
}
