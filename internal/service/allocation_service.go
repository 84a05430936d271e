package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// ScheduledRunner executes the deferred allocation of a workshop.
type ScheduledRunner interface {
	Run(ctx context.Context, workshopID uint, checkPhase bool, now time.Time) (*allocation.Result, error)
}

// AllocationService exposes the allocator family behind capability and phase checks.
type AllocationService interface {
	AddAllocation(ctx context.Context, actor Actor, submissionID, reviewerID uint, weight int) (dto.AllocationAddResponse, error)
	RemoveAllocation(ctx context.Context, actor Actor, assessmentID uint, force bool) error
	Init(ctx context.Context, actor Actor, workshopID uint, name string, settings json.RawMessage) (dto.AllocationResultResponse, error)
	Execute(ctx context.Context, actor Actor, workshopID uint, name string, settings json.RawMessage) (dto.AllocationResultResponse, error)
	RunScheduled(ctx context.Context, workshopID uint, checkPhase bool, now time.Time) (*allocation.Result, error)
}

type allocationService struct {
	store      allocation.Store
	allocators *allocation.Registry
	events     EventSink
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAllocationService constructs the allocation service.
func NewAllocationService(store allocation.Store, allocators *allocation.Registry, events EventSink, logger zerolog.Logger) AllocationService {
	return &allocationService{
		store:      store,
		allocators: allocators,
		events:     sinkOrNop(events),
		logger:     logger.With().Str("component", "allocation_service").Logger(),
		now:        time.Now,
	}
}

var allocationTracer = otel.Tracer("github.com/noah-isme/gema-workshop-api/internal/service/allocation")

// AddAllocation pairs a reviewer with a submission. When the pair exists the existing
// assessment is reported together with allocation.ErrAllocationExists.
func (s *allocationService) AddAllocation(ctx context.Context, actor Actor, submissionID, reviewerID uint, weight int) (dto.AllocationAddResponse, error) {
	if err := requireCapability(actor, CapAllocate); err != nil {
		return dto.AllocationAddResponse{}, err
	}
	submission, err := loadSubmission(ctx, s.store.Submissions, submissionID)
	if err != nil {
		return dto.AllocationAddResponse{}, err
	}
	workshop, err := loadWorkshop(ctx, s.store.Workshops, submission.WorkshopID)
	if err != nil {
		return dto.AllocationAddResponse{}, err
	}
	if !GuardsFor(workshop, actor, s.now().UTC()).AllocatingAllowed() {
		return dto.AllocationAddResponse{}, phaseDenied("allocating", workshop.Phase)
	}
	return s.add(ctx, actor, workshop, submission, reviewerID, weight)
}

func (s *allocationService) add(ctx context.Context, actor Actor, workshop models.Workshop, submission models.Submission, reviewerID uint, weight int) (dto.AllocationAddResponse, error) {
	id, err := allocation.AddAllocation(ctx, s.store, workshop, submission, reviewerID, weight)
	if errors.Is(err, allocation.ErrAllocationExists) {
		return dto.AllocationAddResponse{AssessmentID: id, Existing: true}, err
	}
	if err != nil {
		return dto.AllocationAddResponse{}, err
	}

	s.logger.Info().
		Uint("workshop_id", workshop.ID).
		Uint("submission_id", submission.ID).
		Uint("reviewer_id", reviewerID).
		Int("weight", weight).
		Uint("actor_id", actor.ID).
		Msg("allocation added")
	return dto.AllocationAddResponse{AssessmentID: id}, nil
}

func (s *allocationService) RemoveAllocation(ctx context.Context, actor Actor, assessmentID uint, force bool) error {
	if err := requireCapability(actor, CapAllocate); err != nil {
		return err
	}
	assessment, err := loadAssessment(ctx, s.store.Assessments, assessmentID)
	if err != nil {
		return err
	}
	submission, err := loadSubmission(ctx, s.store.Submissions, assessment.SubmissionID)
	if err != nil {
		return err
	}
	workshop, err := loadWorkshop(ctx, s.store.Workshops, submission.WorkshopID)
	if err != nil {
		return err
	}
	if !GuardsFor(workshop, actor, s.now().UTC()).AllocatingAllowed() {
		return phaseDenied("removing an allocation", workshop.Phase)
	}

	if err := allocation.RemoveAllocation(ctx, s.store, workshop, assessmentID, force); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssessmentNotFound
		}
		return err
	}
	return nil
}

func (s *allocationService) Init(ctx context.Context, actor Actor, workshopID uint, name string, settings json.RawMessage) (dto.AllocationResultResponse, error) {
	allocator, workshop, err := s.prepare(ctx, actor, workshopID, name)
	if err != nil {
		return dto.AllocationResultResponse{}, err
	}

	result, err := allocator.Init(ctx, workshop, settings)
	if err != nil {
		return dto.AllocationResultResponse{}, err
	}
	return dto.NewAllocationResultResponse(name, result), nil
}

func (s *allocationService) Execute(ctx context.Context, actor Actor, workshopID uint, name string, settings json.RawMessage) (dto.AllocationResultResponse, error) {
	attrs := []attribute.KeyValue{
		attribute.Int64("workshop.id", int64(workshopID)),
		attribute.String("allocation.allocator", name),
	}
	ctx, span := allocationTracer.Start(ctx, "allocation.execute", trace.WithAttributes(attrs...))
	defer span.End()

	allocator, workshop, err := s.prepare(ctx, actor, workshopID, name)
	if err != nil {
		span.SetStatus(codes.Error, "allocation_rejected")
		return dto.AllocationResultResponse{}, err
	}

	result := allocation.NewResult(s.now().UTC())
	if err := allocator.Execute(ctx, workshop, settings, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "allocation_failed")
		s.logger.Error().Err(err).Uint("workshop_id", workshopID).Str("allocator", name).Msg("allocation failed")
		return dto.AllocationResultResponse{}, err
	}
	span.SetAttributes(attribute.String("allocation.status", result.Status.String()))

	s.events.Fire(ctx, EventAllocationExecuted, EventPayload{
		WorkshopID: workshopID,
		ActorID:    actor.ID,
		EntityType: "workshop",
		EntityID:   entityRef(workshopID),
		Data:       map[string]interface{}{"allocator": name, "status": result.Status.String(), "message": result.Message},
	})
	return dto.NewAllocationResultResponse(name, result), nil
}

func (s *allocationService) prepare(ctx context.Context, actor Actor, workshopID uint, name string) (allocation.Allocator, models.Workshop, error) {
	if err := requireCapability(actor, CapAllocate); err != nil {
		return nil, models.Workshop{}, err
	}
	allocator, err := s.allocators.Get(name)
	if err != nil {
		return nil, models.Workshop{}, err
	}
	workshop, err := loadWorkshop(ctx, s.store.Workshops, workshopID)
	if err != nil {
		return nil, models.Workshop{}, err
	}
	if !GuardsFor(workshop, actor, s.now().UTC()).AllocatingAllowed() {
		return nil, models.Workshop{}, phaseDenied("allocating", workshop.Phase)
	}
	return allocator, workshop, nil
}

func (s *allocationService) RunScheduled(ctx context.Context, workshopID uint, checkPhase bool, now time.Time) (*allocation.Result, error) {
	allocator, err := s.allocators.Get(allocation.ScheduledName)
	if err != nil {
		return nil, err
	}
	runner, ok := allocator.(ScheduledRunner)
	if !ok {
		return nil, fmt.Errorf("allocator %q cannot run deferred", allocation.ScheduledName)
	}
	return runner.Run(ctx, workshopID, checkPhase, now)
}
