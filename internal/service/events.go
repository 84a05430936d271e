package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/pkg/eventbus"
)

// Event names fired by the workshop.
const (
	EventWorkshopCreated     = "workshop_created"
	EventWorkshopUpdated     = "workshop_updated"
	EventWorkshopReset       = "workshop_reset"
	EventWorkshopDeleted     = "workshop_deleted"
	EventPhaseSwitched       = "phase_switched"
	EventSubmissionCreated   = "submission_created"
	EventSubmissionUpdated   = "submission_updated"
	EventSubmissionDeleted   = "submission_deleted"
	EventSubmissionAssessed  = "submission_assessed"
	EventAssessmentEvaluated = "assessment_evaluated"
	EventAllocationExecuted  = "allocation_executed"
	EventGradesPublished     = "grades_published"
	EventGradingEvaluated    = "grading_evaluated"
)

// EventPayload describes what an event is about.
type EventPayload struct {
	WorkshopID uint
	ActorID    uint
	EntityType string
	EntityID   *uint
	Data       map[string]interface{}
}

// EventSink receives fired domain events. Delivery failures never fail the operation
// that fired the event.
type EventSink interface {
	Fire(ctx context.Context, name string, payload EventPayload)
}

// EventPublisher is the transport an event is published over.
type EventPublisher interface {
	Publish(ctx context.Context, event eventbus.Event) error
}

type fanoutSink struct {
	sinks []EventSink
}

// NewEventSinks fans every event out to each sink in order.
func NewEventSinks(sinks ...EventSink) EventSink {
	return fanoutSink{sinks: sinks}
}

func (f fanoutSink) Fire(ctx context.Context, name string, payload EventPayload) {
	for _, sink := range f.sinks {
		if sink != nil {
			sink.Fire(ctx, name, payload)
		}
	}
}

type busSink struct {
	publisher EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewBusEventSink publishes events to the message bus.
func NewBusEventSink(publisher EventPublisher, logger zerolog.Logger) EventSink {
	return &busSink{
		publisher: publisher,
		logger:    logger.With().Str("component", "event_bus_sink").Logger(),
		now:       time.Now,
	}
}

func (s *busSink) Fire(ctx context.Context, name string, payload EventPayload) {
	data := make(map[string]interface{}, len(payload.Data)+2)
	for key, value := range payload.Data {
		data[key] = value
	}
	if payload.EntityID != nil {
		data["entity_type"] = payload.EntityType
		data["entity_id"] = *payload.EntityID
	}

	event := eventbus.Event{
		ID:         uuid.NewString(),
		Name:       name,
		WorkshopID: payload.WorkshopID,
		ActorID:    payload.ActorID,
		Payload:    data,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event", name).Uint("workshop_id", payload.WorkshopID).Msg("failed to publish event")
	}
}

// nopSink discards events.
type nopSink struct{}

func (nopSink) Fire(context.Context, string, EventPayload) {}

func sinkOrNop(sink EventSink) EventSink {
	if sink == nil {
		return nopSink{}
	}
	return sink
}

func entityRef(id uint) *uint {
	return &id
}
