// Package eventbus publishes workshop domain events to NATS.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event is the wire form of a domain event.
type Event struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	WorkshopID uint                   `json:"workshop_id"`
	ActorID    uint                   `json:"actor_id"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Publisher sends events to "<subject>.<event name>".
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// New constructs a Publisher. A nil connection turns Publish into a no-op.
func New(conn *nats.Conn, subject string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:    conn,
		subject: strings.Trim(subject, "."),
		logger:  logger.With().Str("component", "eventbus").Logger(),
	}
}

// Subject returns the subject an event name is published on.
func (p *Publisher) Subject(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), ":", ".")
	if p.subject == "" {
		return name
	}
	return p.subject + "." + name
}

// Publish encodes the event as JSON and publishes it.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Name, err)
	}

	subject := p.Subject(event.Name)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug().Str("subject", subject).Str("event_id", event.ID).Msg("event published")
	return nil
}
