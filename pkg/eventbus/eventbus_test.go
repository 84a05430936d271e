package eventbus

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	publisher := New(nil, "gema.workshop.events.", zerolog.Nop())
	require.Equal(t, "gema.workshop.events.phase_switched", publisher.Subject("phase_switched"))

	bare := New(nil, "", zerolog.Nop())
	require.Equal(t, "submission.created", bare.Subject("submission:created"))
}

func TestPublishWithoutConnectionIsNoop(t *testing.T) {
	publisher := New(nil, "gema", zerolog.Nop())
	require.NoError(t, publisher.Publish(context.Background(), Event{Name: "phase_switched"}))
}
