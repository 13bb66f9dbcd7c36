package interfaces

import (
	"context"
	"errors"

	alertapp "oxywatch-cloud/internal/alerts/application"
	readingevents "oxywatch-cloud/internal/readings/application/events"
)

// ReadingReceivedConsumer adapts sensor reading events into the alert application service.
type ReadingReceivedConsumer struct {
	app *alertapp.Service
}

// NewReadingReceivedConsumer constructs a consumer.
func NewReadingReceivedConsumer(app *alertapp.Service) (*ReadingReceivedConsumer, error) {
	if app == nil {
		return nil, errors.New("alerts consumer: nil service")
	}
	return &ReadingReceivedConsumer{app: app}, nil
}

// Consume handles a reading received event.
func (c *ReadingReceivedConsumer) Consume(ctx context.Context, event readingevents.ReadingReceived) error {
	return c.app.HandleReadingReceived(ctx, event)
}
