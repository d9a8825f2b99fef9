package events

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ridedispatch/internal/booking/domain"
)

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, bookingID uuid.UUID) error

func (f DispatcherFunc) OnBookingCreated(ctx context.Context, bookingID uuid.UUID) error {
	return f(ctx, bookingID)
}

// LocalTrigger is an in-process event feed for single-binary runs without a
// broker: created events invoke the dispatcher directly on a fresh goroutine,
// everything else is discarded.
type LocalTrigger struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewLocalTrigger constructs the trigger.
func NewLocalTrigger(dispatcher Dispatcher, logger *zap.Logger) *LocalTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalTrigger{dispatcher: dispatcher, logger: logger}
}

// Publish satisfies domain.EventPublisher.
func (t *LocalTrigger) Publish(_ context.Context, event domain.BookingEvent) error {
	if event.Type != domain.EventBookingCreated {
		return nil
	}
	go func(id uuid.UUID) {
		if err := t.dispatcher.OnBookingCreated(context.Background(), id); err != nil {
			t.logger.Error("dispatch trigger failed", zap.String("booking_id", id.String()), zap.Error(err))
		}
	}(event.BookingID)
	return nil
}
