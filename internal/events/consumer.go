package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/ridedispatch/internal/booking/domain"
)

var (
	eventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_events_consumed_total",
		Help: "Booking events consumed from the feed, grouped by outcome.",
	}, []string{"outcome"})
)

// Dispatcher is the slice of the engine the consumer drives.
type Dispatcher interface {
	OnBookingCreated(ctx context.Context, bookingID uuid.UUID) error
}

// ConsumerConfig defines tunables for the event consumer.
type ConsumerConfig struct {
	Subject  string
	Queue    string
	RetryMax int
	Backoff  time.Duration
}

// Consumer subscribes to booking-created events and triggers dispatch. The
// subscription is queue-grouped so multiple service replicas share the feed;
// redelivered events are harmless because the dispatch trigger is idempotent.
type Consumer struct {
	conn       *nats.Conn
	dispatcher Dispatcher
	logger     *zap.Logger
	cfg        ConsumerConfig
	tracer     trace.Tracer
}

// NewConsumer constructs a Consumer.
func NewConsumer(conn *nats.Conn, dispatcher Dispatcher, logger *zap.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Queue == "" {
		cfg.Queue = "dispatch"
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		conn:       conn,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		tracer:     otel.Tracer("booking.events.consumer"),
	}
}

// Run subscribes and blocks until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.conn == nil || c.dispatcher == nil {
		return errors.New("event consumer requires NATS connection and dispatcher")
	}
	sub, err := c.conn.QueueSubscribe(c.cfg.Subject, c.cfg.Queue, func(msg *nats.Msg) {
		c.handle(ctx, msg.Data)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	_ = sub.Drain()
	return ctx.Err()
}

// handle processes one raw event payload. Non-created events are skipped; the
// dispatch trigger is retried with backoff before the event is dropped with an
// error log.
func (c *Consumer) handle(ctx context.Context, data []byte) {
	ctx, span := c.tracer.Start(ctx, "booking.created.consume")
	defer span.End()

	var event domain.BookingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		eventsConsumedTotal.WithLabelValues("malformed").Inc()
		c.logger.Warn("malformed booking event", zap.Error(err))
		return
	}
	if event.Type != domain.EventBookingCreated {
		eventsConsumedTotal.WithLabelValues("skipped").Inc()
		return
	}

	var attempt int
	for {
		attempt++
		err := c.dispatcher.OnBookingCreated(ctx, event.BookingID)
		if err == nil {
			eventsConsumedTotal.WithLabelValues("dispatched").Inc()
			return
		}
		c.logger.Warn("dispatch trigger failed",
			zap.String("booking_id", event.BookingID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt >= c.cfg.RetryMax {
			eventsConsumedTotal.WithLabelValues("failed").Inc()
			c.logger.Error("dispatch trigger dropped after retries",
				zap.String("booking_id", event.BookingID.String()), zap.Error(err))
			return
		}
		backoff := time.Duration(attempt*attempt) * c.cfg.Backoff
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}
