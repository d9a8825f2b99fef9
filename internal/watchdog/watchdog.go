package watchdog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/example/ridedispatch/internal/booking/domain"
)

var offerTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dispatch_offer_timeouts_total",
	Help: "Offers reaped by the watchdog because the driver never responded.",
})

// Rejecter is the slice of the engine the watchdog drives. Timing out an
// offer uses the identical code path as an explicit driver rejection.
type Rejecter interface {
	Reject(ctx context.Context, bookingID, driverID uuid.UUID) (domain.Booking, error)
}

// Config defines watchdog tunables. OfferTimeout has no sensible universal
// default and must be set explicitly by the operator.
type Config struct {
	OfferTimeout time.Duration
	PollInterval time.Duration
}

// Watchdog scans for searching bookings whose outstanding offer has gone
// unanswered and rejects on the driver's behalf, so a silent driver can never
// stall a booking indefinitely.
type Watchdog struct {
	store  domain.Store
	engine Rejecter
	clock  domain.Clock
	logger *zap.Logger
	cfg    Config
}

// New constructs a Watchdog. OfferTimeout is required.
func New(store domain.Store, engine Rejecter, clock domain.Clock, logger *zap.Logger, cfg Config) (*Watchdog, error) {
	if cfg.OfferTimeout <= 0 {
		return nil, errors.New("watchdog requires a positive offer timeout")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = cfg.OfferTimeout / 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{store: store, engine: engine, clock: clock, logger: logger, cfg: cfg}, nil
}

// Run starts the polling loop until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := w.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("watchdog sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs one reaping pass. Losing the race against a real driver response
// is expected: the precondition failure from Reject is silently discarded.
func (w *Watchdog) Sweep(ctx context.Context) error {
	cutoff := w.clock.Now().Add(-w.cfg.OfferTimeout)
	stale, err := w.store.ListStaleOffers(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, booking := range stale {
		if len(booking.NotifiedDrivers) == 0 {
			continue
		}
		driverID := booking.NotifiedDrivers[len(booking.NotifiedDrivers)-1]
		_, err := w.engine.Reject(ctx, booking.ID, driverID)
		switch {
		case err == nil:
			offerTimeoutsTotal.Inc()
			w.logger.Info("offer timed out",
				zap.String("booking_id", booking.ID.String()),
				zap.String("driver_id", driverID.String()))
		case errors.Is(err, domain.ErrPreconditionFailed), errors.Is(err, domain.ErrNotFound):
			// Driver answered (or booking resolved) between scan and reject.
		default:
			w.logger.Error("timeout reject failed",
				zap.String("booking_id", booking.ID.String()), zap.Error(err))
		}
	}
	return nil
}
