package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ridedispatch/internal/booking/domain"
)

// Engine drives the booking dispatch state machine. Every transition that
// reads-then-writes booking state goes through the store's Transact primitive;
// directory writes and notifications run strictly after the commit and are
// best effort.
type Engine struct {
	store     domain.Store
	directory domain.DriverDirectory
	notifier  domain.Notifier
	selector  domain.Selector
	events    domain.EventPublisher
	clock     domain.Clock
	logger    *zap.Logger
}

// New constructs an Engine with the required collaborators.
func New(store domain.Store, directory domain.DriverDirectory, notifier domain.Notifier, selector domain.Selector, events domain.EventPublisher, clock domain.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:     store,
		directory: directory,
		notifier:  notifier,
		selector:  selector,
		events:    events,
		clock:     clock,
		logger:    logger,
	}
}

// CreateBookingRequest carries the rider-facing create payload. Pickup and
// dropoff are pointers so missing fields are distinguishable from zero
// coordinates; the payload itself is validated for presence only.
type CreateBookingRequest struct {
	RiderID         uuid.UUID
	Pickup          *domain.GeoPoint
	Dropoff         *domain.GeoPoint
	PaymentMethod   string
	Fare            *domain.Fare
	DistanceKm      float64
	DurationMinutes float64
	RoutePolyline   string
}

// CreateBooking inserts a pending booking for the rider. The store enforces
// at most one active booking per rider; dispatch begins when the created
// event is consumed.
func (e *Engine) CreateBooking(ctx context.Context, req CreateBookingRequest) (domain.Booking, error) {
	if req.Pickup == nil || req.Dropoff == nil || req.PaymentMethod == "" {
		return domain.Booking{}, fmt.Errorf("%w: missing required fields", domain.ErrInvalidArgument)
	}

	fare := domain.DefaultFare()
	if req.Fare != nil {
		fare = *req.Fare
	}

	booking := domain.Booking{
		ID:              uuid.New(),
		RiderID:         req.RiderID,
		Status:          domain.StatusPending,
		Pickup:          *req.Pickup,
		Dropoff:         *req.Dropoff,
		PaymentMethod:   req.PaymentMethod,
		Fare:            fare,
		DistanceKm:      req.DistanceKm,
		DurationMinutes: req.DurationMinutes,
		RoutePolyline:   req.RoutePolyline,
		RequestedAt:     e.clock.Now(),
		Version:         1,
	}

	created, err := e.store.CreateBooking(ctx, booking)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("create booking: %w", err)
	}

	e.publish(ctx, domain.BookingEvent{
		BookingID: created.ID,
		Type:      domain.EventBookingCreated,
		Payload:   map[string]any{"rider_id": created.RiderID.String()},
		CreatedAt: e.clock.Now(),
	})

	return created, nil
}

// GetBooking retrieves a booking by id.
func (e *Engine) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return e.store.GetBooking(ctx, id)
}

// errAlreadyDispatched marks a redelivered created event for a booking that
// has already left pending. The trigger treats it as a clean no-op.
var errAlreadyDispatched = errors.New("booking already dispatched")

// OnBookingCreated reacts to a booking-created event. Safe under at-least-once
// delivery: the pending guard turns redeliveries into no-ops.
func (e *Engine) OnBookingCreated(ctx context.Context, bookingID uuid.UUID) error {
	_, err := e.store.Transact(ctx, bookingID, func(b *domain.Booking) error {
		if b.Status != domain.StatusPending {
			return errAlreadyDispatched
		}
		b.Status = domain.StatusSearching
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyDispatched) {
			return nil
		}
		return fmt.Errorf("begin dispatch: %w", err)
	}

	e.logger.Info("dispatch started", zap.String("booking_id", bookingID.String()))
	e.publish(ctx, domain.BookingEvent{
		BookingID: bookingID,
		Type:      domain.EventDispatchStarted,
		CreatedAt: e.clock.Now(),
	})

	return e.offerNext(ctx, bookingID)
}

// offerNext runs one offer round for a searching booking: select the next
// candidate, persist the grown notified set (or the cancellation), then emit
// the side effects.
func (e *Engine) offerNext(ctx context.Context, bookingID uuid.UUID) error {
	online, err := e.directory.ListOnline(ctx)
	if err != nil {
		return fmt.Errorf("list online drivers: %w", err)
	}

	var next *uuid.UUID
	booking, err := e.store.Transact(ctx, bookingID, func(b *domain.Booking) error {
		if b.Status != domain.StatusSearching {
			return fmt.Errorf("%w: booking is not searching", domain.ErrPreconditionFailed)
		}
		next = e.advance(b, online)
		return nil
	})
	if err != nil {
		return err
	}

	e.emitOfferEffects(ctx, booking, next)
	return nil
}

// advance mutates the booking inside a transaction: offer the next candidate
// or cancel on exhaustion. Returns the selected driver, nil when cancelled.
func (e *Engine) advance(b *domain.Booking, online []uuid.UUID) *uuid.UUID {
	driverID, ok := e.selector.Select(online, b.NotifiedDrivers)
	if !ok {
		now := e.clock.Now()
		b.Status = domain.StatusCancelled
		b.CancellationReason = domain.ReasonNoDrivers
		b.CancelledAt = &now
		return nil
	}
	b.AddNotified(driverID)
	now := e.clock.Now()
	b.OfferedAt = &now
	return &driverID
}

// emitOfferEffects sends the post-commit notifications for one offer round.
func (e *Engine) emitOfferEffects(ctx context.Context, booking domain.Booking, next *uuid.UUID) {
	if next != nil {
		offersTotal.Inc()
		e.notify(ctx, *next, domain.Notification{
			Title: "New Ride Request",
			Body:  "A passenger is looking for a ride near you.",
			Data:  map[string]string{"bookingId": booking.ID.String(), "type": "new_booking"},
		})
		e.publish(ctx, domain.BookingEvent{
			BookingID: booking.ID,
			Type:      domain.EventDriverNotified,
			Payload:   map[string]any{"driver_id": next.String()},
			CreatedAt: e.clock.Now(),
		})
		return
	}

	cancellationsTotal.WithLabelValues("no_drivers").Inc()
	e.logger.Info("no drivers found", zap.String("booking_id", booking.ID.String()))
	e.notify(ctx, booking.RiderID, domain.Notification{
		Title: "No Drivers Available",
		Body:  "We couldn't find a driver near you right now. Please try again later.",
		Data:  map[string]string{"bookingId": booking.ID.String(), "type": "booking_cancelled"},
	})
	e.publish(ctx, domain.BookingEvent{
		BookingID: booking.ID,
		Type:      domain.EventBookingCancelled,
		Payload:   map[string]any{"reason": booking.CancellationReason},
		CreatedAt: e.clock.Now(),
	})
}

// Accept records a driver accepting an outstanding offer. Only one transaction
// can observe the searching status; every later accept fails the guard.
func (e *Engine) Accept(ctx context.Context, bookingID, driverID uuid.UUID) (domain.Booking, error) {
	booking, err := e.store.Transact(ctx, bookingID, func(b *domain.Booking) error {
		if b.Status != domain.StatusSearching {
			return fmt.Errorf("%w: ride already taken or cancelled", domain.ErrPreconditionFailed)
		}
		now := e.clock.Now()
		b.Status = domain.StatusDriverAssigned
		b.DriverID = &driverID
		b.AcceptedAt = &now
		return nil
	})
	if err != nil {
		if isPrecondition(err) {
			acceptConflictsTotal.Inc()
		}
		return domain.Booking{}, err
	}

	assignmentsTotal.Inc()

	// The directory write happens after the booking commit; a failure here is
	// an accepted inconsistency window, never a rollback.
	if err := e.directory.SetStatus(ctx, driverID, domain.DriverOnTrip); err != nil {
		e.logger.Error("driver status update failed",
			zap.String("driver_id", driverID.String()), zap.Error(err))
	}

	e.notify(ctx, booking.RiderID, domain.Notification{
		Title: "Driver Assigned",
		Body:  "Your driver is on the way.",
		Data:  map[string]string{"bookingId": booking.ID.String(), "type": "driver_assigned"},
	})
	e.publish(ctx, domain.BookingEvent{
		BookingID: booking.ID,
		Type:      domain.EventDriverAssigned,
		Payload:   map[string]any{"driver_id": driverID.String()},
		CreatedAt: e.clock.Now(),
	})

	return booking, nil
}

// Reject records a driver declining (or timing out on) an offer and, inside
// the same transaction, either re-offers to the next candidate or cancels on
// exhaustion. The timeout watchdog calls this exact path on the driver's
// behalf.
func (e *Engine) Reject(ctx context.Context, bookingID, driverID uuid.UUID) (domain.Booking, error) {
	online, err := e.directory.ListOnline(ctx)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("list online drivers: %w", err)
	}

	var next *uuid.UUID
	booking, err := e.store.Transact(ctx, bookingID, func(b *domain.Booking) error {
		if b.Status != domain.StatusSearching {
			return fmt.Errorf("%w: ride no longer searching", domain.ErrPreconditionFailed)
		}
		b.AddNotified(driverID)
		next = e.advance(b, online)
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	rejectionsTotal.Inc()
	e.emitOfferEffects(ctx, booking, next)
	return booking, nil
}

// Cancel handles a rider-initiated cancellation of any non-terminal booking.
func (e *Engine) Cancel(ctx context.Context, bookingID, riderID uuid.UUID, reason string) (domain.Booking, error) {
	if reason == "" {
		reason = "Cancelled by rider"
	}
	booking, err := e.store.Transact(ctx, bookingID, func(b *domain.Booking) error {
		if b.RiderID != riderID {
			return fmt.Errorf("%w: booking does not belong to caller", domain.ErrPreconditionFailed)
		}
		if b.Status.Terminal() {
			return fmt.Errorf("%w: booking already finished", domain.ErrPreconditionFailed)
		}
		now := e.clock.Now()
		b.Status = domain.StatusCancelled
		b.CancellationReason = reason
		b.CancelledAt = &now
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	cancellationsTotal.WithLabelValues("rider").Inc()

	if booking.DriverID != nil {
		if err := e.directory.SetStatus(ctx, *booking.DriverID, domain.DriverOnline); err != nil {
			e.logger.Error("driver status update failed",
				zap.String("driver_id", booking.DriverID.String()), zap.Error(err))
		}
		e.notify(ctx, *booking.DriverID, domain.Notification{
			Title: "Booking Cancelled",
			Body:  "The passenger cancelled the ride.",
			Data:  map[string]string{"bookingId": booking.ID.String(), "type": "booking_cancelled"},
		})
	}
	e.publish(ctx, domain.BookingEvent{
		BookingID: booking.ID,
		Type:      domain.EventBookingCancelled,
		Payload:   map[string]any{"reason": reason},
		CreatedAt: e.clock.Now(),
	})

	return booking, nil
}

func (e *Engine) notify(ctx context.Context, userID uuid.UUID, n domain.Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, userID, n); err != nil {
		e.logger.Warn("notification delivery failed",
			zap.String("user_id", userID.String()),
			zap.String("type", n.Data["type"]),
			zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, event domain.BookingEvent) {
	if e.events == nil {
		return
	}
	_ = e.events.Publish(ctx, event)
}

func isPrecondition(err error) bool {
	return errors.Is(err, domain.ErrPreconditionFailed)
}
