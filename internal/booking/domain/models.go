package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	StatusPending        BookingStatus = "pending"
	StatusSearching      BookingStatus = "searching"
	StatusDriverAssigned BookingStatus = "driver_assigned"
	StatusDriverArriving BookingStatus = "driver_arriving"
	StatusInProgress     BookingStatus = "in_progress"
	StatusCompleted      BookingStatus = "completed"
	StatusCancelled      BookingStatus = "cancelled"
)

// Error taxonomy surfaced by the engine and the store. Boundary layers map
// these onto transport status codes.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotFound           = errors.New("booking not found")
)

// ReasonNoDrivers is recorded when candidate exhaustion cancels a booking.
const ReasonNoDrivers = "No drivers available"

// ActiveStatuses are the statuses that count against the one-active-booking
// per rider rule.
var ActiveStatuses = []BookingStatus{
	StatusPending,
	StatusSearching,
	StatusDriverAssigned,
	StatusDriverArriving,
	StatusInProgress,
}

var allowedTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:        {StatusSearching, StatusCancelled},
	StatusSearching:      {StatusDriverAssigned, StatusCancelled},
	StatusDriverAssigned: {StatusDriverArriving, StatusCancelled},
	StatusDriverArriving: {StatusInProgress, StatusCancelled},
	StatusInProgress:     {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether the status machine permits moving to next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further mutation is permitted.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether the status counts as an in-flight booking for its rider.
func (s BookingStatus) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Fare is the server-side fare breakdown. The engine validates presence only;
// amounts are opaque to dispatch.
type Fare struct {
	BaseFare        float64 `json:"baseFare"`
	DistanceFare    float64 `json:"distanceFare"`
	TimeFare        float64 `json:"timeFare"`
	SurgeMultiplier float64 `json:"surgeMultiplier"`
	Discount        float64 `json:"discount"`
	Total           float64 `json:"total"`
	Currency        string  `json:"currency"`
}

// DefaultFare is applied when a create request carries no fare estimate.
func DefaultFare() Fare {
	return Fare{BaseFare: 50, SurgeMultiplier: 1.0, Total: 50, Currency: "PHP"}
}

type Booking struct {
	ID       uuid.UUID
	RiderID  uuid.UUID
	DriverID *uuid.UUID

	Status BookingStatus

	Pickup          GeoPoint
	Dropoff         GeoPoint
	PaymentMethod   string
	Fare            Fare
	DistanceKm      float64
	DurationMinutes float64
	RoutePolyline   string

	// NotifiedDrivers is the ordered set of drivers already offered this
	// booking. It only ever grows; a driver never appears twice.
	NotifiedDrivers []uuid.UUID

	CancellationReason string

	RequestedAt time.Time
	// OfferedAt is stamped each time an offer goes out, for the timeout watchdog.
	OfferedAt   *time.Time
	AcceptedAt  *time.Time
	CancelledAt *time.Time

	Version int64
}

// Notified reports whether the driver has already been offered this booking.
func (b *Booking) Notified(driverID uuid.UUID) bool {
	for _, id := range b.NotifiedDrivers {
		if id == driverID {
			return true
		}
	}
	return false
}

// AddNotified appends the driver to the notified set if absent.
func (b *Booking) AddNotified(driverID uuid.UUID) {
	if !b.Notified(driverID) {
		b.NotifiedDrivers = append(b.NotifiedDrivers, driverID)
	}
}

// Store is the transactional booking record store. Transact runs fn against
// the current booking state as one atomic read-modify-write: fn observes the
// committed state, mutates the copy, and the whole step commits only if fn
// returns nil. Any error from fn aborts with no visible write.
type Store interface {
	CreateBooking(ctx context.Context, booking Booking) (Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (Booking, error)
	Transact(ctx context.Context, id uuid.UUID, fn func(*Booking) error) (Booking, error)
	// ListStaleOffers returns searching bookings whose outstanding offer went
	// out before the cutoff.
	ListStaleOffers(ctx context.Context, before time.Time) ([]Booking, error)
	CountCompletedByRider(ctx context.Context, riderID uuid.UUID) (int, error)
}

type DriverStatus string

const (
	DriverOnline  DriverStatus = "online"
	DriverOffline DriverStatus = "offline"
	DriverOnTrip  DriverStatus = "on_trip"
)

// DriverDirectory holds live driver presence. The engine reads online
// candidates from it and writes the on_trip transition after an assignment
// commits; it never owns the records.
type DriverDirectory interface {
	ListOnline(ctx context.Context) ([]uuid.UUID, error)
	SetStatus(ctx context.Context, driverID uuid.UUID, status DriverStatus) error
}

// Notification is the fire-and-forget push payload.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Notifier delivers best-effort pushes. Failures are logged by callers and
// never block a state transition.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, n Notification) error
}

// Selector picks the next candidate from the online drivers not yet offered
// the booking. Implementations must be pure: never an offline driver, never a
// repeat, ok=false when the filtered set is empty.
type Selector interface {
	Select(online []uuid.UUID, notified []uuid.UUID) (uuid.UUID, bool)
}

type BookingEventType string

const (
	EventBookingCreated   BookingEventType = "BookingCreated"
	EventDispatchStarted  BookingEventType = "DispatchStarted"
	EventDriverNotified   BookingEventType = "DriverNotified"
	EventDriverAssigned   BookingEventType = "DriverAssigned"
	EventBookingCancelled BookingEventType = "BookingCancelled"
)

type BookingEvent struct {
	BookingID uuid.UUID        `json:"booking_id"`
	Type      BookingEventType `json:"type"`
	Payload   map[string]any   `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event BookingEvent) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
