package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ridedispatch/internal/booking/domain"
)

// MemoryStore implements domain.Store with a single mutex guarding all
// bookings. Transact runs its callback under the lock, which gives every
// read-modify-write step the atomic compare-and-set behaviour the engine
// depends on: the callback sees committed state and either commits its
// mutation in full or leaves nothing behind.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]domain.Booking
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[uuid.UUID]domain.Booking)}
}

// CreateBooking inserts the booking, enforcing the one-active-booking-per-rider
// rule inside the same critical section so concurrent creates for a rider
// admit exactly one.
func (m *MemoryStore) CreateBooking(_ context.Context, booking domain.Booking) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bookings {
		if existing.RiderID == booking.RiderID && existing.Status.Active() {
			return domain.Booking{}, fmt.Errorf("%w: rider already has an active booking", domain.ErrPreconditionFailed)
		}
	}
	m.bookings[booking.ID] = clone(booking)
	return booking, nil
}

// GetBooking retrieves a booking copy.
func (m *MemoryStore) GetBooking(_ context.Context, id uuid.UUID) (domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	booking, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return clone(booking), nil
}

// Transact applies fn to the current booking state atomically. fn receives a
// copy; a nil return commits the mutated copy with a version bump, any error
// aborts with no visible write and is returned unchanged.
func (m *MemoryStore) Transact(_ context.Context, id uuid.UUID, fn func(*domain.Booking) error) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	next := clone(current)
	if err := fn(&next); err != nil {
		return domain.Booking{}, err
	}
	next.Version = current.Version + 1
	m.bookings[id] = clone(next)
	return next, nil
}

// ListStaleOffers returns searching bookings whose last offer predates the cutoff.
func (m *MemoryStore) ListStaleOffers(_ context.Context, before time.Time) ([]domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stale []domain.Booking
	for _, booking := range m.bookings {
		if booking.Status != domain.StatusSearching || booking.OfferedAt == nil {
			continue
		}
		if booking.OfferedAt.Before(before) {
			stale = append(stale, clone(booking))
		}
	}
	return stale, nil
}

// CountCompletedByRider counts completed rides, used by first-ride-only promos.
func (m *MemoryStore) CountCompletedByRider(_ context.Context, riderID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, booking := range m.bookings {
		if booking.RiderID == riderID && booking.Status == domain.StatusCompleted {
			count++
		}
	}
	return count, nil
}

func clone(b domain.Booking) domain.Booking {
	out := b
	out.NotifiedDrivers = append([]uuid.UUID(nil), b.NotifiedDrivers...)
	if b.DriverID != nil {
		id := *b.DriverID
		out.DriverID = &id
	}
	out.OfferedAt = cloneTime(b.OfferedAt)
	out.AcceptedAt = cloneTime(b.AcceptedAt)
	out.CancelledAt = cloneTime(b.CancelledAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
