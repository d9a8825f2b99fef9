package watchdog_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/ridedispatch/internal/booking/domain"
	"github.com/example/ridedispatch/internal/booking/repository"
	"github.com/example/ridedispatch/internal/booking/service"
	"github.com/example/ridedispatch/internal/directory"
	"github.com/example/ridedispatch/internal/dispatch"
	"github.com/example/ridedispatch/internal/notify"
	"github.com/example/ridedispatch/internal/watchdog"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestNewRequiresOfferTimeout(t *testing.T) {
	_, err := watchdog.New(repository.NewMemoryStore(), nil, domain.SystemClock{}, nil, watchdog.Config{})
	require.Error(t, err)
}

func TestSweepRejectsStaleOfferAndAdvances(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0).UTC()}
	store := repository.NewMemoryStore()
	dir := directory.NewMemoryDirectory()
	notifier := notify.NewRecorder()
	engine := service.New(store, dir, notifier, dispatch.FirstAvailable(), nil, clock, nil)

	slow := uuid.New()
	next := uuid.New()
	require.NoError(t, dir.SetStatus(ctx, slow, domain.DriverOnline))
	require.NoError(t, dir.SetStatus(ctx, next, domain.DriverOnline))

	created, err := engine.CreateBooking(ctx, service.CreateBookingRequest{
		RiderID:       uuid.New(),
		Pickup:        &domain.GeoPoint{Lat: 1, Lng: 1},
		Dropoff:       &domain.GeoPoint{Lat: 2, Lng: 2},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	require.NoError(t, engine.OnBookingCreated(ctx, created.ID))

	dog, err := watchdog.New(store, engine, clock, nil, watchdog.Config{OfferTimeout: 30 * time.Second})
	require.NoError(t, err)

	// Offer is still fresh: nothing to reap.
	require.NoError(t, dog.Sweep(ctx))
	got, err := store.GetBooking(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{slow}, got.NotifiedDrivers)

	clock.advance(time.Minute)
	require.NoError(t, dog.Sweep(ctx))

	got, err = store.GetBooking(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSearching, got.Status)
	require.Equal(t, []uuid.UUID{slow, next}, got.NotifiedDrivers)
	require.Len(t, notifier.SentTo(next), 1)
}

func TestSweepCancelsWhenNoCandidatesRemain(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0).UTC()}
	store := repository.NewMemoryStore()
	dir := directory.NewMemoryDirectory()
	notifier := notify.NewRecorder()
	engine := service.New(store, dir, notifier, dispatch.FirstAvailable(), nil, clock, nil)

	only := uuid.New()
	riderID := uuid.New()
	require.NoError(t, dir.SetStatus(ctx, only, domain.DriverOnline))

	created, err := engine.CreateBooking(ctx, service.CreateBookingRequest{
		RiderID:       riderID,
		Pickup:        &domain.GeoPoint{Lat: 1, Lng: 1},
		Dropoff:       &domain.GeoPoint{Lat: 2, Lng: 2},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	require.NoError(t, engine.OnBookingCreated(ctx, created.ID))

	dog, err := watchdog.New(store, engine, clock, nil, watchdog.Config{OfferTimeout: 30 * time.Second})
	require.NoError(t, err)

	clock.advance(time.Minute)
	require.NoError(t, dog.Sweep(ctx))

	got, err := store.GetBooking(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, got.Status)
	require.Equal(t, domain.ReasonNoDrivers, got.CancellationReason)
	require.Len(t, notifier.SentTo(riderID), 1)
}

func TestSweepToleratesConcurrentResolution(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0).UTC()}
	store := repository.NewMemoryStore()
	dir := directory.NewMemoryDirectory()
	engine := service.New(store, dir, notify.NewRecorder(), dispatch.FirstAvailable(), nil, clock, nil)

	driver := uuid.New()
	require.NoError(t, dir.SetStatus(ctx, driver, domain.DriverOnline))

	created, err := engine.CreateBooking(ctx, service.CreateBookingRequest{
		RiderID:       uuid.New(),
		Pickup:        &domain.GeoPoint{Lat: 1, Lng: 1},
		Dropoff:       &domain.GeoPoint{Lat: 2, Lng: 2},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	require.NoError(t, engine.OnBookingCreated(ctx, created.ID))

	// Driver accepts after the offer went stale but before the sweep.
	clock.advance(time.Minute)
	_, err = engine.Accept(ctx, created.ID, driver)
	require.NoError(t, err)

	dog, err := watchdog.New(store, engine, clock, nil, watchdog.Config{OfferTimeout: 30 * time.Second})
	require.NoError(t, err)
	require.NoError(t, dog.Sweep(ctx))

	got, err := store.GetBooking(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDriverAssigned, got.Status)
	require.Equal(t, driver, *got.DriverID)
}
