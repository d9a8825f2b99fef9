package presence_test

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/example/ridedispatch/internal/booking/domain"
	"github.com/example/ridedispatch/internal/directory"
	"github.com/example/ridedispatch/internal/presence"
)

func TestTrackerKeepsLatestSnapshot(t *testing.T) {
	tracker := presence.NewTracker()
	ctx := context.Background()
	driver := uuid.New()

	_, ok := tracker.Snapshot(ctx, driver)
	require.False(t, ok)

	tracker.Update(ctx, driver, domain.DriverOnline, domain.GeoPoint{Lat: 14.6, Lng: 121.0}, 10, 5)
	tracker.Update(ctx, driver, domain.DriverOnTrip, domain.GeoPoint{Lat: 14.7, Lng: 121.1}, 20, 3)

	snap, ok := tracker.Snapshot(ctx, driver)
	require.True(t, ok)
	require.Equal(t, domain.DriverOnTrip, snap.Status)
	require.Equal(t, 14.7, snap.Point.Lat)
	require.Len(t, tracker.All(), 1)
}

type scriptedStream struct {
	presence.Presence_StreamPresenceServer
	updates []*presence.DriverUpdate
	closed  bool
}

func (s *scriptedStream) Context() context.Context { return context.Background() }

func (s *scriptedStream) SendAndClose(*presence.Ack) error {
	s.closed = true
	return nil
}

func (s *scriptedStream) Recv() (*presence.DriverUpdate, error) {
	if len(s.updates) == 0 {
		return nil, io.EOF
	}
	msg := s.updates[0]
	s.updates = s.updates[1:]
	return msg, nil
}

func TestStreamPresenceUpdatesDirectory(t *testing.T) {
	tracker := presence.NewTracker()
	dir := directory.NewMemoryDirectory()
	srv := presence.NewServer(tracker, dir, nil, nil)

	driver := uuid.New()
	stream := &scriptedStream{updates: []*presence.DriverUpdate{
		{DriverId: driver.String(), Status: "online", Lat: 14.6, Lng: 121.0},
		{DriverId: "not-a-uuid", Status: "online"},
		{DriverId: driver.String(), Status: "teleporting"},
		{DriverId: driver.String(), Status: "on_trip", Lat: 14.7, Lng: 121.1},
	}}

	require.NoError(t, srv.StreamPresence(stream))
	require.True(t, stream.closed)

	status, ok := dir.Status(driver)
	require.True(t, ok)
	require.Equal(t, domain.DriverOnTrip, status)

	snap, ok := tracker.Snapshot(context.Background(), driver)
	require.True(t, ok)
	require.Equal(t, 14.7, snap.Point.Lat)
}

func TestGeoIndexTracksOnlineDrivers(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	geo := presence.NewRedisGeoIndex(client, "")
	ctx := context.Background()
	driver := uuid.New()

	require.NoError(t, geo.Upsert(ctx, driver, domain.DriverOnline, domain.GeoPoint{Lat: 14.6, Lng: 121.0}))
	members, err := client.ZRange(ctx, "drivers:geo", 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{driver.String()}, members)

	require.NoError(t, geo.Upsert(ctx, driver, domain.DriverOffline, domain.GeoPoint{}))
	members, err = client.ZRange(ctx, "drivers:geo", 0, -1).Result()
	require.NoError(t, err)
	require.Empty(t, members)
}
