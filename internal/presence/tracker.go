package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ridedispatch/internal/booking/domain"
)

// Snapshot is the last reported state of a driver.
type Snapshot struct {
	DriverID uuid.UUID
	Status   domain.DriverStatus
	Point    domain.GeoPoint
	Speed    float64
	Accuracy float64
	Updated  time.Time
}

// Tracker stores the latest presence snapshot per driver.
type Tracker struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]Snapshot
}

// NewTracker constructs the tracker.
func NewTracker() *Tracker {
	return &Tracker{snapshots: make(map[uuid.UUID]Snapshot)}
}

// Update stores the snapshot.
func (t *Tracker) Update(_ context.Context, driverID uuid.UUID, status domain.DriverStatus, point domain.GeoPoint, speed, accuracy float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots[driverID] = Snapshot{
		DriverID: driverID,
		Status:   status,
		Point:    point,
		Speed:    speed,
		Accuracy: accuracy,
		Updated:  time.Now().UTC(),
	}
}

// Snapshot returns the stored snapshot.
func (t *Tracker) Snapshot(_ context.Context, driverID uuid.UUID) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.snapshots[driverID]
	return snap, ok
}

// All returns all snapshots.
func (t *Tracker) All() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := make([]Snapshot, 0, len(t.snapshots))
	for _, snap := range t.snapshots {
		res = append(res, snap)
	}
	return res
}
