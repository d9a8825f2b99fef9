package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/ridedispatch/internal/booking/domain"
)

// MemoryDirectory keeps driver presence in process memory. ListOnline returns
// drivers in the order they first registered, which gives the default selector
// its stable iteration order in tests and local runs.
type MemoryDirectory struct {
	mu       sync.RWMutex
	order    []uuid.UUID
	statuses map[uuid.UUID]domain.DriverStatus
}

// NewMemoryDirectory constructs an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{statuses: make(map[uuid.UUID]domain.DriverStatus)}
}

// SetStatus records the driver's presence status.
func (m *MemoryDirectory) SetStatus(_ context.Context, driverID uuid.UUID, status domain.DriverStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.statuses[driverID]; !known {
		m.order = append(m.order, driverID)
	}
	m.statuses[driverID] = status
	return nil
}

// ListOnline returns currently online drivers in registration order.
func (m *MemoryDirectory) ListOnline(_ context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var online []uuid.UUID
	for _, id := range m.order {
		if m.statuses[id] == domain.DriverOnline {
			online = append(online, id)
		}
	}
	return online, nil
}

// Status returns the stored status (for tests).
func (m *MemoryDirectory) Status(driverID uuid.UUID) (domain.DriverStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[driverID]
	return status, ok
}
