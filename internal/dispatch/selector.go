package dispatch

import (
	"github.com/google/uuid"
)

// SelectorFunc adapts a plain function to domain.Selector.
type SelectorFunc func(online []uuid.UUID, notified []uuid.UUID) (uuid.UUID, bool)

// Select implements domain.Selector.
func (f SelectorFunc) Select(online []uuid.UUID, notified []uuid.UUID) (uuid.UUID, bool) {
	return f(online, notified)
}

// FirstAvailable returns the first online driver that has not been offered
// the booking yet, in directory iteration order. A ranking policy (distance,
// rating) slots in here as an alternative Selector without touching the
// state machine.
func FirstAvailable() SelectorFunc {
	return func(online []uuid.UUID, notified []uuid.UUID) (uuid.UUID, bool) {
		seen := make(map[uuid.UUID]struct{}, len(notified))
		for _, id := range notified {
			seen[id] = struct{}{}
		}
		for _, id := range online {
			if _, ok := seen[id]; !ok {
				return id, true
			}
		}
		return uuid.Nil, false
	}
}
