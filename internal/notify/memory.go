package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/ridedispatch/internal/booking/domain"
)

// Sent is a recorded delivery.
type Sent struct {
	UserID       uuid.UUID
	Notification domain.Notification
}

// Recorder captures notifications for tests and local demos.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

// NewRecorder constructs an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify implements domain.Notifier.
func (r *Recorder) Notify(_ context.Context, userID uuid.UUID, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{UserID: userID, Notification: n})
	return nil
}

// Sent returns all recorded deliveries.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// SentTo returns deliveries addressed to the given user.
func (r *Recorder) SentTo(userID uuid.UUID) []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sent
	for _, s := range r.sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}
