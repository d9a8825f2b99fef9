package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/ridedispatch/internal/booking/domain"
)

const defaultSubjectPrefix = "push.user."

// NATSNotifier delivers push payloads over a per-user NATS subject. The
// device gateway that fans notifications out to FCM/APNs subscribes on the
// other side; from the engine's point of view this is fire-and-forget.
type NATSNotifier struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSNotifier builds a notifier on the provided connection.
func NewNATSNotifier(conn *nats.Conn, subjectPrefix string) *NATSNotifier {
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}
	return &NATSNotifier{conn: conn, subjectPrefix: subjectPrefix}
}

// Notify implements domain.Notifier.
func (n *NATSNotifier) Notify(ctx context.Context, userID uuid.UUID, notification domain.Notification) error {
	if n == nil || n.conn == nil {
		return nil
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return n.conn.PublishMsg(&nats.Msg{
		Subject: n.subjectPrefix + userID.String(),
		Data:    payload,
		Header: map[string][]string{
			"x-trace-id": {traceIDFromContext(ctx)},
		},
	})
}

func traceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
