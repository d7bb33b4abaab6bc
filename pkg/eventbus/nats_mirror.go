package eventbus

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/icecake0141/nwrunner/pkg/logger"
	"github.com/icecake0141/nwrunner/pkg/models"
)

// NATSMirror is an optional Subscriber that republishes every event it sees
// to subject "jobs.<job_id>.events" on a NATS connection, for collaborators
// that want to consume the job's event stream without speaking the WS
// surface. It is fire-and-forget: publish errors are logged, never
// propagated, and never block the EventBus (it runs as an ordinary
// subscriber, subject to the same bounded-timeout drop as any other).
type NATSMirror struct {
	conn *nats.Conn
	log  logger.Logger
}

// NewNATSMirror wraps an already-connected *nats.Conn. Pass a nil conn to
// get a no-op mirror (useful when NATS mirroring is disabled by config).
func NewNATSMirror(conn *nats.Conn, log logger.Logger) *NATSMirror {
	return &NATSMirror{conn: conn, log: log}
}

func (m *NATSMirror) Handle(event models.ExecutionEvent) {
	if m == nil || m.conn == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		if m.log != nil {
			m.log.Warn().Err(err).Str("job_id", event.JobID).Msg("failed to marshal event for NATS mirror")
		}

		return
	}

	subject := "jobs." + event.JobID + ".events"
	if err := m.conn.Publish(subject, payload); err != nil {
		if m.log != nil {
			m.log.Warn().Err(err).Str("subject", subject).Msg("failed to publish event to NATS")
		}
	}
}
