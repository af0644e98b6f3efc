package journal

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/openclaw/sentinel/internal/logging"
)

// Publisher mirrors journal events onto an external sink so operators can
// watch long runs without tailing journal files. Publish failures are
// logged and swallowed; the journal file remains the source of truth.
type Publisher interface {
	Publish(runID string, event Event)
	Close()
}

// NATSPublisher publishes journal events to sentinel.events.<runID>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    *logging.Logger
}

// NewNATSPublisher connects to the given NATS URL. An empty prefix
// defaults to "sentinel.events".
func NewNATSPublisher(url, prefix string, log *logging.Logger) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = "sentinel.events"
	}
	conn, err := nats.Connect(url, nats.Name("sentinel-journal"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix, log: log}, nil
}

// Publish sends one event. Errors are logged, never fatal.
func (p *NATSPublisher) Publish(runID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn("event_publish_marshal_failed", map[string]interface{}{"error": err.Error()})
		return
	}
	subject := fmt.Sprintf("%s.%s", p.prefix, runID)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("event_publish_failed", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}

// NopPublisher discards events. Used when no event sink is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, Event) {}
func (NopPublisher) Close()                {}
