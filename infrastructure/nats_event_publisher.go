package infrastructure

import (
	"encoding/json"
	"fmt"

	"raffler/domain/events"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// subjectPrefix namespaces all raffle events on the NATS bus
const subjectPrefix = "raffler.events."

// NATSEventPublisher publishes domain events to NATS for the announcement
// layer. Publishing is best-effort: settlement never fails because an
// announcement could not be delivered.
type NATSEventPublisher struct {
	conn *nats.Conn
}

// NewNATSEventPublisher connects to the given NATS servers
func NewNATSEventPublisher(servers string) (*NATSEventPublisher, error) {
	conn, err := nats.Connect(servers,
		nats.Name("raffler"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSEventPublisher{conn: conn}, nil
}

// Publish serializes the event as JSON and publishes it on a per-type subject
func (p *NATSEventPublisher) Publish(event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Type(), err)
	}

	subject := subjectPrefix + string(event.Type())
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	log.WithField("subject", subject).Debug("published event")
	return nil
}

// Close drains the connection
func (p *NATSEventPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		log.WithError(err).Warn("failed to drain NATS connection")
	}
}
