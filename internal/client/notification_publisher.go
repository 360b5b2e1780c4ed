package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes approval events to NATS JetStream for
// consumption by the platform notifications service.
//
// Subject convention: notifications.fin.<event_type>
// Event types: approval_required, approval_approved, approval_rejected
//
// All publish operations are non-fatal. Errors are logged but never
// propagated, so notification failures never interrupt or roll back an
// approval transition.
type NotificationPublisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType  string         `json:"event_type"`
	CompanyID  string         `json:"company_id"`
	ActorID    string         `json:"actor_id"`
	Recipients []string       `json:"recipients"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Severity   string         `json:"severity,omitempty"` // info | success | error
	RecordKind string         `json:"record_kind,omitempty"`
	RecordID   string         `json:"record_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher connects to NATS and returns a publisher. An
// empty URL returns a disabled publisher that drops all events, for local
// development without a broker.
func NewNotificationPublisher(url string, log zerolog.Logger) (*NotificationPublisher, error) {
	if url == "" {
		log.Warn().Msg("NATS_URL not set; notifications disabled")
		return &NotificationPublisher{log: log}, nil
	}

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &NotificationPublisher{js: js, log: log}, nil
}

// PublishApprovalEvent publishes one approval event.
// Subject: notifications.fin.<eventType>
func (p *NotificationPublisher) PublishApprovalEvent(ctx context.Context, event *NotificationEvent) {
	if p.js == nil {
		return
	}
	if len(event.Recipients) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.fin.%s", event.EventType)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("record_id", event.RecordID).
			Msg("notification: failed to publish event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("record_id", event.RecordID).
		Int("recipients", len(event.Recipients)).
		Msg("notification: event published")
}
