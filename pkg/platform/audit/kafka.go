package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink is the transport used by the Kafka publisher. Satisfied by
// internal/platform/kafka.Producer; an interface so tests inject fakes.
type Sink interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Topics routes event categories to their Kafka topics. Compliance events go
// to a tamper-evident, indefinitely retained topic; ops events to a
// short-retention one feeding the operator channel.
type Topics struct {
	Compliance string
	Security   string
	Operations string
}

// DefaultTopics returns the conventional topic names.
func DefaultTopics() Topics {
	return Topics{
		Compliance: "custodia.audit.compliance",
		Security:   "custodia.audit.security",
		Operations: "custodia.audit.ops",
	}
}

func (t Topics) forCategory(category EventCategory) string {
	switch category {
	case CategoryCompliance:
		return t.Compliance
	case CategorySecurity:
		return t.Security
	default:
		return t.Operations
	}
}

// KafkaPublisher emits audit events to category-routed topics, keyed by
// tenant so per-tenant ordering holds within a partition.
type KafkaPublisher struct {
	sink   Sink
	topics Topics
	logger *slog.Logger
}

func NewKafkaPublisher(sink Sink, topics Topics, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{sink: sink, topics: topics, logger: logger}
}

// payload is the wire structure. All fields are concrete (no map[string]any)
// so json.Marshal field order stays deterministic.
type payload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	TenantID  string `json:"tenant_id,omitempty"`
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Actor     string `json:"actor,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Emit publishes the event synchronously. Compliance emission failures must
// fail the calling operation; the caller decides, this method only reports.
func (p *KafkaPublisher) Emit(ctx context.Context, event Event) error {
	body := payload{
		ID:        uuid.New().String(),
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Decision:  event.Decision,
		Reason:    event.Reason,
		Actor:     event.Actor,
		RequestID: event.RequestID,
	}
	if !event.TenantID.IsNil() {
		body.TenantID = event.TenantID.String()
	}

	value, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	topic := p.topics.forCategory(event.Category)
	if err := p.sink.Produce(ctx, topic, []byte(body.TenantID), value); err != nil {
		p.logger.ErrorContext(ctx, "audit event publish failed",
			"topic", topic,
			"action", event.Action,
			"error", err,
		)
		return err
	}
	return nil
}
