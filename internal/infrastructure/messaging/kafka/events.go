package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// DefaultAlertTopic receives one event per company per fired threshold.
const DefaultAlertTopic = "edefter.deadline.alerts"

// EventTypeDeadlineAlert identifies DeadlineAlertPayload envelopes.
const EventTypeDeadlineAlert = "deadline.alert"

const schemaVersion = "v1"

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// DeadlineAlertPayload describes one company reaching an alert threshold.
type DeadlineAlertPayload struct {
	CompanyID     string `json:"company_id"`
	CompanyName   string `json:"company_name"`
	CompanyKey    string `json:"company_key"`
	Regime        string `json:"regime"`
	Cadence       string `json:"cadence"`
	Period        string `json:"period"`
	DeadlineDate  string `json:"deadline_date"`
	RemainingDays int    `json:"remaining_days"`
	Threshold     int    `json:"threshold"`
	Status        string `json:"status"`
	AlertDate     string `json:"alert_date"`
}

func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeSerialization, "empty payload").WithDetail(e.EventID)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage serializes the envelope for topic, keyed by key.
func (e *EventEnvelope) ToMessage(topic, key string) (*Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &Message{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// AlertPublisher
// ─────────────────────────────────────────────────────────────────────────────

// BatchPublisher is the subset of Producer the alert publisher needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, msgs []*Message) (*BatchPublishResult, error)
}

// AlertPublisher turns deadline alerts into enveloped Kafka messages keyed by
// company key, so all events for a company land on one partition.
type AlertPublisher struct {
	producer BatchPublisher
	topic    string
	source   string
	logger   logging.Logger
}

// NewAlertPublisher returns a publisher writing to topic (DefaultAlertTopic
// when empty).
func NewAlertPublisher(p BatchPublisher, topic, source string, logger logging.Logger) *AlertPublisher {
	if topic == "" {
		topic = DefaultAlertTopic
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AlertPublisher{producer: p, topic: topic, source: source, logger: logger}
}

// PublishDeadlineAlerts publishes alerts in one batch.  Any failed message
// makes the call fail; the returned count is the number written.
func (a *AlertPublisher) PublishDeadlineAlerts(ctx context.Context, alerts []DeadlineAlertPayload) (int, error) {
	if len(alerts) == 0 {
		return 0, nil
	}
	msgs := make([]*Message, 0, len(alerts))
	for _, alert := range alerts {
		env, err := NewEventEnvelope(EventTypeDeadlineAlert, a.source, alert)
		if err != nil {
			return 0, err
		}
		env.Metadata = map[string]string{"threshold": fmt.Sprintf("%d", alert.Threshold)}
		msg, err := env.ToMessage(a.topic, alert.CompanyKey)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, msg)
	}

	res, err := a.producer.PublishBatch(ctx, msgs)
	if err != nil {
		return 0, err
	}
	if res.Failed > 0 {
		first := res.Errors[0].Error
		return res.Succeeded, errors.Wrap(first, errors.ErrCodeEventPublishFailed, "deadline alerts partially published").
			WithDetail(fmt.Sprintf("%d of %d failed", res.Failed, len(alerts)))
	}
	a.logger.Info("deadline alerts published", logging.String("topic", a.topic), logging.Int("count", res.Succeeded))
	return res.Succeeded, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// TopicManager
// ─────────────────────────────────────────────────────────────────────────────

// TopicConfig describes a topic to create.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// AlertTopicConfig is the topic layout used when the worker creates the
// alert topic itself.
func AlertTopicConfig(name string) TopicConfig {
	if name == "" {
		name = DefaultAlertTopic
	}
	return TopicConfig{Name: name, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * 24 * 3600 * 1000}
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates topics on a broker.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to dial kafka").WithDetail(brokers[0])
	}
	return NewTopicManagerWithConn(conn, logger), nil
}

func NewTopicManagerWithConn(conn ConnInterface, logger logging.Logger) *TopicManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TopicManager{conn: conn, logger: logger}
}

// EnsureTopic creates cfg unless the topic already exists.
func (m *TopicManager) EnsureTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 || cfg.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "partitions and replication factor must be > 0").WithDetail(cfg.Name)
	}
	if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
		return nil
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: fmt.Sprintf("%d", cfg.RetentionMs),
		})
	}
	if err := m.conn.CreateTopics(kCfg); err != nil {
		if errors.Is(err, kafka.TopicAlreadyExists) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create topic").WithDetail(cfg.Name)
	}
	m.logger.Info("topic created", logging.String("topic", cfg.Name))
	return nil
}

func (m *TopicManager) TopicExists(_ context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}
