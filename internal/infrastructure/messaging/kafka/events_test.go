package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/edefter-tracker/internal/testutil"
)

type mockBatchPublisher struct {
	got    []*Message
	result *BatchPublishResult
	err    error
}

func (m *mockBatchPublisher) PublishBatch(_ context.Context, msgs []*Message) (*BatchPublishResult, error) {
	m.got = msgs
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &BatchPublishResult{Succeeded: len(msgs)}, nil
}

func sampleAlert(key string, threshold int) DeadlineAlertPayload {
	return DeadlineAlertPayload{
		CompanyID:     "c-" + key,
		CompanyName:   "Örnek A.Ş.",
		CompanyKey:    key,
		Regime:        "corporate-tax",
		Cadence:       "monthly",
		Period:        "2025-03",
		DeadlineDate:  "2025-07-14",
		RemainingDays: threshold,
		Threshold:     threshold,
		Status:        "pending",
		AlertDate:     "2025-07-07",
	}
}

func TestEventEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEventEnvelope(EventTypeDeadlineAlert, "worker", sampleAlert("1234567890", 7))
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "v1", env.SchemaVersion)

	msg, err := env.ToMessage(DefaultAlertTopic, "1234567890")
	require.NoError(t, err)
	assert.Equal(t, "deadline.alert", msg.Headers["event_type"])

	var decoded EventEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	var payload DeadlineAlertPayload
	require.NoError(t, decoded.DecodePayload(&payload))
	assert.Equal(t, sampleAlert("1234567890", 7), payload)

	assert.Error(t, (&EventEnvelope{}).DecodePayload(&payload))
}

func TestAlertPublisher_PublishesOneMessagePerAlert(t *testing.T) {
	mp := &mockBatchPublisher{}
	pub := NewAlertPublisher(mp, "", "edefter-worker", testutil.NewMockLogger())

	n, err := pub.PublishDeadlineAlerts(context.Background(), []DeadlineAlertPayload{
		sampleAlert("1234567890", 7),
		sampleAlert("10000000146", 7),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, mp.got, 2)
	assert.Equal(t, DefaultAlertTopic, mp.got[0].Topic)
	assert.Equal(t, "10000000146", string(mp.got[1].Key))

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(mp.got[0].Value, &env))
	assert.Equal(t, "edefter-worker", env.Source)
	assert.Equal(t, "7", env.Metadata["threshold"])
}

func TestAlertPublisher_EmptyAndFailures(t *testing.T) {
	mp := &mockBatchPublisher{}
	pub := NewAlertPublisher(mp, "alerts", "w", nil)

	n, err := pub.PublishDeadlineAlerts(context.Background(), nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, mp.got)

	mp.result = &BatchPublishResult{Succeeded: 1, Failed: 1, Errors: []BatchItemError{{Index: 1, Error: errors.New("x")}}}
	n, err = pub.PublishDeadlineAlerts(context.Background(), []DeadlineAlertPayload{sampleAlert("1", 0), sampleAlert("2", 0)})
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

type mockKafkaConn struct {
	created    []kafka.TopicConfig
	partitions []kafka.Partition
	createErr  error
}

func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	m.created = append(m.created, topics...)
	return m.createErr
}

func (m *mockKafkaConn) ReadPartitions(...string) ([]kafka.Partition, error) {
	return m.partitions, nil
}

func (m *mockKafkaConn) Close() error { return nil }

func TestTopicManager_EnsureTopic(t *testing.T) {
	conn := &mockKafkaConn{}
	m := NewTopicManagerWithConn(conn, nil)

	require.NoError(t, m.EnsureTopic(context.Background(), AlertTopicConfig("")))
	require.Len(t, conn.created, 1)
	assert.Equal(t, DefaultAlertTopic, conn.created[0].Topic)
	assert.Equal(t, "retention.ms", conn.created[0].ConfigEntries[0].ConfigName)

	conn.partitions = []kafka.Partition{{Topic: DefaultAlertTopic}}
	require.NoError(t, m.EnsureTopic(context.Background(), AlertTopicConfig("")))
	assert.Len(t, conn.created, 1, "existing topic is not recreated")

	assert.Error(t, m.EnsureTopic(context.Background(), TopicConfig{Name: "x"}))

	conn.partitions = nil
	conn.createErr = kafka.TopicAlreadyExists
	assert.NoError(t, m.EnsureTopic(context.Background(), AlertTopicConfig("other")))
	assert.NoError(t, m.Close())
}
