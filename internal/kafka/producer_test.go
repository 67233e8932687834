package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

type fakeWriter struct {
	failures int
	calls    int
	msgs     []kafkago.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.calls++
	if w.calls <= w.failures {
		return errors.New("leader not available")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisherWritesKeyedEvent(t *testing.T) {
	w := &fakeWriter{failures: 1}
	p := newPublisher(w, "sla-monitor-1", logging.Discard())

	task := models.Task{
		RequestID: "req-1",
		Event:     models.TaskNewAlert,
		Alert:     models.Alert{ID: "a9", Severity: models.SeverityWarning, TriggeredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		Timestamp: time.Date(2026, 3, 1, 0, 1, 0, 0, time.UTC),
	}
	require.NoError(t, p.Deliver(context.Background(), task))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "a9", string(msg.Key))
	assert.Equal(t, "event", msg.Headers[0].Key)
	assert.Equal(t, "new_alert", string(msg.Headers[0].Value))

	var ev models.AlertEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "a9", ev.AlertID)
	assert.Equal(t, "sla-monitor-1", ev.Source)
	assert.Equal(t, "req-1", ev.RequestID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewPublisherRequiresBrokerAndTopic(t *testing.T) {
	_, err := NewPublisher(Config{Broker: "localhost:9092"}, logging.Discard())
	assert.Error(t, err)
}
