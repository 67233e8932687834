package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

type fakeSender struct {
	failures int
	calls    int
	last     *bot.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.calls++
	f.last = params
	if f.calls <= f.failures {
		return nil, errors.New("429 too many requests")
	}
	return &tgmodels.Message{ID: f.calls}, nil
}

func sampleTask(event models.TaskEvent) models.Task {
	by := "ops@example.com"
	return models.Task{
		RequestID: "r1",
		Event:     event,
		Alert: models.Alert{
			ID:             "a1",
			Severity:       models.SeverityCritical,
			Title:          "CPU high",
			MetricType:     "cpu_usage",
			CurrentValue:   97.2,
			ThresholdValue: 90,
			TriggeredAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			AcknowledgedBy: &by,
		},
	}
}

func TestTelegramRetriesThenSends(t *testing.T) {
	sender := &fakeSender{failures: 2}
	tg := newTelegram(sender, 42, 100, logging.Discard())
	tg.delay = time.Millisecond

	require.NoError(t, tg.Deliver(context.Background(), sampleTask(models.TaskNewAlert)))
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, int64(42), sender.last.ChatID)
	assert.Contains(t, sender.last.Text, "CPU high")
	assert.Contains(t, sender.last.Text, "97.20")
}

func TestTelegramGivesUp(t *testing.T) {
	sender := &fakeSender{failures: 10}
	tg := newTelegram(sender, 42, 100, logging.Discard())
	tg.delay = time.Millisecond

	err := tg.Deliver(context.Background(), sampleTask(models.TaskNewAlert))
	require.Error(t, err)
	assert.Equal(t, 3, sender.calls)
}

func TestTelegramAcknowledgementText(t *testing.T) {
	text := formatTelegram(sampleTask(models.TaskAlertAcknowledged))
	assert.Contains(t, text, "Acknowledged")
	assert.Contains(t, text, "ops@example.com")
}

func TestNewTelegramRequiresSettings(t *testing.T) {
	_, err := NewTelegram("", 1, 1, logging.Discard())
	assert.Error(t, err)
	_, err = NewTelegram("token", 0, 1, logging.Discard())
	assert.Error(t, err)
}
