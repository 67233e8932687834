package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
	"sla-monitor/internal/utils"
)

// messageSender is the part of *bot.Bot the provider needs.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// Telegram posts alert notifications to one chat.
type Telegram struct {
	sender  messageSender
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
	retries int
	delay   time.Duration
}

// NewTelegram builds the provider from a bot token. ratePerSecond of zero
// means one message per second.
func NewTelegram(token string, chatID int64, ratePerSecond int, logger *logging.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("missing telegram chat id")
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegram(b, chatID, ratePerSecond, logger), nil
}

func newTelegram(sender messageSender, chatID int64, ratePerSecond int, logger *logging.Logger) *Telegram {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Telegram{
		sender:  sender,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:  logger.Component("telegram"),
		retries: 3,
		delay:   time.Second,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Deliver sends the task as a Markdown message, retrying transient failures.
func (t *Telegram) Deliver(ctx context.Context, task models.Task) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	params := &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      formatTelegram(task),
		ParseMode: "Markdown",
	}
	return utils.Retry(ctx, t.logger, t.retries, t.delay, func() error {
		if _, err := t.sender.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
		}
		return nil
	})
}

func formatTelegram(task models.Task) string {
	a := task.Alert
	if task.Event == models.TaskAlertAcknowledged {
		by := "unknown"
		if a.AcknowledgedBy != nil {
			by = *a.AcknowledgedBy
		}
		return fmt.Sprintf("*Acknowledged:* %s\n*By:* %s", a.Title, by)
	}
	return fmt.Sprintf(
		"*[%s] %s*\n%s\n\n"+
			"*Metric:* %s\n"+
			"*Value:* %.2f\n"+
			"*Threshold:* %.2f\n"+
			"*Triggered:* %s",
		a.Severity,
		a.Title,
		a.Message,
		a.MetricType,
		a.CurrentValue,
		a.ThresholdValue,
		a.TriggeredAt.Format(time.RFC3339),
	)
}
