package cli

import (
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
	"fintrack/internal/notify"
)

// BuildNotifier assembles the notification chain from configuration. With AMQP
// configured, messages go through the queue first and fall back to a direct
// Telegram send; without either, notifications are discarded. The returned
// cleanup closes the AMQP connection.
func BuildNotifier(logger *slog.Logger, cfg *config.Config) (notify.Notifier, func()) {
	var chain notify.Fallback
	cleanup := func() {}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, notifications will not be queued", "error", err)
		} else {
			chain = append(chain, notify.NewQueue(client))
			cleanup = func() {
				if err := client.Close(); err != nil {
					logger.Warn("Failed to close AMQP client", "error", err)
				}
			}
			logger.Info("AMQP client initialized - notifications go through notify-worker")
		}
	}
	if cfg.TelegramEnabled() {
		chain = append(chain, notify.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.TelegramChatID))
	}

	switch len(chain) {
	case 0:
		logger.Info("Notifications disabled - neither AMQP nor Telegram configured")
		return notify.Nop{}, cleanup
	case 1:
		return chain[0], cleanup
	default:
		return chain, cleanup
	}
}
