package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransferConfirmed is emitted once a transfer has been applied.
	KindTransferConfirmed = "transfer.confirmed"
)

// Message describes a notification payload.
type Message struct {
	Kind          string `json:"kind"`
	Destination   string `json:"destination"`
	TransactionID string `json:"transaction_id,omitempty"`
	Body          string `json:"body"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"transaction_id", message.TransactionID,
		"body", message.Body,
	)
	return nil
}
