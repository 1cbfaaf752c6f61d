package notifier

import (
	"context"

	"go.uber.org/zap"
)

// Channel selects an outbound destination.
type Channel string

const (
	// ChannelAdmin carries operational alerts to the back-office operators.
	ChannelAdmin Channel = "admin"
	// ChannelMarket carries customer-visible announcements (credited deposits).
	ChannelMarket Channel = "market"
)

// Notifier is a best-effort outbound message sink. Delivery failures are
// logged and discarded; callers must never block or roll back on them.
type Notifier interface {
	Notify(ctx context.Context, channel Channel, text string)
}

// Log is a Notifier that only writes messages to the process log.
// Used when no Telegram credentials are configured.
type Log struct{}

func (Log) Notify(_ context.Context, channel Channel, text string) {
	zap.L().Info("notification (log only)",
		zap.String("channel", string(channel)),
		zap.String("text", text),
	)
}
