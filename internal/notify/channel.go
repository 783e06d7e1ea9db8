package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/ragingest/internal/errors"
)

// DefaultSendTimeout bounds a single push.
const DefaultSendTimeout = 2 * time.Second

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	Sender          Sender
	SendTimeout     time.Duration
	BreakerFailures int
	BreakerReset    time.Duration
}

// Channel adapts a Sender into a Notifier. Sends run through a circuit
// breaker so a dead transport is skipped instead of timing out on every
// event. Failures are logged and dropped, and nothing is retried.
type Channel struct {
	sender  Sender
	timeout time.Duration
	breaker *errors.CircuitBreaker
}

var _ Notifier = (*Channel)(nil)

// NewChannel creates a Channel.
func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Channel{
		sender:  cfg.Sender,
		timeout: cfg.SendTimeout,
		breaker: errors.NewCircuitBreaker("notify",
			errors.WithMaxFailures(cfg.BreakerFailures),
			errors.WithResetTimeout(cfg.BreakerReset)),
	}
}

// Notify pushes text to target. An empty target skips the call.
func (c *Channel) Notify(ctx context.Context, target, kind, text string, level Level) {
	if target == "" || c.sender == nil {
		return
	}

	n := Notification{
		Source:       Source,
		Type:         kind,
		Message:      text,
		ConnectionID: target,
		Level:        level,
	}

	err := c.breaker.Execute(func() error {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.sender.Send(sendCtx, target, n)
	})
	if err != nil {
		nerr := errors.NotificationError(fmt.Sprintf("failed to notify %s", target), err).
			WithDetail("level", string(level))
		slog.Warn("notification_dropped", errors.LogAttrs(nerr)...)
	}
}

// BreakerState reports the transport breaker state.
func (c *Channel) BreakerState() errors.State {
	return c.breaker.State()
}
