package email

import (
	"context"

	"go.uber.org/zap"
)

// NoopSender logs notices instead of delivering them.
// Used when no SMTP host is configured.
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a NoopSender backed by the given logger.
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send logs the notice and returns nil.
func (n *NoopSender) Send(_ context.Context, to, subject, body string) error {
	n.logger.Info("email not sent (no smtp configured)",
		zap.String("to", headerSafe(to)),
		zap.String("subject", headerSafe(subject)),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}
