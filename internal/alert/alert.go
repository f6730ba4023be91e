// Package alert raises operator notifications for deletions that exhausted
// every retry. Delivery is best-effort: callers log failures and move on.
package alert

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Alert describes one permanently failed deletion.
type Alert struct {
	IdempotencyKey  string    `json:"idempotencyKey"`
	RequesterID     string    `json:"requesterId"`
	NotificationIDs []string  `json:"notificationIds"`
	Reason          string    `json:"reason"`
	FailedAt        time.Time `json:"failedAt"`
}

// Alerter delivers alerts to an operator channel.
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// LogAlerter writes alerts to the process log. Used when no webhook endpoint
// is configured.
type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(_ context.Context, alert Alert) error {
	a.logger.Error("deletion dead-lettered",
		zap.String("idempotencyKey", alert.IdempotencyKey),
		zap.String("requesterId", alert.RequesterID),
		zap.Int("targets", len(alert.NotificationIDs)),
		zap.String("reason", alert.Reason),
		zap.Time("failedAt", alert.FailedAt),
	)
	return nil
}
