package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/crawlmeter/crawlmeter/internal/analytics"
)

// Noop logs usage events instead of persisting them. Used when no rollup
// collection is configured.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a logging-only sink.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveUsageRecorded(_ context.Context, event *analytics.UsageRecordedEvent) error {
	n.logger.Info("usage recorded",
		zap.String("entryId", event.EntryID),
		zap.String("uid", event.UID),
		zap.String("status", event.Status),
		zap.Float64("chargeAmount", event.ChargeAmount),
		zap.Time("recordedAt", event.RecordedAt),
	)

	return nil
}
