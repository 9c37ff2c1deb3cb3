package analytics

import "context"

// Sink receives usage events for downstream accounting.
type Sink interface {
	SaveUsageRecorded(ctx context.Context, event *UsageRecordedEvent) error
}
