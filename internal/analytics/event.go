// Package analytics turns finalized usage records into events and rollups.
package analytics

import "time"

// TopicUsageRecorded carries one event per finalized ledger entry.
const TopicUsageRecorded = "usage.recorded"

// UsageRecordedEvent is emitted after a ledger entry is persisted.
type UsageRecordedEvent struct {
	EntryID      string    `json:"entryId"`
	UID          string    `json:"uid"`
	Tags         []string  `json:"tags,omitempty"`
	Status       string    `json:"status"`
	ChargeAmount float64   `json:"chargeAmount"`
	RecordedAt   time.Time `json:"recordedAt"`
}
