// Package store holds analytics.Sink implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/crawlmeter/crawlmeter/internal/analytics"
	"github.com/crawlmeter/crawlmeter/internal/docstore"
)

// Rollups describes the per-subject daily aggregate collection.
func Rollups(name string) *docstore.Collection {
	return &docstore.Collection{
		Name:         name,
		PartitionKey: "uid",
		DateFields:   []string{"updatedAt"},
	}
}

// Rollup aggregates usage events into one document per subject per UTC day,
// using increment merge-saves so events from any consumer instance fold into
// the same counters.
type Rollup struct {
	store docstore.Store
	col   *docstore.Collection
}

// NewRollup creates a rollup sink writing to the given collection.
func NewRollup(store docstore.Store, col *docstore.Collection) *Rollup {
	return &Rollup{store: store, col: col}
}

func (r *Rollup) SaveUsageRecorded(ctx context.Context, event *analytics.UsageRecordedEvent) error {
	day := event.RecordedAt.UTC().Format("2006-01-02")
	id := fmt.Sprintf("%s:%s", event.UID, day)

	patch := docstore.Doc{
		"uid":       event.UID,
		"day":       day,
		"count":     docstore.Inc(1),
		"charge":    docstore.Inc(event.ChargeAmount),
		"updatedAt": time.Now().UTC(),
	}

	if event.Status != "" {
		patch["statuses."+event.Status] = docstore.Inc(1)
	}

	_, err := docstore.Update(ctx, r.store, r.col, id, patch)

	return err
}
