package ratelimit

import (
	"math"
	"sort"
	"time"

	"github.com/crawlmeter/crawlmeter/internal/docstore"
)

// MaxTimestamps caps the number of events a counter remembers. When the cap
// is exceeded the oldest events are dropped first.
const MaxTimestamps = 5000

// Counter document field names.
const (
	fieldKey        = "key"
	fieldWindow     = "windowMs"
	fieldTimestamps = "timestamps"
	fieldUpdatedAt  = "updatedAt"
)

// Counters describes the collection sliding-window counters persist to. The
// key doubles as document id and partition key; expiry comes from the
// derived TTL on each counter, so no collection default is set.
func Counters(name string) *docstore.Collection {
	return &docstore.Collection{
		Name:         name,
		PartitionKey: fieldKey,
		DateFields:   []string{fieldUpdatedAt},
	}
}

// Counter is the persisted sliding-window state for one key: the widest
// window tracked so far and the ascending list of event timestamps in epoch
// milliseconds.
type Counter struct {
	Key          string
	WindowMillis int64
	Timestamps   []int64
	UpdatedAt    time.Time

	// TTLSeconds is an explicit expiry override; zero means derive from the
	// window.
	TTLSeconds int
}

// CounterFromDoc hydrates a counter from its stored document. The read path
// is lenient: malformed fields are dropped or zeroed, never errored on. A
// nil document yields an empty counter.
func CounterFromDoc(doc docstore.Doc) Counter {
	c := Counter{}

	if doc == nil {
		return c
	}

	c.Key, _ = doc[fieldKey].(string)
	c.WindowMillis = NormalizeWindow(doc[fieldWindow])
	c.Timestamps = NormalizeTimestamps(doc[fieldTimestamps])

	if t, ok := doc[fieldUpdatedAt].(time.Time); ok {
		c.UpdatedAt = t
	}

	if n, ok := numeric(doc[docstore.FieldTTL]); ok && n > 0 {
		c.TTLSeconds = int(n)
	}

	return c
}

// Doc serializes the counter for a full-replace save. Serializing a hydrated
// counter and hydrating it back is idempotent on (timestamps, windowMs).
func (c *Counter) Doc() docstore.Doc {
	doc := docstore.Doc{
		docstore.FieldID: c.Key,
		fieldKey:         c.Key,
		fieldWindow:      c.WindowMillis,
		fieldTimestamps:  timestampsAny(c.Timestamps),
		fieldUpdatedAt:   c.UpdatedAt,
	}

	if ttl := c.TTL(); ttl > 0 {
		doc[docstore.FieldTTL] = ttl
	}

	return doc
}

// TTL derives the counter's expiry in seconds: an explicit positive override
// wins, otherwise twice the window rounded up to whole seconds. Zero means
// no expiry hint.
func (c *Counter) TTL() int {
	if c.TTLSeconds > 0 {
		return c.TTLSeconds
	}

	if c.WindowMillis > 0 {
		return 2 * int(math.Ceil(float64(c.WindowMillis)/1000))
	}

	return 0
}

// Prune drops timestamps strictly older than now minus the tracked window.
// A counter with no window still prunes against a 1ms floor.
func (c *Counter) Prune(now time.Time) {
	window := c.WindowMillis
	if window < 1 {
		window = 1
	}

	cutoff := now.UnixMilli() - window
	c.Timestamps = pruneBefore(c.Timestamps, cutoff)
}

// ActiveSince returns the timestamps at or after cutoff. Timestamps are
// ascending, so the result shares the tail of the slice.
func (c *Counter) ActiveSince(cutoff int64) []int64 {
	i := sort.Search(len(c.Timestamps), func(i int) bool {
		return c.Timestamps[i] >= cutoff
	})

	return c.Timestamps[i:]
}

// Record appends an event and re-normalizes, keeping the list ascending and
// within the cap.
func (c *Counter) Record(now time.Time) {
	c.Timestamps = append(c.Timestamps, now.UnixMilli())
	c.Timestamps = normalizeSorted(c.Timestamps)
	c.UpdatedAt = now
}

// NormalizeWindow coerces an input window to non-negative integer
// milliseconds. Invalid or missing values become 0.
func NormalizeWindow(v any) int64 {
	n, ok := numeric(v)
	if !ok || n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}

	return int64(n)
}

// NormalizeTimestamps coerces an input list into ascending, non-negative
// epoch milliseconds, truncated to the most recent MaxTimestamps entries.
func NormalizeTimestamps(v any) []int64 {
	var out []int64

	switch list := v.(type) {
	case []int64:
		out = append(out, list...)
	case []any:
		for _, e := range list {
			if n, ok := numeric(e); ok && n >= 0 {
				out = append(out, int64(n))
			}
		}
	case []float64:
		for _, e := range list {
			if e >= 0 {
				out = append(out, int64(e))
			}
		}
	}

	for i := 0; i < len(out); {
		if out[i] < 0 {
			out = append(out[:i], out[i+1:]...)

			continue
		}
		i++
	}

	return normalizeSorted(out)
}

func normalizeSorted(ts []int64) []int64 {
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })

	if len(ts) > MaxTimestamps {
		ts = ts[len(ts)-MaxTimestamps:]
	}

	return ts
}

func pruneBefore(ts []int64, cutoff int64) []int64 {
	i := sort.Search(len(ts), func(i int) bool { return ts[i] >= cutoff })

	return ts[i:]
}

func timestampsAny(ts []int64) []any {
	out := make([]any, len(ts))
	for i, t := range ts {
		out[i] = t
	}

	return out
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}

	return 0, false
}
