package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crawlmeter/crawlmeter/internal/docstore"
	"github.com/crawlmeter/crawlmeter/internal/ledger"
)

// Error reports a denied admission. It is expected control flow, not an
// infrastructure failure: callers map it to a 429-equivalent and back off for
// RetryAfter. Store failures surface as docstore errors instead, so the two
// are always distinguishable.
type Error struct {
	RetryAfter time.Duration
	RetryAt    time.Time
}

func (e *Error) Error() string {
	return fmt.Sprintf("ratelimit: denied, retry after %s", e.RetryAfter)
}

// Seconds is the retry-after delay in whole seconds.
func (e *Error) Seconds() int {
	return int(e.RetryAfter / time.Second)
}

// Control is the admission-control entry point. It loads a counter for the
// subject's key, prunes expired events, evaluates every supplied policy, and
// either denies with a retry hint or records the event and hands back a
// ledger handle.
//
// The read-prune-evaluate-write sequence is check-then-act: concurrent
// admissions racing the same key can both observe capacity and both write,
// briefly exceeding the occurrence bound. Coordination happens only through
// the document store; this weak-consistency window is a documented property
// of the design.
type Control struct {
	store    docstore.Store
	counters *docstore.Collection
	ledger   *ledger.Service
	logger   *zap.Logger
	now      func() time.Time
}

// NewControl creates an admission controller persisting counters to the
// given collection.
func NewControl(store docstore.Store, counters *docstore.Collection, ledgerSvc *ledger.Service, logger *zap.Logger) *Control {
	return &Control{
		store:    store,
		counters: counters,
		ledger:   ledgerSvc,
		logger:   logger,
		now:      time.Now,
	}
}

// Admit checks every policy against the subject's counter. All policies must
// have capacity; the first one without it denies the whole admission and
// nothing is written. On success the event is recorded and the returned
// handle is pre-populated with the subject and tags for the caller to
// finalize.
func (c *Control) Admit(ctx context.Context, subject string, tags []string, policies []Policy) (*ledger.Handle, error) {
	tags = ledger.NormalizeTags(tags)

	return c.admit(ctx, admissionKey(subject, tags), subject, tags, policies)
}

// AdmitSince is the window-variant entry point: the effective window spans
// from since to now and allows at most occurrence events.
func (c *Control) AdmitSince(ctx context.Context, subject string, tags []string, since time.Time, occurrence int) (*ledger.Handle, error) {
	return c.AdmitWindow(ctx, subject, tags, c.now().Sub(since), occurrence)
}

// AdmitWindow bounds occurrences within a fixed trailing window. The key
// encodes the window length and occurrence bound so distinct combinations do
// not collide on the same counter; callers with a configured window should
// pass it here rather than re-deriving it from the clock, so the key stays
// stable across requests. Windows shorter than a millisecond are floored.
func (c *Control) AdmitWindow(ctx context.Context, subject string, tags []string, window time.Duration, occurrence int) (*ledger.Handle, error) {
	tags = ledger.NormalizeTags(tags)

	if window < time.Millisecond {
		window = time.Millisecond
	}

	policy := Policy{Occurrence: occurrence, Period: window}
	key := windowKey(subject, tags, policy)

	return c.admit(ctx, key, subject, tags, []Policy{policy})
}

func (c *Control) admit(ctx context.Context, key, subject string, tags []string, policies []Policy) (*ledger.Handle, error) {
	now := c.now()
	nowMillis := now.UnixMilli()

	doc, err := c.store.FetchByID(ctx, c.counters, key)
	if err != nil {
		return nil, err
	}

	counter := CounterFromDoc(doc)
	counter.Key = key
	counter.Prune(now)

	maxWindow := counter.WindowMillis

	for _, policy := range policies {
		window := policy.windowMillis()
		if window > maxWindow {
			maxWindow = window
		}

		active := counter.ActiveSince(nowMillis - window)
		if len(active) < policy.Occurrence {
			continue
		}

		retryAfter := retryAfterSeconds(window, nowMillis, active[0])
		denial := &Error{
			RetryAfter: time.Duration(retryAfter) * time.Second,
			RetryAt:    now.Add(time.Duration(retryAfter) * time.Second),
		}

		c.logger.Debug("admission denied",
			zap.String("key", key),
			zap.Int("occurrence", policy.Occurrence),
			zap.Duration("period", policy.Period),
			zap.Int("retryAfterSeconds", retryAfter),
		)

		return nil, denial
	}

	counter.WindowMillis = maxWindow
	counter.Record(now)

	if _, err := c.store.Save(ctx, c.counters, counter.Doc(), docstore.SaveOptions{ID: key}); err != nil {
		return nil, err
	}

	return c.ledger.NewHandle(subject, tags), nil
}

// retryAfterSeconds is the whole-second wait until the oldest active event
// leaves the window.
func retryAfterSeconds(windowMillis, nowMillis, oldestActive int64) int {
	remaining := windowMillis - (nowMillis - oldestActive)
	if remaining < 0 {
		remaining = 0
	}

	return int(math.Ceil(float64(remaining) / 1000))
}

// admissionKey is a deterministic composite of the subject identity and its
// tag set. Tags are sorted so callers need not agree on ordering.
func admissionKey(subject string, tags []string) string {
	return hashKey(compositeKey(subject, tags))
}

// windowKey additionally encodes the window and occurrence bound.
func windowKey(subject string, tags []string, policy Policy) string {
	return hashKey(fmt.Sprintf("%s|%d|%d", compositeKey(subject, tags), policy.windowMillis(), policy.Occurrence))
}

func compositeKey(subject string, tags []string) string {
	sorted := slices.Clone(tags)
	slices.Sort(sorted)

	return subject + "|" + strings.Join(sorted, ",")
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))

	return hex.EncodeToString(sum[:])
}
