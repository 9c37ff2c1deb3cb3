// Package ledger records charged units of work for billing and analytics.
// Entries are append-style: created once a unit of work completes, then never
// updated.
package ledger

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/jaevor/go-nanoid"

	"github.com/crawlmeter/crawlmeter/internal/docstore"
)

// Status reports how a unit of work ended.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Entry document field names.
const (
	fieldUID       = "uid"
	fieldTags      = "tags"
	fieldStatus    = "status"
	fieldCharge    = "chargeAmount"
	fieldCreatedAt = "createdAt"
)

const entryIDLength = 21

// Records describes the collection ledger entries persist to, partitioned by
// the subject they bill.
func Records(name string) *docstore.Collection {
	col := &docstore.Collection{
		Name:         name,
		PartitionKey: fieldUID,
		DateFields:   []string{fieldCreatedAt},
	}

	if gen, err := nanoid.Standard(entryIDLength); err == nil {
		col.NewID = gen
	}

	return col
}

// Entry is one accounted operation.
type Entry struct {
	ID           string
	UID          string
	Tags         []string
	Status       Status
	ChargeAmount float64
	CreatedAt    time.Time
}

// Service creates and persists ledger entries.
type Service struct {
	store docstore.Store
	col   *docstore.Collection
	now   func() time.Time
}

// NewService creates a ledger service writing to the given collection.
func NewService(store docstore.Store, col *docstore.Collection) *Service {
	return &Service{store: store, col: col, now: time.Now}
}

// NewEntry stamps an entry with defaults: success, zero charge, creation time
// now, and a fresh id. Tags are normalized.
func (s *Service) NewEntry(uid string, tags []string) *Entry {
	return &Entry{
		ID:        s.col.GenerateID(),
		UID:       uid,
		Tags:      NormalizeTags(tags),
		Status:    StatusSuccess,
		CreatedAt: s.now().UTC(),
	}
}

// Persist writes the entry. Usage without an identified subject is
// intentionally not recorded: a missing uid is a silent no-op, not an error.
func (s *Service) Persist(ctx context.Context, e *Entry) (*Entry, error) {
	if e.UID == "" {
		return nil, nil
	}

	doc := docstore.Doc{
		docstore.FieldID: e.ID,
		fieldUID:         e.UID,
		fieldTags:        tagsAny(e.Tags),
		fieldStatus:      string(e.Status),
		fieldCharge:      sanitizeCharge(e.ChargeAmount),
		fieldCreatedAt:   e.CreatedAt,
	}

	saved, err := s.store.Save(ctx, s.col, doc, docstore.SaveOptions{ID: e.ID})
	if err != nil {
		return nil, err
	}

	return entryFromDoc(saved), nil
}

// BySubject returns the most recent entries for a subject, newest first.
func (s *Service) BySubject(ctx context.Context, uid string, limit int) ([]*Entry, error) {
	docs, err := s.store.Query(ctx, s.col, docstore.Query{
		Filters:    []docstore.Filter{docstore.Eq(fieldUID, uid)},
		OrderBy:    fieldCreatedAt,
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, len(docs))
	for i, doc := range docs {
		entries[i] = entryFromDoc(doc)
	}

	return entries, nil
}

// CountBySubject counts every recorded entry for a subject without
// materializing the documents.
func (s *Service) CountBySubject(ctx context.Context, uid string) (int64, error) {
	return s.store.Count(ctx, s.col, []docstore.Filter{docstore.Eq(fieldUID, uid)})
}

// Handle is a caller-facing not-yet-finalized entry, returned by a successful
// admission check. The caller finalizes it once the unit of work completes.
type Handle struct {
	svc   *Service
	entry *Entry
}

// NewHandle pre-populates an entry for later finalization.
func (s *Service) NewHandle(uid string, tags []string) *Handle {
	return &Handle{svc: s, entry: s.NewEntry(uid, tags)}
}

// Entry exposes the pending entry.
func (h *Handle) Entry() *Entry {
	return h.entry
}

// Finalize records the outcome and persists the entry. It returns nil with no
// error when the entry carries no subject identity.
type Finalize struct {
	Status       Status
	ChargeAmount float64
}

// Finalize applies the outcome and persists. A zero-value Status keeps the
// default success.
func (h *Handle) Finalize(ctx context.Context, f Finalize) (*Entry, error) {
	if f.Status != "" {
		h.entry.Status = f.Status
	}

	h.entry.ChargeAmount = sanitizeCharge(f.ChargeAmount)

	return h.svc.Persist(ctx, h.entry)
}

// NormalizeTags trims, drops blanks, and deduplicates while preserving first
// occurrence order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}

		if _, dup := seen[tag]; dup {
			continue
		}

		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	return out
}

func tagsAny(tags []string) []any {
	out := make([]any, len(tags))
	for i, tag := range tags {
		out[i] = tag
	}

	return out
}

func sanitizeCharge(amount float64) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}

	return amount
}

func entryFromDoc(doc docstore.Doc) *Entry {
	e := &Entry{}
	e.ID, _ = doc[docstore.FieldID].(string)
	e.UID, _ = doc[fieldUID].(string)

	if s, ok := doc[fieldStatus].(string); ok {
		e.Status = Status(s)
	}

	switch n := doc[fieldCharge].(type) {
	case float64:
		e.ChargeAmount = n
	case int:
		e.ChargeAmount = float64(n)
	case int64:
		e.ChargeAmount = float64(n)
	}

	if t, ok := doc[fieldCreatedAt].(time.Time); ok {
		e.CreatedAt = t
	}

	switch tags := doc[fieldTags].(type) {
	case []string:
		e.Tags = tags
	case []any:
		for _, t := range tags {
			if s, ok := t.(string); ok {
				e.Tags = append(e.Tags, s)
			}
		}
	}

	return e
}
