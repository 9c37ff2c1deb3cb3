package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	doc       Doc
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is an in-memory Store for tests and single-process runs. TTLs
// are honored on read rather than by a background sweeper.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]memoryEntry // collection -> id -> entry
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]memoryEntry),
		now:  time.Now,
	}
}

func (m *MemoryStore) FetchByID(_ context.Context, col *Collection, id string) (Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[col.Name][id]
	if !ok || m.expired(entry) {
		return nil, nil
	}

	return Clone(entry.doc), nil
}

func (m *MemoryStore) Query(_ context.Context, col *Collection, q Query) ([]Doc, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Doc

	for _, entry := range m.data[col.Name] {
		if m.expired(entry) {
			continue
		}

		if matchesAll(entry.doc, q.Filters) {
			results = append(results, Clone(entry.doc))
		}
	}

	if q.OrderBy != "" {
		orderDocs(results, q.OrderBy, q.Descending)
	}

	if q.Offset >= len(results) {
		return nil, nil
	}

	results = results[q.Offset:]

	if limit := q.limit(); len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (m *MemoryStore) Count(_ context.Context, col *Collection, filters []Filter) (int64, error) {
	if err := validateFilters(filters); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64

	for _, entry := range m.data[col.Name] {
		if m.expired(entry) {
			continue
		}

		if matchesAll(entry.doc, filters) {
			count++
		}
	}

	return count, nil
}

func (m *MemoryStore) Save(_ context.Context, col *Collection, doc Doc, opts SaveOptions) (Doc, error) {
	id, prepared, ttl, err := prepareSave(col, doc, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.data[col.Name]
	if !ok {
		docs = make(map[string]memoryEntry)
		m.data[col.Name] = docs
	}

	if opts.Merge {
		var base Doc
		if existing, ok := docs[id]; ok && !m.expired(existing) {
			base = existing.doc
		}

		// Merging against an absent doc still resolves Increment values and
		// dotted paths in the patch.
		prepared = Merge(base, prepared)

		if ttl = resolveTTL(col, prepared); ttl > 0 {
			prepared[FieldTTL] = ttl
		}
	}

	prepared = col.Hydrate(prepared)

	entry := memoryEntry{doc: prepared}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(time.Duration(ttl) * time.Second)
	}

	docs[id] = entry

	return Clone(prepared), nil
}

func (m *MemoryStore) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt)
}

func matchesAll(doc Doc, filters []Filter) bool {
	for _, f := range filters {
		if !matches(doc, f) {
			return false
		}
	}

	return true
}

func matches(doc Doc, f Filter) bool {
	v, ok := doc[f.Field]
	if !ok {
		return false
	}

	cmp, comparable := compareValues(v, f.Value)
	if !comparable {
		return false
	}

	switch f.Op {
	case OpEq:
		return cmp == 0
	case OpLT:
		return cmp < 0
	case OpLTE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGTE:
		return cmp >= 0
	default:
		return false
	}
}

// compareValues orders two values of compatible types. Numbers compare
// numerically, strings lexically, times chronologically; times also compare
// against RFC 3339 strings and epoch numbers.
func compareValues(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		if bt, ok := b.(time.Time); ok {
			return compareTimes(a, bt)
		}

		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}

		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}

	if _, ok := a.(time.Time); ok {
		return compareTimes(a, b)
	}

	if _, ok := b.(time.Time); ok {
		cmp, comparable := compareTimes(b, a)

		return -cmp, comparable
	}

	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}

		return strings.Compare(as, bs), true
	}

	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}

		switch {
		case ab == bb:
			return 0, true
		case !ab:
			return -1, true
		default:
			return 1, true
		}
	}

	return 0, false
}

func compareTimes(a, b any) (int, bool) {
	at, ok := parseTime(a)
	if !ok {
		return 0, false
	}

	bt, ok := parseTime(b)
	if !ok {
		return 0, false
	}

	return at.Compare(bt), true
}

func orderDocs(docs []Doc, field string, descending bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		cmp, ok := compareValues(docs[i][field], docs[j][field])
		if !ok {
			return false
		}

		if descending {
			return cmp > 0
		}

		return cmp < 0
	})
}
