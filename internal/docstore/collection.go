package docstore

import (
	"fmt"

	"github.com/google/uuid"
)

// Doc is the untyped wire form of a persisted record.
type Doc map[string]any

// FieldID is the document id field common to all collections.
const FieldID = "id"

// FieldTTL carries an explicit per-document TTL override in seconds.
const FieldTTL = "ttl"

// DefaultLimit is applied to queries that do not specify their own limit.
const DefaultLimit = 1000

// Collection describes one partitioned collection: where records live, which
// field routes them, how long they survive, and which fields are dates.
type Collection struct {
	// Name identifies the collection in the backing store.
	Name string

	// PartitionKey is the field the store shards on. It must be present and
	// non-empty on every document handed to Save.
	PartitionKey string

	// DefaultTTL is the collection-wide expiry in seconds. Zero means
	// documents do not expire unless they carry their own ttl field.
	DefaultTTL int

	// DateFields are hydrated to time.Time regardless of whether the
	// backend returned a native date, an RFC 3339 string, or an epoch.
	DateFields []string

	// NewID generates ids for documents saved without one. Defaults to UUIDs.
	NewID func() string
}

// GenerateID produces a fresh document id using the collection's generator,
// defaulting to UUIDs.
func (c *Collection) GenerateID() string {
	if c.NewID != nil {
		return c.NewID()
	}

	return uuid.NewString()
}

// Op is a filter comparison operator.
type Op string

// Supported filter operators. Anything else is rejected before dispatch.
const (
	OpEq  Op = "="
	OpLT  Op = "<"
	OpLTE Op = "<="
	OpGT  Op = ">"
	OpGTE Op = ">="
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpLT, OpLTE, OpGT, OpGTE:
		return true
	default:
		return false
	}
}

// Filter is a single (field, operator, value) predicate. Filters in a query
// are combined as a conjunction.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Query describes a filtered, ordered, paginated read.
type Query struct {
	Filters []Filter

	// OrderBy sorts results by a single field. Empty means store order.
	OrderBy    string
	Descending bool

	// Limit caps the result set; zero falls back to DefaultLimit.
	// Offset skips rows after ordering.
	Limit  int
	Offset int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}

	return q.Limit
}

// SaveOptions control upsert behavior.
type SaveOptions struct {
	// ID overrides the document's own id field when set.
	ID string

	// Merge deep-merges the document into the stored one instead of
	// replacing it. See Merge for the patch semantics.
	Merge bool
}

func validateFilters(filters []Filter) error {
	for _, f := range filters {
		if f.Field == "" {
			return fmt.Errorf("%w: filter with empty field", ErrInvalidQuery)
		}

		if !f.Op.valid() {
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}

	return nil
}

func validateQuery(q Query) error {
	if err := validateFilters(q.Filters); err != nil {
		return err
	}

	if q.Offset < 0 {
		return fmt.Errorf("%w: negative offset", ErrInvalidQuery)
	}

	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}

	return nil
}
