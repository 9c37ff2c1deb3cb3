package docstore

import (
	"context"
)

// Store is the contract every backend adapter implements. All access to the
// document store goes through it; nothing is cached in memory across calls.
type Store interface {
	// FetchByID is a point lookup. A missing document is a nil Doc with a
	// nil error, not a failure.
	FetchByID(ctx context.Context, col *Collection, id string) (Doc, error)

	// Query returns documents matching the filter conjunction, ordered and
	// paginated per q.
	Query(ctx context.Context, col *Collection, q Query) ([]Doc, error)

	// Count returns the number of matching documents without materializing
	// them.
	Count(ctx context.Context, col *Collection, filters []Filter) (int64, error)

	// Save upserts. See SaveOptions for replace vs merge semantics. The
	// partition key is resolved and TTL recomputed before every write.
	Save(ctx context.Context, col *Collection, doc Doc, opts SaveOptions) (Doc, error)
}

// Get, Set, and Update are best-effort single-document helpers over a Store.
// They provide no cross-document atomicity or isolation: an Update is a read
// followed by a write, and concurrent writers can interleave between the two.

// Get fetches a single document by id.
func Get(ctx context.Context, s Store, col *Collection, id string) (Doc, error) {
	return s.FetchByID(ctx, col, id)
}

// Set fully replaces the document stored under id.
func Set(ctx context.Context, s Store, col *Collection, id string, doc Doc) (Doc, error) {
	return s.Save(ctx, col, doc, SaveOptions{ID: id})
}

// Update merge-saves a patch into the document stored under id.
func Update(ctx context.Context, s Store, col *Collection, id string, patch Doc) (Doc, error) {
	return s.Save(ctx, col, patch, SaveOptions{ID: id, Merge: true})
}

// Disabled is a Store placeholder for deployments with no backend configured.
// Every access fails with ErrStoreDisabled.
type Disabled struct{}

// NewDisabled creates a disabled store.
func NewDisabled() *Disabled {
	return &Disabled{}
}

func (*Disabled) FetchByID(_ context.Context, _ *Collection, _ string) (Doc, error) {
	return nil, ErrStoreDisabled
}

func (*Disabled) Query(_ context.Context, _ *Collection, _ Query) ([]Doc, error) {
	return nil, ErrStoreDisabled
}

func (*Disabled) Count(_ context.Context, _ *Collection, _ []Filter) (int64, error) {
	return 0, ErrStoreDisabled
}

func (*Disabled) Save(_ context.Context, _ *Collection, _ Doc, _ SaveOptions) (Doc, error) {
	return nil, ErrStoreDisabled
}
