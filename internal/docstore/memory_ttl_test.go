package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TTL behavior needs a controllable clock, so these tests reach into the
// store's now function directly.
func TestMemoryStoreTTL(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	newClockedStore := func() (*MemoryStore, *time.Time) {
		current := base
		store := NewMemoryStore()
		store.now = func() time.Time { return current }

		return store, &current
	}

	t.Run("document ttl hides the doc after expiry", func(t *testing.T) {
		t.Parallel()

		col := &Collection{Name: "things", PartitionKey: "owner"}
		store, clock := newClockedStore()

		_, err := store.Save(context.Background(), col, Doc{"id": "d1", "owner": "u1", "ttl": 60}, SaveOptions{})
		require.NoError(t, err)

		*clock = base.Add(59 * time.Second)
		doc, err := store.FetchByID(context.Background(), col, "d1")
		require.NoError(t, err)
		assert.NotNil(t, doc, "still live one second before expiry")

		*clock = base.Add(60 * time.Second)
		doc, err = store.FetchByID(context.Background(), col, "d1")
		require.NoError(t, err)
		assert.Nil(t, doc, "expired docs read as absent")
	})

	t.Run("collection default applies when the doc has no ttl", func(t *testing.T) {
		t.Parallel()

		col := &Collection{Name: "things", PartitionKey: "owner", DefaultTTL: 30}
		store, clock := newClockedStore()

		_, err := store.Save(context.Background(), col, Doc{"id": "d1", "owner": "u1"}, SaveOptions{})
		require.NoError(t, err)

		*clock = base.Add(31 * time.Second)
		doc, err := store.FetchByID(context.Background(), col, "d1")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("doc ttl overrides the collection default", func(t *testing.T) {
		t.Parallel()

		col := &Collection{Name: "things", PartitionKey: "owner", DefaultTTL: 30}
		store, clock := newClockedStore()

		_, err := store.Save(context.Background(), col, Doc{"id": "d1", "owner": "u1", "ttl": 120}, SaveOptions{})
		require.NoError(t, err)

		*clock = base.Add(60 * time.Second)
		doc, err := store.FetchByID(context.Background(), col, "d1")
		require.NoError(t, err)
		assert.NotNil(t, doc, "doc-level ttl should outlive the collection default")
	})

	t.Run("expired docs are invisible to queries and counts", func(t *testing.T) {
		t.Parallel()

		col := &Collection{Name: "things", PartitionKey: "owner"}
		store, clock := newClockedStore()

		_, err := store.Save(context.Background(), col, Doc{"id": "d1", "owner": "u1", "ttl": 10}, SaveOptions{})
		require.NoError(t, err)
		_, err = store.Save(context.Background(), col, Doc{"id": "d2", "owner": "u1"}, SaveOptions{})
		require.NoError(t, err)

		*clock = base.Add(11 * time.Second)

		docs, err := store.Query(context.Background(), col, Query{Filters: []Filter{Eq("owner", "u1")}})
		require.NoError(t, err)
		assert.Len(t, docs, 1)

		count, err := store.Count(context.Background(), col, []Filter{Eq("owner", "u1")})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("no ttl means no expiry", func(t *testing.T) {
		t.Parallel()

		col := &Collection{Name: "things", PartitionKey: "owner"}
		store, clock := newClockedStore()

		_, err := store.Save(context.Background(), col, Doc{"id": "d1", "owner": "u1"}, SaveOptions{})
		require.NoError(t, err)

		*clock = base.Add(24 * 365 * time.Hour)
		doc, err := store.FetchByID(context.Background(), col, "d1")
		require.NoError(t, err)
		assert.NotNil(t, doc)
	})
}
