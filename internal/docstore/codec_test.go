package docstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlmeter/crawlmeter/internal/docstore"
)

func testCollection() *docstore.Collection {
	return &docstore.Collection{
		Name:         "things",
		PartitionKey: "owner",
		DateFields:   []string{"createdAt", "updatedAt"},
	}
}

func TestHydrate(t *testing.T) {
	t.Parallel()

	col := testCollection()

	t.Run("assigns id when absent", func(t *testing.T) {
		t.Parallel()

		doc := col.Hydrate(docstore.Doc{"owner": "u1"})

		assert.NotEmpty(t, doc[docstore.FieldID])
	})

	t.Run("keeps existing id", func(t *testing.T) {
		t.Parallel()

		doc := col.Hydrate(docstore.Doc{"id": "abc", "owner": "u1"})

		assert.Equal(t, "abc", doc["id"])
	})

	t.Run("parses RFC3339 date fields", func(t *testing.T) {
		t.Parallel()

		doc := col.Hydrate(docstore.Doc{"owner": "u1", "createdAt": "2026-08-23T10:00:00Z"})

		created, ok := doc["createdAt"].(time.Time)
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC), created.UTC())
	})

	t.Run("parses epoch milliseconds and seconds", func(t *testing.T) {
		t.Parallel()

		base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
		doc := col.Hydrate(docstore.Doc{
			"owner":     "u1",
			"createdAt": float64(base.UnixMilli()),
			"updatedAt": float64(base.Unix()),
		})

		created, ok := doc["createdAt"].(time.Time)
		require.True(t, ok)
		assert.True(t, created.Equal(base))

		updated, ok := doc["updatedAt"].(time.Time)
		require.True(t, ok)
		assert.True(t, updated.Equal(base))
	})

	t.Run("leaves unparsable dates as-is", func(t *testing.T) {
		t.Parallel()

		doc := col.Hydrate(docstore.Doc{"owner": "u1", "createdAt": "not a date"})

		assert.Equal(t, "not a date", doc["createdAt"])
	})

	t.Run("ignores unregistered fields", func(t *testing.T) {
		t.Parallel()

		doc := col.Hydrate(docstore.Doc{"owner": "u1", "note": "2026-08-23T10:00:00Z"})

		assert.Equal(t, "2026-08-23T10:00:00Z", doc["note"])
	})
}

func TestMerge(t *testing.T) {
	t.Parallel()

	t.Run("nested maps merge field by field", func(t *testing.T) {
		t.Parallel()

		existing := docstore.Doc{"a": docstore.Doc{"x": 1}}
		merged := docstore.Merge(existing, docstore.Doc{"a": docstore.Doc{"y": 2}})

		a, ok := merged["a"].(docstore.Doc)
		require.True(t, ok)
		assert.Equal(t, 1, a["x"], "existing nested field should be preserved")
		assert.Equal(t, 2, a["y"])
	})

	t.Run("dotted keys address nested paths", func(t *testing.T) {
		t.Parallel()

		existing := docstore.Doc{"a": docstore.Doc{"x": 1}}
		merged := docstore.Merge(existing, docstore.Doc{"a.y": 2})

		a, ok := merged["a"].(docstore.Doc)
		require.True(t, ok)
		assert.Equal(t, 1, a["x"])
		assert.Equal(t, 2, a["y"])
	})

	t.Run("dotted path creates intermediate containers", func(t *testing.T) {
		t.Parallel()

		merged := docstore.Merge(docstore.Doc{}, docstore.Doc{"a.b.c": "deep"})

		a, ok := merged["a"].(docstore.Doc)
		require.True(t, ok)
		b, ok := a["b"].(docstore.Doc)
		require.True(t, ok)
		assert.Equal(t, "deep", b["c"])
	})

	t.Run("dotted path overwrites non-container intermediates", func(t *testing.T) {
		t.Parallel()

		existing := docstore.Doc{"a": "scalar"}
		merged := docstore.Merge(existing, docstore.Doc{"a.b": 1})

		a, ok := merged["a"].(docstore.Doc)
		require.True(t, ok)
		assert.Equal(t, 1, a["b"])
	})

	t.Run("arrays and scalars replace", func(t *testing.T) {
		t.Parallel()

		existing := docstore.Doc{"tags": []any{"a", "b"}, "n": 1}
		merged := docstore.Merge(existing, docstore.Doc{"tags": []any{"c"}, "n": 2})

		assert.Equal(t, []any{"c"}, merged["tags"])
		assert.Equal(t, 2, merged["n"])
	})

	t.Run("increment adds to existing numeric field", func(t *testing.T) {
		t.Parallel()

		existing := docstore.Doc{"count": 5}
		merged := docstore.Merge(existing, docstore.Doc{"count": docstore.Inc(3)})

		assert.InDelta(t, 8.0, merged["count"], 0)
	})

	t.Run("increment on missing field starts from zero", func(t *testing.T) {
		t.Parallel()

		merged := docstore.Merge(docstore.Doc{}, docstore.Doc{"count": docstore.Inc(2)})

		assert.InDelta(t, 2.0, merged["count"], 0)
	})

	t.Run("increment through a dotted path", func(t *testing.T) {
		t.Parallel()

		existing := docstore.Doc{"stats": docstore.Doc{"hits": 10}}
		merged := docstore.Merge(existing, docstore.Doc{"stats.hits": docstore.Inc(1)})

		stats, ok := merged["stats"].(docstore.Doc)
		require.True(t, ok)
		assert.InDelta(t, 11.0, stats["hits"], 0)
	})

	t.Run("does not mutate inputs", func(t *testing.T) {
		t.Parallel()

		existing := docstore.Doc{"a": docstore.Doc{"x": 1}}
		patch := docstore.Doc{"a": docstore.Doc{"y": 2}}

		_ = docstore.Merge(existing, patch)

		a := existing["a"].(docstore.Doc)
		_, mutated := a["y"]
		assert.False(t, mutated, "merge must not write through to the existing doc")
	})
}

func TestClone(t *testing.T) {
	t.Parallel()

	original := docstore.Doc{
		"nested": docstore.Doc{"x": 1},
		"list":   []any{1, 2},
	}

	cloned := docstore.Clone(original)
	cloned["nested"].(docstore.Doc)["x"] = 99
	cloned["list"].([]any)[0] = 99

	assert.Equal(t, 1, original["nested"].(docstore.Doc)["x"])
	assert.Equal(t, 1, original["list"].([]any)[0])
}
