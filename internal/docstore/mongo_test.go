package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func clauses(t *testing.T, filter bson.M) bson.A {
	t.Helper()

	and, ok := filter["$and"].(bson.A)
	require.True(t, ok, "every filter is a $and conjunction")

	return and
}

func TestMongoFilter(t *testing.T) {
	t.Parallel()

	t.Run("keeps both bounds of a same-field range", func(t *testing.T) {
		t.Parallel()

		filter, err := mongoFilter([]Filter{
			{Field: "createdAt", Op: OpGTE, Value: 10},
			{Field: "createdAt", Op: OpLT, Value: 20},
		})
		require.NoError(t, err)

		and := clauses(t, filter)
		assert.Contains(t, and, bson.M{"createdAt": bson.M{"$gte": 10}})
		assert.Contains(t, and, bson.M{"createdAt": bson.M{"$lt": 20}})
	})

	t.Run("maps each operator to its own clause", func(t *testing.T) {
		t.Parallel()

		filter, err := mongoFilter([]Filter{
			Eq("owner", "u1"),
			{Field: "size", Op: OpLTE, Value: 5},
			{Field: "size", Op: OpGT, Value: 1},
		})
		require.NoError(t, err)

		and := clauses(t, filter)
		assert.Contains(t, and, bson.M{"owner": "u1"})
		assert.Contains(t, and, bson.M{"size": bson.M{"$lte": 5}})
		assert.Contains(t, and, bson.M{"size": bson.M{"$gt": 1}})
	})

	t.Run("maps the id field onto _id", func(t *testing.T) {
		t.Parallel()

		filter, err := mongoFilter([]Filter{Eq(FieldID, "abc")})
		require.NoError(t, err)

		assert.Contains(t, clauses(t, filter), bson.M{"_id": "abc"})
	})

	t.Run("always carries the expiry guard", func(t *testing.T) {
		t.Parallel()

		filter, err := mongoFilter(nil)
		require.NoError(t, err)

		and := clauses(t, filter)
		require.Len(t, and, 1)

		guard, ok := and[0].(bson.M)
		require.True(t, ok)
		assert.Contains(t, guard, "$or")
	})

	t.Run("rejects unsupported operators", func(t *testing.T) {
		t.Parallel()

		_, err := mongoFilter([]Filter{{Field: "size", Op: "between", Value: 1}})
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}
