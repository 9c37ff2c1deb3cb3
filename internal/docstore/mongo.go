package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// fieldExpiresAt is adapter-private: the TTL index on it does the actual
// expiry, and reads filter on it so documents past their TTL are invisible
// even before the server sweeper removes them.
const fieldExpiresAt = "expiresAt"

// MongoStore is a MongoDB-backed Store. Each Collection maps to a MongoDB
// collection of the same name with the document id stored as _id.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates a store over the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// Migrate ensures the TTL index exists for each collection that can expire
// documents.
func (s *MongoStore) Migrate(ctx context.Context, cols ...*Collection) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: fieldExpiresAt, Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}

	for _, col := range cols {
		_, err := s.db.Collection(col.Name).Indexes().CreateOne(ctx, model)
		if err != nil {
			return persistErr("migrate", col, err)
		}
	}

	return nil
}

// Ping checks connectivity to the backing deployment.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *MongoStore) FetchByID(ctx context.Context, col *Collection, id string) (Doc, error) {
	filter := bson.M{"$and": bson.A{bson.M{"_id": id}, expiryGuard()}}

	var raw bson.M

	err := s.db.Collection(col.Name).FindOne(ctx, filter).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}

		return nil, persistErr("fetch", col, err)
	}

	return col.Hydrate(fromMongoDoc(raw)), nil
}

func (s *MongoStore) Query(ctx context.Context, col *Collection, q Query) ([]Doc, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	filter, err := mongoFilter(q.Filters)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find().
		SetLimit(int64(q.limit())).
		SetSkip(int64(q.Offset))

	if q.OrderBy != "" {
		direction := 1
		if q.Descending {
			direction = -1
		}

		findOpts = findOpts.SetSort(bson.D{{Key: mongoField(q.OrderBy), Value: direction}})
	}

	cursor, err := s.db.Collection(col.Name).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, persistErr("query", col, err)
	}
	defer cursor.Close(ctx)

	var docs []Doc

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, persistErr("query", col, err)
		}

		docs = append(docs, col.Hydrate(fromMongoDoc(raw)))
	}

	if err := cursor.Err(); err != nil {
		return nil, persistErr("query", col, err)
	}

	return docs, nil
}

func (s *MongoStore) Count(ctx context.Context, col *Collection, filters []Filter) (int64, error) {
	filter, err := mongoFilter(filters)
	if err != nil {
		return 0, err
	}

	count, err := s.db.Collection(col.Name).CountDocuments(ctx, filter)
	if err != nil {
		return 0, persistErr("count", col, err)
	}

	return count, nil
}

func (s *MongoStore) Save(ctx context.Context, col *Collection, doc Doc, opts SaveOptions) (Doc, error) {
	id, prepared, ttl, err := prepareSave(col, doc, opts)
	if err != nil {
		return nil, err
	}

	if opts.Merge {
		existing, err := s.FetchByID(ctx, col, id)
		if err != nil {
			return nil, err
		}

		// Merging against an absent doc still resolves Increment values and
		// dotted paths in the patch.
		prepared = Merge(existing, prepared)

		if ttl = resolveTTL(col, prepared); ttl > 0 {
			prepared[FieldTTL] = ttl
		}
	}

	prepared = col.Hydrate(prepared)

	stored := toMongoDoc(prepared, id)
	if ttl > 0 {
		stored[fieldExpiresAt] = time.Now().Add(time.Duration(ttl) * time.Second).UTC()
	}

	_, err = s.db.Collection(col.Name).ReplaceOne(ctx,
		bson.M{"_id": id}, stored, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, persistErr("save", col, err)
	}

	return prepared, nil
}

// mongoField maps the logical id field onto _id.
func mongoField(field string) string {
	if field == FieldID {
		return "_id"
	}

	return field
}

// mongoFilter renders the filter conjunction as a $and of single-predicate
// clauses. A flat document keyed by field name would let a later predicate on
// the same field overwrite an earlier one, silently widening range queries.
func mongoFilter(filters []Filter) (bson.M, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	clauses := bson.A{expiryGuard()}

	for _, f := range filters {
		field := mongoField(f.Field)

		switch f.Op {
		case OpEq:
			clauses = append(clauses, bson.M{field: f.Value})
		case OpLT:
			clauses = append(clauses, bson.M{field: bson.M{"$lt": f.Value}})
		case OpLTE:
			clauses = append(clauses, bson.M{field: bson.M{"$lte": f.Value}})
		case OpGT:
			clauses = append(clauses, bson.M{field: bson.M{"$gt": f.Value}})
		case OpGTE:
			clauses = append(clauses, bson.M{field: bson.M{"$gte": f.Value}})
		default:
			return nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}

	return bson.M{"$and": clauses}, nil
}

func expiryGuard() bson.M {
	return bson.M{"$or": bson.A{
		bson.M{fieldExpiresAt: bson.M{"$exists": false}},
		bson.M{fieldExpiresAt: bson.M{"$gt": time.Now().UTC()}},
	}}
}

func toMongoDoc(doc Doc, id string) bson.M {
	out := bson.M{}

	for k, v := range doc {
		if k == FieldID {
			continue
		}

		out[k] = v
	}

	out["_id"] = id

	return out
}

func fromMongoDoc(raw bson.M) Doc {
	doc := Doc{}

	for k, v := range raw {
		switch k {
		case "_id":
			doc[FieldID] = v
		case fieldExpiresAt:
			// adapter-private field
		default:
			doc[k] = fromBSONValue(v)
		}
	}

	return doc
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := Doc{}
		for k, e := range t {
			out[k] = fromBSONValue(e)
		}

		return out
	case bson.D:
		out := Doc{}
		for _, e := range t {
			out[e.Key] = fromBSONValue(e.Value)
		}

		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSONValue(e)
		}

		return out
	case bson.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
