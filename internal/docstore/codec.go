package docstore

import (
	"fmt"
	"strings"
	"time"
)

// Increment is a patch value that adds Delta to the stored numeric field
// instead of replacing it. It only has meaning in merge saves.
type Increment struct {
	Delta float64
}

// Inc builds an increment patch value.
func Inc(delta float64) Increment {
	return Increment{Delta: delta}
}

// Hydrate builds a typed-ish document from an untyped payload: it assigns an
// id when absent and parses the collection's registered date fields into
// time.Time. Hydration is lenient; values that do not parse are left as-is.
func (c *Collection) Hydrate(raw Doc) Doc {
	doc := Clone(raw)
	if doc == nil {
		doc = Doc{}
	}

	if id, _ := doc[FieldID].(string); id == "" {
		doc[FieldID] = c.GenerateID()
	}

	for _, field := range c.DateFields {
		v, ok := doc[field]
		if !ok {
			continue
		}

		if t, ok := parseTime(v); ok {
			doc[field] = t
		}
	}

	return doc
}

// parseTime accepts native times, RFC 3339 strings, and epoch numbers.
// Epoch values above 1e12 are treated as milliseconds, smaller ones as
// seconds.
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}

		return time.Time{}, false
	}

	if n, ok := toFloat(v); ok {
		if n < 0 {
			return time.Time{}, false
		}

		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC(), true
		}

		return time.Unix(int64(n), 0).UTC(), true
	}

	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
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

// Clone deep-copies a document. Nested maps and slices are copied; scalar
// values are shared.
func Clone(doc Doc) Doc {
	if doc == nil {
		return nil
	}

	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Doc:
		return Clone(t)
	case map[string]any:
		return Clone(Doc(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}

		return out
	default:
		return v
	}
}

// Merge deep-merges patch into existing and returns the result. Map fields
// merge recursively, arrays and scalars replace, dotted keys address nested
// paths directly, and Increment values add to the existing numeric field.
// Neither input is mutated.
func Merge(existing, patch Doc) Doc {
	out := Clone(existing)
	if out == nil {
		out = Doc{}
	}

	for key, value := range patch {
		if strings.Contains(key, ".") {
			setPath(out, strings.Split(key, "."), value)

			continue
		}

		out[key] = mergeValue(out[key], value)
	}

	return out
}

func mergeValue(existing, incoming any) any {
	if inc, ok := incoming.(Increment); ok {
		current, _ := toFloat(existing)

		return current + inc.Delta
	}

	incomingMap, ok := asDoc(incoming)
	if !ok {
		return cloneValue(incoming)
	}

	existingMap, ok := asDoc(existing)
	if !ok {
		return Clone(incomingMap)
	}

	return Merge(existingMap, incomingMap)
}

// setPath walks the dotted path, creating intermediate maps as needed. An
// intermediate segment that is not itself a map is overwritten with a fresh
// map; this lenient behavior is deliberate.
func setPath(doc Doc, path []string, value any) {
	current := doc

	for _, segment := range path[:len(path)-1] {
		next, ok := asDoc(current[segment])
		if !ok {
			next = Doc{}
			current[segment] = next
		}

		current = next
	}

	leaf := path[len(path)-1]
	current[leaf] = mergeValue(current[leaf], value)
}

func asDoc(v any) (Doc, bool) {
	switch t := v.(type) {
	case Doc:
		return t, true
	case map[string]any:
		return Doc(t), true
	default:
		return nil, false
	}
}

// prepareSave resolves the id, partition key, and TTL for a document about to
// be written. The returned document is a copy; ttl is zero when the document
// should not expire.
func prepareSave(col *Collection, doc Doc, opts SaveOptions) (id string, out Doc, ttl int, err error) {
	out = Clone(doc)
	if out == nil {
		out = Doc{}
	}

	id = opts.ID
	if id == "" {
		id, _ = out[FieldID].(string)
	}

	if id == "" {
		id = col.GenerateID()
	}

	out[FieldID] = id

	if err := resolvePartitionKey(col, out); err != nil {
		return "", nil, 0, err
	}

	ttl = resolveTTL(col, out)
	if ttl > 0 {
		out[FieldTTL] = ttl
	}

	return id, out, ttl, nil
}

func resolvePartitionKey(col *Collection, doc Doc) error {
	v, ok := doc[col.PartitionKey]
	if !ok || v == nil {
		return fmt.Errorf("%w: collection %s requires %q", ErrMissingPartitionKey, col.Name, col.PartitionKey)
	}

	if s, isString := v.(string); isString && s == "" {
		return fmt.Errorf("%w: collection %s requires %q", ErrMissingPartitionKey, col.Name, col.PartitionKey)
	}

	return nil
}

// resolveTTL prefers an explicit positive ttl on the document, then the
// collection default.
func resolveTTL(col *Collection, doc Doc) int {
	if v, ok := doc[FieldTTL]; ok {
		if n, ok := toFloat(v); ok && n > 0 {
			return int(n)
		}
	}

	return col.DefaultTTL
}

// PartitionValue returns the document's partition key value as a string for
// adapters that index it separately.
func PartitionValue(col *Collection, doc Doc) string {
	return fmt.Sprint(doc[col.PartitionKey])
}
