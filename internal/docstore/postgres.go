package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps every collection in one jsonb table keyed by
// (collection, id). Filters and ordering compare jsonb values, which orders
// numbers numerically and strings lexically.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the documents table and its expiry index.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection    text        NOT NULL,
			id            text        NOT NULL,
			partition_key text        NOT NULL,
			doc           jsonb       NOT NULL,
			expires_at    timestamptz,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS documents_expires_at_idx
			ON documents (expires_at) WHERE expires_at IS NOT NULL`,
	}

	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("docstore: migrate: %w", err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) FetchByID(ctx context.Context, col *Collection, id string) (Doc, error) {
	query := `
		SELECT doc FROM documents
		WHERE collection = $1 AND id = $2
		  AND (expires_at IS NULL OR expires_at > now())
	`

	var raw []byte

	err := p.pool.QueryRow(ctx, query, col.Name, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, persistErr("fetch", col, err)
	}

	return decodeJSONDoc(col, raw)
}

func (p *PostgresStore) Query(ctx context.Context, col *Collection, q Query) ([]Doc, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	sql, args, err := buildSelect(col, "doc", q.Filters)
	if err != nil {
		return nil, err
	}

	if q.OrderBy != "" {
		field, err := jsonField(q.OrderBy)
		if err != nil {
			return nil, err
		}

		direction := "ASC"
		if q.Descending {
			direction = "DESC"
		}

		sql += fmt.Sprintf(" ORDER BY %s %s", field, direction)
	}

	sql += fmt.Sprintf(" LIMIT %d OFFSET %d", q.limit(), q.Offset)

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, persistErr("query", col, err)
	}
	defer rows.Close()

	var docs []Doc

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, persistErr("query", col, err)
		}

		doc, err := decodeJSONDoc(col, raw)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, persistErr("query", col, err)
	}

	return docs, nil
}

func (p *PostgresStore) Count(ctx context.Context, col *Collection, filters []Filter) (int64, error) {
	if err := validateFilters(filters); err != nil {
		return 0, err
	}

	sql, args, err := buildSelect(col, "count(*)", filters)
	if err != nil {
		return 0, err
	}

	var count int64

	if err := p.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, persistErr("count", col, err)
	}

	return count, nil
}

func (p *PostgresStore) Save(ctx context.Context, col *Collection, doc Doc, opts SaveOptions) (Doc, error) {
	id, prepared, ttl, err := prepareSave(col, doc, opts)
	if err != nil {
		return nil, err
	}

	if opts.Merge {
		existing, err := p.FetchByID(ctx, col, id)
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

	payload, err := json.Marshal(prepared)
	if err != nil {
		return nil, persistErr("save", col, err)
	}

	var expiresAt *time.Time

	if ttl > 0 {
		t := time.Now().Add(time.Duration(ttl) * time.Second).UTC()
		expiresAt = &t
	}

	query := `
		INSERT INTO documents (collection, id, partition_key, doc, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, id) DO UPDATE
		SET partition_key = EXCLUDED.partition_key,
		    doc = EXCLUDED.doc,
		    expires_at = EXCLUDED.expires_at
	`

	_, err = p.pool.Exec(ctx, query, col.Name, id, PartitionValue(col, prepared), payload, expiresAt)
	if err != nil {
		return nil, persistErr("save", col, err)
	}

	return prepared, nil
}

var jsonFieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// jsonField renders a jsonb accessor for a top-level document field. Field
// names are validated rather than parameterized because they become part of
// the SQL text.
func jsonField(field string) (string, error) {
	if !jsonFieldPattern.MatchString(field) {
		return "", fmt.Errorf("%w: invalid field name %q", ErrInvalidQuery, field)
	}

	return fmt.Sprintf("doc -> '%s'", field), nil
}

func buildSelect(col *Collection, projection string, filters []Filter) (string, []any, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, `SELECT %s FROM documents
		WHERE collection = $1
		  AND (expires_at IS NULL OR expires_at > now())`, projection)

	args := []any{col.Name}

	for _, f := range filters {
		field, err := jsonField(f.Field)
		if err != nil {
			return "", nil, err
		}

		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("%w: unencodable filter value for %q", ErrInvalidQuery, f.Field)
		}

		args = append(args, string(value))
		fmt.Fprintf(&sb, " AND %s %s $%d::jsonb", field, f.Op, len(args))
	}

	return sb.String(), args, nil
}

func decodeJSONDoc(col *Collection, raw []byte) (Doc, error) {
	var doc Doc

	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, persistErr("decode", col, err)
	}

	return col.Hydrate(doc), nil
}
