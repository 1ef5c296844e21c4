// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package pgvector implements the remote vector backend on PostgreSQL with
// the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const (
	name = "pgvector"

	// DefaultTable is used when the config names none.
	DefaultTable = "mnemo_vectors"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func init() {
	vector.RegisterBackend(name, func(cfg vector.Config) (vector.Backend, error) {
		if cfg.PGVector == nil {
			return nil, vector.MissingConfig(name, "pgvector")
		}
		return New(*cfg.PGVector, cfg.CallTimeout())
	})
}

var (
	_ vector.Backend          = (*Backend)(nil)
	_ vector.CategoryFilterer = (*Backend)(nil)
)

// Backend stores vectors in a single table with a vector(N) column and a
// JSONB metadata column. Distances are L2 via the <-> operator.
type Backend struct {
	db      *sqlx.DB
	table   string
	timeout time.Duration
	life    *vector.Lifecycle
}

type row struct {
	ID       string  `db:"id"`
	Distance float64 `db:"distance"`
	Metadata []byte  `db:"metadata"`
}

// New opens a connection pool. Connections are established on first use.
func New(cfg vector.PGVectorConfig, timeout time.Duration) (*Backend, error) {
	if cfg.DSN == "" {
		return nil, vector.MissingConfig(name, "pgvector.dsn")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeVectorConfigInvalid, "opening postgres pool", sigilerr.FieldBackend(name))
	}

	b, err := NewWithDB(db, cfg.Table, timeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// NewWithDB builds a backend over an existing pool.
func NewWithDB(db *sqlx.DB, table string, timeout time.Duration) (*Backend, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, sigilerr.New(sigilerr.CodeVectorConfigInvalid, "invalid table name",
			sigilerr.FieldBackend(name), sigilerr.Field("table", table))
	}
	if timeout <= 0 {
		timeout = vector.DefaultTimeout
	}
	return &Backend{db: db, table: table, timeout: timeout, life: vector.NewLifecycle(name)}, nil
}

func (b *Backend) Name() string { return name }

// FiltersCategories reports native category filtering via JSONB operators.
func (b *Backend) FiltersCategories() bool { return true }

// Initialize installs the extension and creates the table. An existing
// table must have a vector column of the same size.
func (b *Backend) Initialize(ctx context.Context, dimensions int) error {
	return b.life.Begin(dimensions, func() error {
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		if _, err := b.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			return vector.BackendError(err, name, "creating vector extension")
		}

		var have int
		err := b.db.GetContext(ctx, &have,
			`SELECT atttypmod FROM pg_attribute WHERE attrelid = to_regclass($1) AND attname = 'embedding'`, b.table)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return vector.BackendError(err, name, "reading table definition")
		case have != dimensions:
			return vector.DimensionMismatch(name, have, dimensions)
		default:
			return nil
		}

		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	embedding  vector(%d) NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, b.table, dimensions)
		if _, err := b.db.ExecContext(ctx, ddl); err != nil {
			return vector.BackendError(err, name, "creating table "+b.table)
		}
		return nil
	})
}

// Upsert inserts or replaces a row.
func (b *Backend) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	dims, err := b.life.Ready()
	if err != nil {
		return err
	}
	if err := vector.ValidateUpsert(name, dims, id, embedding); err != nil {
		return err
	}
	metadata = vector.CanonicalMetadata(metadata)

	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeVectorMetadataInvalid, "marshalling metadata", sigilerr.FieldBackend(name))
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	q := fmt.Sprintf(`INSERT INTO %s (id, embedding, metadata) VALUES ($1, $2::vector, $3::jsonb)
ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = now()`, b.table)
	if _, err := b.db.ExecContext(ctx, q, id, formatVector(embedding), string(meta)); err != nil {
		return vector.BackendError(err, name, "upserting "+id)
	}
	return nil
}

// Search orders by L2 distance with ties broken by id.
func (b *Backend) Search(ctx context.Context, query []float32, topK int, filter *vector.Filter) ([]vector.Result, error) {
	dims, err := b.life.Ready()
	if err != nil {
		return nil, err
	}
	if err := vector.ValidateSearch(name, dims, query, topK); err != nil {
		return nil, err
	}

	q, args := b.searchQuery(query, topK, filter)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var rows []row
	if err := b.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, vector.BackendError(err, name, "searching")
	}

	results := make([]vector.Result, 0, len(rows))
	for _, r := range rows {
		res := vector.Result{ID: r.ID, Distance: r.Distance}
		if len(r.Metadata) > 0 && string(r.Metadata) != "{}" {
			if err := json.Unmarshal(r.Metadata, &res.Metadata); err != nil {
				return nil, sigilerr.Wrap(err, sigilerr.CodeVectorMetadataInvalid, "unmarshalling metadata",
					sigilerr.FieldBackend(name), sigilerr.Field("id", r.ID))
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func (b *Backend) searchQuery(query []float32, topK int, f *vector.Filter) (string, []any) {
	args := []any{formatVector(query)}
	var conds []string

	if !f.IsEmpty() {
		if len(f.Layers) > 0 {
			args = append(args, pq.Array(f.Layers))
			conds = append(conds, fmt.Sprintf("metadata->>'%s' = ANY($%d)", vector.MetaLayer, len(args)))
		}
		if f.AgentID != "" {
			args = append(args, f.AgentID)
			conds = append(conds, fmt.Sprintf("metadata->>'%s' = $%d", vector.MetaAgentID, len(args)))
		}
		if len(f.Categories) > 0 {
			args = append(args, pq.Array(f.Categories))
			conds = append(conds, fmt.Sprintf("metadata->>'%s' = ANY($%d)", vector.MetaCategory, len(args)))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT id, embedding <-> $1::vector AS distance, metadata FROM %s", b.table)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	args = append(args, topK)
	fmt.Fprintf(&sb, " ORDER BY distance, id LIMIT $%d", len(args))
	return sb.String(), args
}

// Delete removes rows by id.
func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if _, err := b.life.Ready(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, b.table)
	if _, err := b.db.ExecContext(ctx, q, pq.Array(ids)); err != nil {
		return vector.BackendError(err, name, "deleting")
	}
	return nil
}

// Count returns the number of rows.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	if _, err := b.life.Ready(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var n int64
	if err := b.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, b.table)); err != nil {
		return 0, vector.BackendError(err, name, "counting")
	}
	return n, nil
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	if !b.life.Close() {
		return nil
	}
	return b.db.Close()
}

// formatVector renders v in pgvector's text form, e.g. [1,0.5,-2].
func formatVector(v []float32) string {
	elems := make([]string, len(v))
	for i, f := range v {
		elems[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(elems, ",") + "]"
}
