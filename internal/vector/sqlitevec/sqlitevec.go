// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlitevec implements the embedded vector backend on SQLite with
// the sqlite-vec extension.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const name = vector.DefaultProvider

func init() {
	sqlite_vec.Auto()
	vector.RegisterBackend(name, func(cfg vector.Config) (vector.Backend, error) {
		path := vector.DefaultSQLitePath
		if cfg.SQLiteVec != nil && cfg.SQLiteVec.Path != "" {
			path = cfg.SQLiteVec.Path
		}
		return Open(path)
	})
}

// Compile-time interface checks.
var (
	_ vector.Backend          = (*Backend)(nil)
	_ vector.CategoryFilterer = (*Backend)(nil)
)

// Backend implements vector.Backend with a vec0 virtual table holding the
// embeddings and a companion table holding JSON metadata.
type Backend struct {
	db   *sql.DB
	life *vector.Lifecycle
}

// Open opens (or creates) the SQLite database at dbPath. Tables are created
// by Initialize.
func Open(dbPath string) (*Backend, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeVectorConfigInvalid, "opening sqlite db",
			sigilerr.FieldBackend(name), sigilerr.Field("path", dbPath))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sigilerr.Wrap(err, sigilerr.CodeVectorConfigInvalid, "pinging sqlite db",
			sigilerr.FieldBackend(name), sigilerr.Field("path", dbPath))
	}

	return &Backend{db: db, life: vector.NewLifecycle(name)}, nil
}

func (b *Backend) Name() string { return name }

// FiltersCategories reports native category filtering via json_extract.
func (b *Backend) FiltersCategories() bool { return true }

// Initialize creates the vec0 table sized for dimensions. A database
// created earlier with a different size is rejected.
func (b *Backend) Initialize(ctx context.Context, dimensions int) error {
	return b.life.Begin(dimensions, func() error {
		return migrate(ctx, b.db, dimensions)
	})
}

func migrate(ctx context.Context, db *sql.DB, dimensions int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return vector.BackendError(err, name, "beginning migration")
	}
	defer func() { _ = tx.Rollback() }()

	const configDDL = `
CREATE TABLE IF NOT EXISTS vector_config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	if _, err := tx.ExecContext(ctx, configDDL); err != nil {
		return vector.BackendError(err, name, "creating vector_config table")
	}

	var stored string
	err = tx.QueryRowContext(ctx, `SELECT value FROM vector_config WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO vector_config(key, value) VALUES ('dimensions', ?)`,
			strconv.Itoa(dimensions)); err != nil {
			return vector.BackendError(err, name, "recording dimensions")
		}
	case err != nil:
		return vector.BackendError(err, name, "reading dimensions")
	default:
		have, convErr := strconv.Atoi(stored)
		if convErr != nil {
			return sigilerr.Wrap(convErr, sigilerr.CodeVectorConfigInvalid, "corrupt dimensions record",
				sigilerr.FieldBackend(name))
		}
		if have != dimensions {
			return vector.DimensionMismatch(name, have, dimensions)
		}
	}

	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`,
		dimensions,
	)
	if _, err := tx.ExecContext(ctx, vecDDL); err != nil {
		return vector.BackendError(err, name, "creating vectors virtual table")
	}

	const metaDDL = `
CREATE TABLE IF NOT EXISTS vector_metadata (
	id       TEXT PRIMARY KEY,
	metadata TEXT NOT NULL DEFAULT '{}'
)`
	if _, err := tx.ExecContext(ctx, metaDDL); err != nil {
		return vector.BackendError(err, name, "creating vector_metadata table")
	}

	if err := tx.Commit(); err != nil {
		return vector.BackendError(err, name, "committing migration")
	}
	return nil
}

// Upsert inserts or replaces a vector and its metadata.
func (b *Backend) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	dims, err := b.life.Ready()
	if err != nil {
		return err
	}
	if err := vector.ValidateUpsert(name, dims, id, embedding); err != nil {
		return err
	}
	metadata = vector.CanonicalMetadata(metadata)

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeVectorUpsertInvalid, "serializing embedding", sigilerr.FieldBackend(name))
	}

	metaJSON := []byte("{}")
	if len(metadata) > 0 {
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return sigilerr.Wrap(err, sigilerr.CodeVectorMetadataInvalid, "marshalling metadata", sigilerr.FieldBackend(name))
		}
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return vector.BackendError(err, name, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return vector.BackendError(err, name, "deleting existing vector "+id)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO vectors(id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return vector.BackendError(err, name, "inserting vector "+id)
	}

	const metaQ = `INSERT INTO vector_metadata(id, metadata) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET metadata = excluded.metadata`
	if _, err := tx.ExecContext(ctx, metaQ, id, string(metaJSON)); err != nil {
		return vector.BackendError(err, name, "upserting vector metadata "+id)
	}

	if err := tx.Commit(); err != nil {
		return vector.BackendError(err, name, "committing upsert")
	}
	return nil
}

// Search performs a k-nearest-neighbor search under L2 distance.
//
// Without a filter the vec0 KNN index answers directly. With a filter the
// table is scanned with vec_distance_l2 and the predicates sit in the WHERE
// clause, so LIMIT applies only to matching rows.
func (b *Backend) Search(ctx context.Context, query []float32, topK int, filter *vector.Filter) ([]vector.Result, error) {
	dims, err := b.life.Ready()
	if err != nil {
		return nil, err
	}
	if err := vector.ValidateSearch(name, dims, query, topK); err != nil {
		return nil, err
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeVectorSearchInvalid, "serializing query vector", sigilerr.FieldBackend(name))
	}

	var (
		q    string
		args []any
	)
	if filter.IsEmpty() {
		q = `SELECT v.id, v.distance, COALESCE(m.metadata, '{}')
FROM vectors v
LEFT JOIN vector_metadata m ON m.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance, v.id`
		args = []any{blob, topK}
	} else {
		where, whereArgs := filterClause(filter)
		q = `SELECT v.id, vec_distance_l2(v.embedding, ?) AS distance, COALESCE(m.metadata, '{}')
FROM vectors v
JOIN vector_metadata m ON m.id = v.id
WHERE ` + where + `
ORDER BY distance, v.id
LIMIT ?`
		args = append([]any{blob}, whereArgs...)
		args = append(args, topK)
	}

	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, vector.BackendError(err, name, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	results := make([]vector.Result, 0, topK)
	for rows.Next() {
		var r vector.Result
		var metaStr string

		if err := rows.Scan(&r.ID, &r.Distance, &metaStr); err != nil {
			return nil, vector.BackendError(err, name, "scanning vector result")
		}

		if metaStr != "" && metaStr != "{}" {
			if err := json.Unmarshal([]byte(metaStr), &r.Metadata); err != nil {
				return nil, sigilerr.Wrap(err, sigilerr.CodeVectorMetadataInvalid, "unmarshalling vector metadata",
					sigilerr.FieldBackend(name), sigilerr.Field("id", r.ID))
			}
		}

		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, vector.BackendError(err, name, "iterating vector results")
	}

	return vector.TopK(results, topK), nil
}

// filterClause compiles f into a WHERE fragment over vector_metadata.
func filterClause(f *vector.Filter) (string, []any) {
	var (
		preds []string
		args  []any
	)
	in := func(key string, values []string) {
		preds = append(preds, fmt.Sprintf("CAST(json_extract(m.metadata, '$.%s') AS TEXT) IN (%s)",
			key, placeholders(len(values))))
		for _, v := range values {
			args = append(args, v)
		}
	}

	if len(f.Layers) > 0 {
		in(vector.MetaLayer, f.Layers)
	}
	if f.AgentID != "" {
		in(vector.MetaAgentID, []string{f.AgentID})
	}
	if len(f.Categories) > 0 {
		in(vector.MetaCategory, f.Categories)
	}
	return strings.Join(preds, " AND "), args
}

// Delete removes vectors and their metadata by ID.
func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if _, err := b.life.Ready(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return vector.BackendError(err, name, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	ph := placeholders(len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id IN (`+ph+`)`, args...); err != nil {
		return vector.BackendError(err, name, "deleting vectors")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_metadata WHERE id IN (`+ph+`)`, args...); err != nil {
		return vector.BackendError(err, name, "deleting vector metadata")
	}

	if err := tx.Commit(); err != nil {
		return vector.BackendError(err, name, "committing vector delete")
	}
	return nil
}

// Count returns the number of stored vectors.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	if _, err := b.life.Ready(); err != nil {
		return 0, err
	}

	var n int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_metadata`).Scan(&n); err != nil {
		return 0, vector.BackendError(err, name, "counting vectors")
	}
	return n, nil
}

// Close closes the underlying database connection.
func (b *Backend) Close() error {
	if !b.life.Close() {
		return nil
	}
	return b.db.Close()
}

func placeholders(n int) string {
	p := strings.Repeat("?,", n)
	return p[:len(p)-1]
}
