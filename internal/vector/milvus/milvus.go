// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package milvus implements the remote vector backend on Milvus.
package milvus

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const (
	name = "milvus"

	fieldID        = "id"
	fieldEmbedding = "embedding"
	fieldMetadata  = "metadata"
	countField     = "count(*)"
	maxIDLength    = 512
	shardCount     = 1
)

func init() {
	vector.RegisterBackend(name, func(cfg vector.Config) (vector.Backend, error) {
		if cfg.Milvus == nil {
			return nil, vector.MissingConfig(name, "milvus")
		}
		return New(*cfg.Milvus, cfg.CallTimeout())
	})
}

// Client is the subset of the Milvus SDK client the backend uses.
type Client interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	DescribeCollection(ctx context.Context, collName string) (*entity.Collection, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error
	CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error
	Upsert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
		sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Query(ctx context.Context, collectionName string, partitionNames []string, expr string,
		outputFields []string, opts ...client.SearchQueryOptionFunc) (client.ResultSet, error)
	Delete(ctx context.Context, collName string, partitionName string, expr string) error
	Close() error
}

var (
	_ vector.Backend          = (*Backend)(nil)
	_ vector.CategoryFilterer = (*Backend)(nil)
)

// Backend stores vectors in a Milvus collection with a VarChar primary key,
// a FLAT L2 index and a JSON metadata field.
type Backend struct {
	cli        Client
	collection string
	timeout    time.Duration
	life       *vector.Lifecycle
}

// New connects to Milvus. Unlike the gRPC-only backends, the SDK
// handshakes on connect, so an unreachable server fails here.
func New(cfg vector.MilvusConfig, timeout time.Duration) (*Backend, error) {
	if cfg.URI == "" {
		return nil, vector.MissingConfig(name, "milvus.uri")
	}
	if cfg.Collection == "" {
		return nil, vector.MissingConfig(name, "milvus.collection")
	}
	if timeout <= 0 {
		timeout = vector.DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cli, err := client.NewClient(ctx, client.Config{
		Address:  cfg.URI,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, vector.BackendError(err, name, "connecting to milvus")
	}
	return NewWithClient(cli, cfg.Collection, timeout), nil
}

// NewWithClient builds a backend over an existing client.
func NewWithClient(cli Client, collection string, timeout time.Duration) *Backend {
	if timeout <= 0 {
		timeout = vector.DefaultTimeout
	}
	return &Backend{cli: cli, collection: collection, timeout: timeout, life: vector.NewLifecycle(name)}
}

func (b *Backend) Name() string { return name }

// FiltersCategories reports native category filtering via JSON expressions.
func (b *Backend) FiltersCategories() bool { return true }

// Initialize creates, indexes and loads the collection.
func (b *Backend) Initialize(ctx context.Context, dimensions int) error {
	return b.life.Begin(dimensions, func() error {
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		exists, err := b.cli.HasCollection(ctx, b.collection)
		if err != nil {
			return vector.BackendError(err, name, "checking collection")
		}

		if exists {
			if err := b.checkDimensions(ctx, dimensions); err != nil {
				return err
			}
		} else {
			if err := b.create(ctx, dimensions); err != nil {
				return err
			}
		}

		if err := b.cli.LoadCollection(ctx, b.collection, false); err != nil {
			return vector.BackendError(err, name, "loading collection")
		}
		return nil
	})
}

func (b *Backend) create(ctx context.Context, dimensions int) error {
	schema := entity.NewSchema().
		WithName(b.collection).
		WithDescription("mnemo semantic memory").
		WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).
			WithIsPrimaryKey(true).WithMaxLength(maxIDLength)).
		WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dimensions))).
		WithField(entity.NewField().WithName(fieldMetadata).WithDataType(entity.FieldTypeJSON))

	if err := b.cli.CreateCollection(ctx, schema, shardCount); err != nil {
		return vector.BackendError(err, name, "creating collection "+b.collection)
	}

	idx, err := entity.NewIndexFlat(entity.L2)
	if err != nil {
		return vector.BackendError(err, name, "building index")
	}
	if err := b.cli.CreateIndex(ctx, b.collection, fieldEmbedding, idx, false); err != nil {
		return vector.BackendError(err, name, "creating index")
	}
	return nil
}

func (b *Backend) checkDimensions(ctx context.Context, dimensions int) error {
	coll, err := b.cli.DescribeCollection(ctx, b.collection)
	if err != nil {
		return vector.BackendError(err, name, "describing collection")
	}
	if coll.Schema == nil {
		return nil
	}
	for _, f := range coll.Schema.Fields {
		if f.Name != fieldEmbedding {
			continue
		}
		have, err := strconv.Atoi(f.TypeParams[entity.TypeParamDim])
		if err == nil && have != dimensions {
			return vector.DimensionMismatch(name, have, dimensions)
		}
	}
	return nil
}

// Upsert writes a single row.
func (b *Backend) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	dims, err := b.life.Ready()
	if err != nil {
		return err
	}
	if err := vector.ValidateUpsert(name, dims, id, embedding); err != nil {
		return err
	}
	metadata = vector.CanonicalMetadata(metadata)
	if len(id) > maxIDLength {
		return sigilerr.New(sigilerr.CodeVectorUpsertInvalid, "id exceeds milvus varchar limit",
			sigilerr.FieldBackend(name), sigilerr.Field("length", len(id)))
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeVectorMetadataInvalid, "marshalling metadata", sigilerr.FieldBackend(name))
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	_, err = b.cli.Upsert(ctx, b.collection, "",
		entity.NewColumnVarChar(fieldID, []string{id}),
		entity.NewColumnFloatVector(fieldEmbedding, dims, [][]float32{embedding}),
		entity.NewColumnJSONBytes(fieldMetadata, [][]byte{meta}),
	)
	if err != nil {
		return vector.BackendError(err, name, "upserting "+id)
	}
	return nil
}

// Search runs an L2 k-NN query with strong consistency, so preceding
// writes are visible. Milvus reports squared L2; distances are rooted to
// match the embedded backend.
func (b *Backend) Search(ctx context.Context, query []float32, topK int, filter *vector.Filter) ([]vector.Result, error) {
	dims, err := b.life.Ready()
	if err != nil {
		return nil, err
	}
	if err := vector.ValidateSearch(name, dims, query, topK); err != nil {
		return nil, err
	}

	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, vector.BackendError(err, name, "building search params")
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	res, err := b.cli.Search(ctx, b.collection, nil, filterExpr(filter), []string{fieldMetadata},
		[]entity.Vector{entity.FloatVector(query)}, fieldEmbedding, entity.L2, topK, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, vector.BackendError(err, name, "searching")
	}

	results := []vector.Result{}
	for _, rs := range res {
		if rs.Err != nil {
			return nil, vector.BackendError(rs.Err, name, "searching")
		}
		rows, err := decode(rs)
		if err != nil {
			return nil, err
		}
		results = append(results, rows...)
	}

	vector.SortResults(results)
	return vector.TopK(results, topK), nil
}

func decode(rs client.SearchResult) ([]vector.Result, error) {
	var metaCol *entity.ColumnJSONBytes
	if col := rs.Fields.GetColumn(fieldMetadata); col != nil {
		metaCol, _ = col.(*entity.ColumnJSONBytes)
	}

	out := make([]vector.Result, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		id, err := rs.IDs.GetAsString(i)
		if err != nil {
			return nil, vector.BackendError(err, name, "reading result id")
		}

		r := vector.Result{ID: id}
		if i < len(rs.Scores) {
			r.Distance = math.Sqrt(math.Max(0, float64(rs.Scores[i])))
		}

		if metaCol != nil && i < metaCol.Len() {
			raw := metaCol.Data()[i]
			if len(raw) > 0 && string(raw) != "{}" {
				if err := json.Unmarshal(raw, &r.Metadata); err != nil {
					return nil, sigilerr.Wrap(err, sigilerr.CodeVectorMetadataInvalid, "unmarshalling metadata",
						sigilerr.FieldBackend(name), sigilerr.Field("id", id))
				}
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Delete removes rows by primary key.
func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if _, err := b.life.Ready(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	expr := fieldID + " in " + quoteList(ids)
	if err := b.cli.Delete(ctx, b.collection, "", expr); err != nil {
		return vector.BackendError(err, name, "deleting")
	}
	return nil
}

// Count runs a strong count(*) query.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	if _, err := b.life.Ready(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	rs, err := b.cli.Query(ctx, b.collection, nil, "", []string{countField},
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return 0, vector.BackendError(err, name, "counting")
	}

	col, ok := rs.GetColumn(countField).(*entity.ColumnInt64)
	if !ok || col.Len() == 0 {
		return 0, sigilerr.New(sigilerr.CodeVectorBackendFailure, "count query returned no rows", sigilerr.FieldBackend(name))
	}
	return col.Data()[0], nil
}

// Close releases the client connection.
func (b *Backend) Close() error {
	if !b.life.Close() {
		return nil
	}
	return b.cli.Close()
}

// filterExpr compiles f into a Milvus boolean expression over the JSON
// metadata field.
func filterExpr(f *vector.Filter) string {
	if f.IsEmpty() {
		return ""
	}

	var clauses []string
	if len(f.Layers) > 0 {
		clauses = append(clauses, jsonKey(vector.MetaLayer)+" in "+quoteList(f.Layers))
	}
	if f.AgentID != "" {
		clauses = append(clauses, jsonKey(vector.MetaAgentID)+" == "+strconv.Quote(f.AgentID))
	}
	if len(f.Categories) > 0 {
		clauses = append(clauses, jsonKey(vector.MetaCategory)+" in "+quoteList(f.Categories))
	}
	return strings.Join(clauses, " && ")
}

func jsonKey(key string) string {
	return fieldMetadata + `["` + key + `"]`
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
