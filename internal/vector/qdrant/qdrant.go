// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package qdrant implements the remote vector backend on Qdrant's gRPC API.
package qdrant

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const name = "qdrant"

// idNamespace seeds the deterministic UUIDs derived from record ids.
var idNamespace = uuid.MustParse("5f0c4f5e-8f63-4d39-9d8f-7a1b0b7f6a51")

func init() {
	vector.RegisterBackend(name, func(cfg vector.Config) (vector.Backend, error) {
		if cfg.Qdrant == nil {
			return nil, vector.MissingConfig(name, "qdrant")
		}
		return New(*cfg.Qdrant, cfg.CallTimeout())
	})
}

var (
	_ vector.Backend          = (*Backend)(nil)
	_ vector.CategoryFilterer = (*Backend)(nil)
)

// Backend stores vectors as Qdrant points in a cosine collection.
type Backend struct {
	conn        io.Closer
	points      PointsAPI
	collections CollectionsAPI
	collection  string
	timeout     time.Duration
	life        *vector.Lifecycle
}

// New dials Qdrant lazily; connection failures surface on first use.
func New(cfg vector.QdrantConfig, timeout time.Duration) (*Backend, error) {
	if cfg.URL == "" {
		return nil, vector.MissingConfig(name, "qdrant.url")
	}
	if cfg.Collection == "" {
		return nil, vector.MissingConfig(name, "qdrant.collection")
	}

	conn, err := dial(cfg.URL, cfg.APIKey)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeVectorConfigInvalid, "dialing qdrant",
			sigilerr.FieldBackend(name), sigilerr.Field("url", cfg.URL))
	}

	b := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg.Collection, timeout)
	b.conn = conn
	return b, nil
}

// NewWithClients builds a backend over existing service clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string, timeout time.Duration) *Backend {
	if timeout <= 0 {
		timeout = vector.DefaultTimeout
	}
	return &Backend{
		points:      points,
		collections: collections,
		collection:  collection,
		timeout:     timeout,
		life:        vector.NewLifecycle(name),
	}
}

func (b *Backend) Name() string { return name }

// FiltersCategories reports native category filtering via payload match.
func (b *Backend) FiltersCategories() bool { return true }

// Initialize creates the collection when missing and checks the vector size
// of an existing one.
func (b *Backend) Initialize(ctx context.Context, dimensions int) error {
	return b.life.Begin(dimensions, func() error {
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		list, err := b.collections.List(ctx, &pb.ListCollectionsRequest{})
		if err != nil {
			return b.rpcError(err, "listing collections")
		}
		for _, c := range list.GetCollections() {
			if c.GetName() == b.collection {
				return b.checkSize(ctx, dimensions)
			}
		}

		_, err = b.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: b.collection,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(dimensions),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return b.rpcError(err, "creating collection "+b.collection)
		}
		return nil
	})
}

func (b *Backend) checkSize(ctx context.Context, dimensions int) error {
	info, err := b.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: b.collection})
	if err != nil {
		return b.rpcError(err, "reading collection "+b.collection)
	}

	size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != 0 && int(size) != dimensions {
		return vector.DimensionMismatch(name, int(size), dimensions)
	}
	return nil
}

// Upsert writes one point, waiting for the write to be applied.
func (b *Backend) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	dims, err := b.life.Ready()
	if err != nil {
		return err
	}
	if err := vector.ValidateUpsert(name, dims, id, embedding); err != nil {
		return err
	}
	metadata = vector.CanonicalMetadata(metadata)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	wait := true
	_, err = b.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: b.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: pointID(id),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: embedding},
				},
			},
			Payload: toPayload(id, metadata),
		}},
	})
	if err != nil {
		return b.rpcError(err, "upserting point "+id)
	}
	return nil
}

// Search runs a filtered k-NN query. Scores are cosine similarities.
func (b *Backend) Search(ctx context.Context, query []float32, topK int, filter *vector.Filter) ([]vector.Result, error) {
	dims, err := b.life.Ready()
	if err != nil {
		return nil, err
	}
	if err := vector.ValidateSearch(name, dims, query, topK); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.points.Search(ctx, &pb.SearchPoints{
		CollectionName: b.collection,
		Vector:         query,
		Limit:          uint64(topK),
		Filter:         toFilter(filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, b.rpcError(err, "searching points")
	}

	results := make([]vector.Result, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		id, meta := fromPayload(p.GetPayload())
		if id == "" {
			id = p.GetId().GetUuid()
		}
		results = append(results, vector.Result{
			ID:       id,
			Distance: 1 - float64(p.GetScore()),
			Metadata: meta,
		})
	}

	vector.SortResults(results)
	return vector.TopK(results, topK), nil
}

// Delete removes points by record id.
func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if _, err := b.life.Ready(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	pids := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	wait := true
	_, err := b.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: b.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pids},
			},
		},
	})
	if err != nil {
		return b.rpcError(err, "deleting points")
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	if _, err := b.life.Ready(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	exact := true
	resp, err := b.points.Count(ctx, &pb.CountPoints{CollectionName: b.collection, Exact: &exact})
	if err != nil {
		return 0, b.rpcError(err, "counting points")
	}
	return int64(resp.GetResult().GetCount()), nil
}

// Close closes the gRPC connection.
func (b *Backend) Close() error {
	if !b.life.Close() || b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

func (b *Backend) rpcError(err error, op string) error {
	if status.Code(err) == codes.DeadlineExceeded {
		return vector.TimeoutError(err, name, op)
	}
	return vector.BackendError(err, name, op)
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{
		PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewSHA1(idNamespace, []byte(id)).String()},
	}
}

func toFilter(f *vector.Filter) *pb.Filter {
	if f.IsEmpty() {
		return nil
	}

	var must []*pb.Condition
	if len(f.Layers) > 0 {
		must = append(must, matchAny(vector.MetaLayer, f.Layers))
	}
	if f.AgentID != "" {
		must = append(must, matchKeyword(vector.MetaAgentID, f.AgentID))
	}
	if len(f.Categories) > 0 {
		must = append(must, matchAny(vector.MetaCategory, f.Categories))
	}
	return &pb.Filter{Must: must}
}

func matchKeyword(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func matchAny(key string, values []string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{MatchValue: &pb.Match_Keywords{
					Keywords: &pb.RepeatedStrings{Strings: values},
				}},
			},
		},
	}
}
