// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package qdrant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sigil-dev/mnemo/internal/vector"
	"github.com/sigil-dev/mnemo/internal/vector/qdrant"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// --- Mocks ---

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertErr  error
	deleteReq  *pb.DeletePoints
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
	count      uint64
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleteReq = in
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	return &pb.CountResponse{Result: &pb.CountResult{Count: m.count}}, nil
}

type mockCollections struct {
	existing  []string
	size      uint64
	listErr   error
	createReq *pb.CreateCollection
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	resp := &pb.ListCollectionsResponse{}
	for _, n := range m.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: n})
	}
	return resp, nil
}

func (m *mockCollections) Get(_ context.Context, _ *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	return &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{
		Config: &pb.CollectionConfig{Params: &pb.CollectionParams{
			VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: m.size, Distance: pb.Distance_Cosine},
			}},
		}},
	}}, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.createReq = in
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func scored(recordID string, score float32, extra map[string]*pb.Value) *pb.ScoredPoint {
	payload := map[string]*pb.Value{"_record_id": {Kind: &pb.Value_StringValue{StringValue: recordID}}}
	for k, v := range extra {
		payload[k] = v
	}
	return &pb.ScoredPoint{Score: score, Payload: payload}
}

func newBackend(t *testing.T, points *mockPoints, cols *mockCollections) *qdrant.Backend {
	t.Helper()
	b := qdrant.NewWithClients(points, cols, "test", time.Second)
	require.NoError(t, b.Initialize(context.Background(), 3))
	return b
}

// --- Tests ---

func TestInitialize_CreatesCosineCollection(t *testing.T) {
	cols := &mockCollections{}
	newBackend(t, &mockPoints{}, cols)

	require.NotNil(t, cols.createReq)
	assert.Equal(t, "test", cols.createReq.GetCollectionName())
	params := cols.createReq.GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(3), params.GetSize())
	assert.Equal(t, pb.Distance_Cosine, params.GetDistance())
}

func TestInitialize_ExistingCollection(t *testing.T) {
	cols := &mockCollections{existing: []string{"test"}, size: 3}
	newBackend(t, &mockPoints{}, cols)
	assert.Nil(t, cols.createReq)
}

func TestInitialize_DimensionMismatch(t *testing.T) {
	cols := &mockCollections{existing: []string{"test"}, size: 768}
	b := qdrant.NewWithClients(&mockPoints{}, cols, "test", time.Second)

	err := b.Initialize(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeVectorDimensionsMismatch))
	assert.Equal(t, 768, sigilerr.FieldsOf(err)["existing_dimensions"])
}

func TestInitialize_ListError(t *testing.T) {
	cols := &mockCollections{listErr: errors.New("connection refused")}
	b := qdrant.NewWithClients(&mockPoints{}, cols, "test", time.Second)

	err := b.Initialize(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, sigilerr.IsUpstreamFailure(err))
}

func TestUpsert_MapsIDAndPayload(t *testing.T) {
	points := &mockPoints{}
	b := newBackend(t, points, &mockCollections{})

	err := b.Upsert(context.Background(), "mem-1", []float32{1, 0, 0}, map[string]any{
		"layer": "episodic",
		"n":     3,
		"tags":  []any{"a", "b"},
	})
	require.NoError(t, err)

	require.Len(t, points.upsertReq.GetPoints(), 1)
	p := points.upsertReq.GetPoints()[0]
	assert.NotEmpty(t, p.GetId().GetUuid())
	assert.NotEqual(t, "mem-1", p.GetId().GetUuid())
	assert.Equal(t, "mem-1", p.GetPayload()["_record_id"].GetStringValue())
	assert.Equal(t, "episodic", p.GetPayload()["layer"].GetStringValue())
	assert.Equal(t, int64(3), p.GetPayload()["n"].GetIntegerValue())
	assert.Len(t, p.GetPayload()["tags"].GetListValue().GetValues(), 2)
	assert.True(t, points.upsertReq.GetWait())

	// Same record id maps to the same point id.
	first := p.GetId().GetUuid()
	require.NoError(t, b.Upsert(context.Background(), "mem-1", []float32{0, 1, 0}, nil))
	assert.Equal(t, first, points.upsertReq.GetPoints()[0].GetId().GetUuid())
}

func TestUpsert_Validation(t *testing.T) {
	b := newBackend(t, &mockPoints{}, &mockCollections{})

	err := b.Upsert(context.Background(), "x", []float32{1, 0}, nil)
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestSearch_ConvertsScoresAndFilter(t *testing.T) {
	points := &mockPoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		scored("b", 0.5, nil),
		scored("a", 0.9, map[string]*pb.Value{"layer": {Kind: &pb.Value_StringValue{StringValue: "episodic"}}}),
	}}}
	b := newBackend(t, points, &mockCollections{})

	filter := &vector.Filter{Layers: []string{"episodic", "semantic"}, AgentID: "alice", Categories: []string{"work"}}
	results, err := b.Search(context.Background(), []float32{0.9, 0.1, 0}, 2, filter)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 0.1, results[0].Distance, 1e-6)
	assert.Equal(t, "episodic", results[0].Metadata["layer"])
	assert.NotContains(t, results[0].Metadata, "_record_id")
	assert.Equal(t, "b", results[1].ID)
	assert.Nil(t, results[1].Metadata)

	req := points.searchReq
	assert.Equal(t, uint64(2), req.GetLimit())
	must := req.GetFilter().GetMust()
	require.Len(t, must, 3)
	assert.Equal(t, "layer", must[0].GetField().GetKey())
	assert.Equal(t, []string{"episodic", "semantic"}, must[0].GetField().GetMatch().GetKeywords().GetStrings())
	assert.Equal(t, "alice", must[1].GetField().GetMatch().GetKeyword())
	assert.Equal(t, []string{"work"}, must[2].GetField().GetMatch().GetKeywords().GetStrings())
	assert.True(t, vector.FiltersCategories(b))
}

func TestSearch_NoFilter(t *testing.T) {
	points := &mockPoints{searchResp: &pb.SearchResponse{}}
	b := newBackend(t, points, &mockCollections{})

	results, err := b.Search(context.Background(), []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Nil(t, points.searchReq.GetFilter())
}

func TestSearch_DeadlineIsTimeout(t *testing.T) {
	points := &mockPoints{searchErr: status.Error(codes.DeadlineExceeded, "deadline")}
	b := newBackend(t, points, &mockCollections{})

	_, err := b.Search(context.Background(), []float32{1, 0, 0}, 1, nil)
	require.Error(t, err)
	assert.True(t, sigilerr.IsTimeout(err))
}

func TestSearch_UnavailableIsBackendFailure(t *testing.T) {
	points := &mockPoints{searchErr: status.Error(codes.Unavailable, "down")}
	b := newBackend(t, points, &mockCollections{})

	_, err := b.Search(context.Background(), []float32{1, 0, 0}, 1, nil)
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeVectorBackendFailure))
	assert.Equal(t, "qdrant", sigilerr.FieldsOf(err)["backend"])
}

func TestDeleteAndCount(t *testing.T) {
	points := &mockPoints{count: 7}
	b := newBackend(t, points, &mockCollections{})

	require.NoError(t, b.Delete(context.Background(), []string{"a", "b"}))
	assert.Len(t, points.deleteReq.GetPoints().GetPoints().GetIds(), 2)

	n, err := b.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestLifecycle(t *testing.T) {
	b := qdrant.NewWithClients(&mockPoints{}, &mockCollections{}, "test", 0)

	_, err := b.Count(context.Background())
	assert.True(t, sigilerr.IsLifecycleError(err))

	require.NoError(t, b.Initialize(context.Background(), 3))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = b.Search(context.Background(), []float32{1, 0, 0}, 1, nil)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeVectorLifecycleClosed))
}

func TestFactory_MissingSubConfig(t *testing.T) {
	_, err := vector.New(vector.Config{Provider: "qdrant"})
	require.Error(t, err)
	assert.True(t, sigilerr.IsConfigError(err))
}

func TestFactory_MissingURL(t *testing.T) {
	_, err := vector.New(vector.Config{Provider: "qdrant", Qdrant: &vector.QdrantConfig{}})
	require.Error(t, err)
	assert.True(t, sigilerr.IsConfigError(err))
}

func TestFactory_MissingCollection(t *testing.T) {
	_, err := vector.New(vector.Config{
		Provider: "qdrant",
		Qdrant:   &vector.QdrantConfig{URL: "http://127.0.0.1:1"},
	})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeVectorConfigInvalid))
	assert.Equal(t, "qdrant.collection", sigilerr.FieldsOf(err)["field"])
}

func TestFactory_LazyDial(t *testing.T) {
	b, err := vector.New(vector.Config{
		Provider: "qdrant",
		Qdrant:   &vector.QdrantConfig{URL: "http://127.0.0.1:1", Collection: "mnemo", APIKey: "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, "qdrant", b.Name())
	require.NoError(t, b.Close())
}

func TestUpsert_FilterKeysStoredAsKeywords(t *testing.T) {
	points := &mockPoints{}
	b := newBackend(t, points, &mockCollections{})

	require.NoError(t, b.Upsert(context.Background(), "mem-1", []float32{1, 0, 0}, map[string]any{
		"layer":    1,
		"category": true,
		"n":        3,
	}))

	payload := points.upsertReq.GetPoints()[0].GetPayload()
	assert.Equal(t, "1", payload["layer"].GetStringValue())
	assert.Equal(t, "true", payload["category"].GetStringValue())
	assert.Equal(t, int64(3), payload["n"].GetIntegerValue(), "other keys keep their type")
}
