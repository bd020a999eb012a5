package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zhiwen-go/internal/config"
	"zhiwen-go/internal/model"
)

type searchFixture struct {
	client    *fakeEmbeddingClient
	cache     *fakeEmbeddingCache
	index     *fakeVectorIndex
	chunkRepo *fakeChunkRepo
	docRepo   *fakeDocumentRepo
	svc       SearchService
}

func newSearchFixture(dims int) *searchFixture {
	f := &searchFixture{
		client: &fakeEmbeddingClient{},
		cache:  newFakeEmbeddingCache(),
		index:  &fakeVectorIndex{},
		chunkRepo: newFakeChunkRepo(
			model.Chunk{ID: "c0", DocumentID: "d0", ChunkIndex: 0, Text: "第一段内容", StartChar: 0, EndChar: 10},
			model.Chunk{ID: "c1", DocumentID: "d1", ChunkIndex: 3, Text: "第二段内容", StartChar: 40, EndChar: 50},
		),
		docRepo: newFakeDocumentRepo(
			model.Document{ID: "d0", CollectionID: "coll-1", Name: "产品手册"},
			model.Document{ID: "d1", CollectionID: "coll-1", Name: "操作指南"},
		),
	}
	embedSvc := NewEmbeddingService(config.EmbeddingConfig{
		BatchSize: 100, BatchIntervalMs: 1, MaxRetries: 1, BackoffSeconds: 1, BackoffCapSecs: 1,
	}, f.client, f.chunkRepo, f.index)
	f.svc = NewSearchService(config.EmbeddingConfig{Dimensions: dims},
		embedSvc, f.cache, f.index, f.chunkRepo, f.docRepo)
	return f
}

func (f *searchFixture) withHits(hits ...model.ChunkHit) *searchFixture {
	f.index.hits = hits
	return f
}

func hitFor(chunkID, docID string, chunkIndex int, similarity float64) model.ChunkHit {
	return model.ChunkHit{
		ChunkID: chunkID, DocumentID: docID, CollectionID: "coll-1",
		ChunkIndex: chunkIndex, Text: "命中文本", Similarity: similarity,
	}
}

func TestSearch_EmptyQueryFailsBeforeAnyProviderCall(t *testing.T) {
	f := newSearchFixture(0)

	_, err := f.svc.Search(context.Background(), "", model.VectorFilter{}, 10, 0.0)
	require.Error(t, err)
	assert.Zero(t, f.cache.gets)
	assert.Empty(t, f.client.singleCalls)
	assert.Zero(t, f.index.searchCalls)
}

func TestSearch_LimitOutOfRangeRejected(t *testing.T) {
	f := newSearchFixture(0)

	for _, limit := range []int{0, -1, 101} {
		_, err := f.svc.Search(context.Background(), "问题", model.VectorFilter{}, limit, 0.5)
		require.Error(t, err, "limit=%d 应当被拒绝", limit)
	}
	assert.Empty(t, f.client.singleCalls)
}

func TestSearch_ThresholdOutOfRangeRejected(t *testing.T) {
	f := newSearchFixture(0)

	for _, threshold := range []float64{-0.1, 1.01} {
		_, err := f.svc.Search(context.Background(), "问题", model.VectorFilter{}, 10, threshold)
		require.Error(t, err, "threshold=%f 应当被拒绝", threshold)
	}
	assert.Empty(t, f.client.singleCalls)
}

func TestSearch_CacheHitSkipsEmbedding(t *testing.T) {
	f := newSearchFixture(0).withHits(hitFor("c0", "d0", 0, 0.9))
	cachedVector := []float32{5, 1}
	f.cache.entries["什么是产品"] = cachedVector

	results, err := f.svc.Search(context.Background(), "什么是产品", model.VectorFilter{}, 10, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Empty(t, f.client.singleCalls)
	assert.Equal(t, cachedVector, f.index.lastVector)
}

func TestSearch_CacheMissEmbedsAndStores(t *testing.T) {
	f := newSearchFixture(0).withHits(hitFor("c0", "d0", 0, 0.9))

	_, err := f.svc.Search(context.Background(), "什么是产品", model.VectorFilter{}, 10, 0.0)
	require.NoError(t, err)

	assert.Equal(t, []string{"什么是产品"}, f.client.singleCalls)
	assert.Equal(t, 1, f.cache.sets)
	assert.Equal(t, fakeVectorFor("什么是产品"), f.index.lastVector)
}

func TestSearch_CacheFailureDegradesToDirectEmbedding(t *testing.T) {
	f := newSearchFixture(0).withHits(hitFor("c0", "d0", 0, 0.9))
	f.cache.getErr = errors.New("redis down")
	f.cache.setErr = errors.New("redis down")

	results, err := f.svc.Search(context.Background(), "什么是产品", model.VectorFilter{}, 10, 0.0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, []string{"什么是产品"}, f.client.singleCalls)
}

func TestSearch_PassesScopeAndLimitThrough(t *testing.T) {
	f := newSearchFixture(0)
	scope := model.VectorFilter{CollectionID: "coll-1", DocumentIDs: []string{"d0"}}

	_, err := f.svc.Search(context.Background(), "问题", scope, 7, 0.2)
	require.NoError(t, err)
	assert.Equal(t, scope, f.index.lastFilter)
	assert.Equal(t, 7, f.index.lastK)
}

func TestSearchByEmbedding_DimensionMismatchRejected(t *testing.T) {
	f := newSearchFixture(3)

	_, err := f.svc.SearchByEmbedding(context.Background(), []float32{1, 2}, model.VectorFilter{}, 10, 0.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "维度")
	assert.Zero(t, f.index.searchCalls)
}

func TestSearchByEmbedding_AssemblesChunkAndDocument(t *testing.T) {
	f := newSearchFixture(0).withHits(
		hitFor("c0", "d0", 0, 0.9),
		hitFor("c1", "d1", 3, 0.5),
	)

	results, err := f.svc.SearchByEmbedding(context.Background(), []float32{1, 1}, model.VectorFilter{}, 10, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "c0", first.Chunk.ID)
	assert.Equal(t, "第一段内容", first.Chunk.Text)
	assert.Equal(t, "产品手册", first.Document.Name)
	assert.Equal(t, 0.9, first.SimilarityScore)
	assert.InDelta(t, 1-first.SimilarityScore, first.Distance, 1e-9)

	second := results[1]
	assert.Equal(t, "操作指南", second.Document.Name)
	assert.GreaterOrEqual(t, first.SimilarityScore, second.SimilarityScore)
}

func TestSearchByEmbedding_DropsHitsBelowThreshold(t *testing.T) {
	f := newSearchFixture(0).withHits(
		hitFor("c0", "d0", 0, 0.9),
		hitFor("c1", "d1", 3, 0.4),
	)

	results, err := f.svc.SearchByEmbedding(context.Background(), []float32{1, 1}, model.VectorFilter{}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c0", results[0].Chunk.ID)
}

func TestSearchByEmbedding_SkipsOrphanHits(t *testing.T) {
	f := newSearchFixture(0).withHits(
		hitFor("c-ghost", "d0", 9, 0.95),
		hitFor("c0", "d0", 0, 0.8),
	)

	results, err := f.svc.SearchByEmbedding(context.Background(), []float32{1, 1}, model.VectorFilter{}, 10, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c0", results[0].Chunk.ID)
}

func TestSearchByEmbedding_NoHitsReturnsEmpty(t *testing.T) {
	f := newSearchFixture(0)

	results, err := f.svc.SearchByEmbedding(context.Background(), []float32{1, 1}, model.VectorFilter{}, 10, 0.0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
