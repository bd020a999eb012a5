package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zhiwen-go/internal/config"
)

func newTestClient(baseURL string, dims int) Client {
	return NewClient(config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "text-embedding-3-small",
		Dimensions: dims,
	})
}

func TestCreateEmbeddings_AlignsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, []string{"first", "second"}, req.Input)

		// 故意乱序返回，客户端必须按 index 还原顺序
		resp := map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float32{0.4, 0.5, 0.6}},
				{"index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	vectors, err := c.CreateEmbeddings(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, vectors[1])
}

func TestCreateEmbeddings_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	_, err := c.CreateEmbeddings(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.True(t, IsRateLimit(err))
}

func TestCreateEmbeddings_ServerErrorIsNotRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	_, err := c.CreateEmbeddings(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.False(t, IsRateLimit(err))
}

func TestCreateEmbeddings_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{0.1}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	_, err := c.CreateEmbeddings(context.Background(), []string{"one", "two"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 inputs")
}

func TestCreateEmbeddings_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{0.1, 0.2}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	_, err := c.CreateEmbeddings(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestCreateEmbedding_Single(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{1, 2, 3}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	vector, err := c.CreateEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vector)
}
