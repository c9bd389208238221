package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedder(t *testing.T, handler http.Handler) *Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Model: "test-model"})
}

func TestEmbedOne_DecodesAndLearnsDimension(t *testing.T) {
	e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2, 0.3}})
	}))

	assert.Equal(t, 0, e.Dimension())
	v, err := e.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, v)
	assert.Equal(t, 3, e.Dimension())
}

func TestEmbedder_ConcurrentUse(t *testing.T) {
	e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1, 0, 0, 0}})
	}))

	// One embedder shared by parallel ingestion jobs: the lazily learned
	// dimension must stay consistent under concurrent reads and writes.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.EmbedOne(context.Background(), "text")
			assert.NoError(t, err)
			if d := e.Dimension(); d != 0 {
				assert.Equal(t, 4, d)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, e.Dimension())
}

func TestEmbedOne_BackendErrorSurfaced(t *testing.T) {
	e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))

	_, err := e.EmbedOne(context.Background(), "hello")
	assert.Error(t, err)
}
