package compat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func newTestEmbedder(t *testing.T, handler http.Handler) *Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("COMPAT_TEST_KEY", "secret")
	e, err := New(Config{BaseURL: srv.URL, APIKeyEnv: "COMPAT_TEST_KEY", MaxRetries: 1})
	require.NoError(t, err)
	return e
}

func TestNew_MissingCredential(t *testing.T) {
	t.Setenv("COMPAT_MISSING_KEY", "")
	_, err := New(Config{APIKeyEnv: "COMPAT_MISSING_KEY"})
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestEmbedOne_OpenAIShape(t *testing.T) {
	e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.5, 0.5}}},
		})
	}))

	v, err := e.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, v)
	assert.Equal(t, 2, e.Dimension())
}

func TestEmbedOne_NativeShape(t *testing.T) {
	e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1, 2, 3}})
	}))

	v, err := e.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, v)
}

func TestEmbedder_ConcurrentUse(t *testing.T) {
	e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{1, 0, 0}}},
		})
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.EmbedOne(context.Background(), "text")
			assert.NoError(t, err)
			if d := e.Dimension(); d != 0 {
				assert.Equal(t, 3, d)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, e.Dimension())
}
