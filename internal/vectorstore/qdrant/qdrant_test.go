package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/vectorstore"
)

func newTestStore(t *testing.T, handler http.Handler) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStore(Config{URL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 1}, nil)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestSearch_LegacyConvention(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/docs/points/search", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "vector")
		writeJSON(w, map[string]any{
			"result": []map[string]any{
				{"id": "a", "score": 0.9, "payload": map[string]any{"text": "hello"}},
				{"id": "b", "score": 0.5, "payload": map[string]any{"text": "bye"}},
			},
		})
	}))

	hits, err := s.Search(context.Background(), "docs", []float64{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, 0.9, hits[0].Score)
	assert.Equal(t, "hello", hits[0].Payload["text"])
}

func TestSearch_FallsBackToQueryConvention(t *testing.T) {
	var searchCalls, queryCalls atomic.Int32
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/docs/points/search":
			searchCalls.Add(1)
			http.NotFound(w, r)
		case "/collections/docs/points/query":
			queryCalls.Add(1)
			writeJSON(w, map[string]any{
				"result": map[string]any{
					"points": []map[string]any{
						{"id": "a", "score": 0.8, "payload": map[string]any{"text": "hi"}},
					},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ctx := context.Background()
	hits, err := s.Search(ctx, "docs", []float64{1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)

	// The winning convention is remembered: no further probe of the old
	// endpoint on the next call.
	_, err = s.Search(ctx, "docs", []float64{1}, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), searchCalls.Load())
	assert.Equal(t, int32(2), queryCalls.Load())
}

func TestSearch_MissingCollectionIsEmpty(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	hits, err := s.Search(context.Background(), "ghost", []float64{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEnsureCollection_CreatesWhenAbsent(t *testing.T) {
	var created atomic.Bool
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/docs", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			http.NotFound(w, r)
		case http.MethodPut:
			var body struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, 384, body.Vectors.Size)
			assert.Equal(t, "Cosine", body.Vectors.Distance)
			created.Store(true)
			writeJSON(w, map[string]any{"result": true})
		}
	}))

	require.NoError(t, s.EnsureCollection(context.Background(), "docs", 384))
	assert.True(t, created.Load())
}

func TestEnsureCollection_RecreatesOnDimensionMismatch(t *testing.T) {
	var deleted, recreated atomic.Bool
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, map[string]any{
				"result": map[string]any{
					"config": map[string]any{
						"params": map[string]any{
							"vectors": map[string]any{"size": 384},
						},
					},
				},
			})
		case http.MethodDelete:
			deleted.Store(true)
			writeJSON(w, map[string]any{"result": true})
		case http.MethodPut:
			recreated.Store(true)
			writeJSON(w, map[string]any{"result": true})
		}
	}))

	require.NoError(t, s.EnsureCollection(context.Background(), "docs", 768))
	assert.True(t, deleted.Load())
	assert.True(t, recreated.Load())
}

func TestEnsureCollection_NoopWhenDimensionMatches(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		writeJSON(w, map[string]any{
			"result": map[string]any{
				"config": map[string]any{
					"params": map[string]any{
						"vectors": map[string]any{"size": 768},
					},
				},
			},
		})
	}))

	require.NoError(t, s.EnsureCollection(context.Background(), "docs", 768))
}

func TestEnsureCollection_AuthFailureDoesNotRecreate(t *testing.T) {
	var destructive atomic.Bool
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		case http.MethodDelete, http.MethodPut:
			destructive.Store(true)
			writeJSON(w, map[string]any{"result": true})
		}
	}))

	err := s.EnsureCollection(context.Background(), "docs", 768)
	require.Error(t, err)
	assert.False(t, destructive.Load(), "an unreadable collection must never be deleted or recreated")
}

func TestDropCollection(t *testing.T) {
	var deleted atomic.Bool
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/collections/chats", r.URL.Path)
		deleted.Store(true)
		writeJSON(w, map[string]any{"result": true})
	}))

	require.NoError(t, s.DropCollection(context.Background(), "chats"))
	assert.True(t, deleted.Load())
}

func TestDropCollection_MissingIsNoop(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	assert.NoError(t, s.DropCollection(context.Background(), "ghost"))
}

func TestScroll_FilterBodyAndDecode(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/chats/points/scroll", r.URL.Path)
		var body struct {
			Filter struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value any `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
			Limit int `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Filter.Must, 1)
		assert.Equal(t, "conversation_id", body.Filter.Must[0].Key)
		assert.Equal(t, "c1", body.Filter.Must[0].Match.Value)
		assert.Equal(t, 50, body.Limit)
		writeJSON(w, map[string]any{
			"result": map[string]any{
				"points": []map[string]any{
					{"id": "m1", "payload": map[string]any{"query": "hi"}},
				},
			},
		})
	}))

	recs, err := s.Scroll(context.Background(), "chats",
		&vectorstore.Filter{Key: "conversation_id", Value: "c1"}, 50)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "m1", recs[0].ID)
	assert.Equal(t, "hi", recs[0].Payload["query"])
}

func TestRetry_TransientErrorThenSuccess(t *testing.T) {
	var calls atomic.Int32
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"result": []map[string]any{}})
	}))

	hits, err := s.Search(context.Background(), "docs", []float64{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDeleteByFilter_RequestShape(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/chats/points/delete", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("wait"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "filter")
		writeJSON(w, map[string]any{"result": true})
	}))

	err := s.DeleteByFilter(context.Background(), "chats",
		&vectorstore.Filter{Key: "conversation_id", Value: "c9"})
	require.NoError(t, err)
}
