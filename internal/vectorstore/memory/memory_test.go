package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/vectorstore"
)

func TestUpsert_IdempotentByID(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))

	p := vectorstore.Point{ID: "a", Vector: []float64{1, 0}, Payload: map[string]any{"text": "first"}}
	require.NoError(t, s.Upsert(ctx, "docs", []vectorstore.Point{p}))

	p.Payload = map[string]any{"text": "second"}
	require.NoError(t, s.Upsert(ctx, "docs", []vectorstore.Point{p}))

	assert.Equal(t, 1, s.Count("docs"))
	recs, err := s.Scroll(ctx, "docs", nil, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "second", recs[0].Payload["text"])
}

func TestUpsert_RejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.EnsureCollection(ctx, "docs", 3))

	err := s.Upsert(ctx, "docs", []vectorstore.Point{{ID: "a", Vector: []float64{1, 0}}})
	assert.Error(t, err)
}

func TestEnsureCollection_DimensionChangeDropsPoints(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))
	require.NoError(t, s.Upsert(ctx, "docs", []vectorstore.Point{
		{ID: "a", Vector: []float64{1, 0}},
		{ID: "b", Vector: []float64{0, 1}},
	}))
	require.Equal(t, 2, s.Count("docs"))

	// Same dimension keeps points.
	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))
	assert.Equal(t, 2, s.Count("docs"))

	// New dimension recreates the collection.
	require.NoError(t, s.EnsureCollection(ctx, "docs", 4))
	assert.Equal(t, 0, s.Count("docs"))

	require.NoError(t, s.Upsert(ctx, "docs", []vectorstore.Point{
		{ID: "c", Vector: []float64{1, 0, 0, 0}},
	}))
	assert.Equal(t, 1, s.Count("docs"))
}

func TestSearch_RankedByCosineDescending(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))
	require.NoError(t, s.Upsert(ctx, "docs", []vectorstore.Point{
		{ID: "east", Vector: []float64{1, 0}},
		{ID: "north", Vector: []float64{0, 1}},
		{ID: "northeast", Vector: []float64{1, 1}},
	}))

	hits, err := s.Search(ctx, "docs", []float64{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "east", hits[0].ID)
	assert.Equal(t, "northeast", hits[1].ID)
	assert.Equal(t, "north", hits[2].ID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.GreaterOrEqual(t, hits[1].Score, hits[2].Score)
}

func TestSearch_MissingCollectionIsEmpty(t *testing.T) {
	s := NewStore(nil)
	hits, err := s.Search(context.Background(), "nope", []float64{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestScroll_EqualityFilter(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.EnsureCollection(ctx, "chats", 1))
	require.NoError(t, s.Upsert(ctx, "chats", []vectorstore.Point{
		{ID: "1", Vector: []float64{1}, Payload: map[string]any{"conversation_id": "c1"}},
		{ID: "2", Vector: []float64{1}, Payload: map[string]any{"conversation_id": "c2"}},
		{ID: "3", Vector: []float64{1}, Payload: map[string]any{"conversation_id": "c1"}},
	}))

	recs, err := s.Scroll(ctx, "chats", &vectorstore.Filter{Key: "conversation_id", Value: "c1"}, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, "3", recs[1].ID)
}

func TestDeleteByFilter(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.EnsureCollection(ctx, "chats", 1))
	require.NoError(t, s.Upsert(ctx, "chats", []vectorstore.Point{
		{ID: "1", Vector: []float64{1}, Payload: map[string]any{"conversation_id": "c1"}},
		{ID: "2", Vector: []float64{1}, Payload: map[string]any{"conversation_id": "c2"}},
	}))

	require.NoError(t, s.DeleteByFilter(ctx, "chats", &vectorstore.Filter{Key: "conversation_id", Value: "c1"}))
	assert.Equal(t, 1, s.Count("chats"))

	recs, err := s.Scroll(ctx, "chats", nil, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].ID)
}

func TestDeleteByID_MissingCollectionNoop(t *testing.T) {
	s := NewStore(nil)
	assert.NoError(t, s.DeleteByID(context.Background(), "nope", "x"))
}

func TestDropCollection(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.EnsureCollection(ctx, "chats", 1))
	require.NoError(t, s.Upsert(ctx, "chats", []vectorstore.Point{
		{ID: "1", Vector: []float64{1}},
	}))

	require.NoError(t, s.DropCollection(ctx, "chats"))
	assert.Equal(t, 0, s.Count("chats"))

	// Dropping again is a no-op; recreating works.
	require.NoError(t, s.DropCollection(ctx, "chats"))
	require.NoError(t, s.EnsureCollection(ctx, "chats", 1))
}
