// Package memory is an in-process Store used by tests and by setups
// without a running Qdrant. Search is brute-force cosine similarity.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"ragchat/internal/vectorstore"
)

type collection struct {
	dimension int
	order     []string
	points    map[string]vectorstore.Point
}

// Store keeps collections in process memory.
type Store struct {
	mu          sync.RWMutex
	log         *slog.Logger
	collections map[string]*collection
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{log: log, collections: map[string]*collection{}}
}

// EnsureCollection creates the collection or, when the dimension changed,
// drops and recreates it losing all points.
func (s *Store) EnsureCollection(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d for collection %s", dimension, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if ok && col.dimension == dimension {
		return nil
	}
	if ok {
		s.log.Warn("collection dimension changed, recreating (all points lost)",
			"collection", name, "have", col.dimension, "want", dimension)
	}
	s.collections[name] = &collection{
		dimension: dimension,
		points:    map[string]vectorstore.Point{},
	}
	return nil
}

func (s *Store) Upsert(_ context.Context, name string, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("collection %s does not exist", name)
	}
	for _, p := range points {
		if len(p.Vector) != col.dimension {
			return fmt.Errorf("vector dimension %d does not match collection %s (%d)",
				len(p.Vector), name, col.dimension)
		}
		if _, exists := col.points[p.ID]; !exists {
			col.order = append(col.order, p.ID)
		}
		col.points[p.ID] = p
	}
	return nil
}

func (s *Store) GetByID(_ context.Context, name, id string) (*vectorstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	p, ok := col.points[id]
	if !ok {
		return nil, nil
	}
	return &vectorstore.Record{ID: p.ID, Payload: p.Payload}, nil
}

func (s *Store) Search(_ context.Context, name string, vector []float64, limit int) ([]vectorstore.ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	hits := make([]vectorstore.ScoredPoint, 0, len(col.order))
	for _, id := range col.order {
		p := col.points[id]
		hits = append(hits, vectorstore.ScoredPoint{
			ID:      p.ID,
			Score:   cosine(vector, p.Vector),
			Payload: p.Payload,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) Scroll(_ context.Context, name string, filter *vectorstore.Filter, limit int) ([]vectorstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	out := make([]vectorstore.Record, 0, limit)
	for _, id := range col.order {
		p := col.points[id]
		if filter != nil && p.Payload[filter.Key] != filter.Value {
			continue
		}
		out = append(out, vectorstore.Record{ID: p.ID, Payload: p.Payload})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) DeleteByID(_ context.Context, name string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return nil
	}
	for _, id := range ids {
		col.remove(id)
	}
	return nil
}

func (s *Store) DeleteByFilter(_ context.Context, name string, filter *vectorstore.Filter) error {
	if filter == nil {
		return fmt.Errorf("delete by filter requires a filter")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return nil
	}
	var doomed []string
	for id, p := range col.points {
		if p.Payload[filter.Key] == filter.Value {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		col.remove(id)
	}
	return nil
}

// DropCollection removes the collection and all points in it.
func (s *Store) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

// Count reports the number of points in a collection.
func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return 0
	}
	return len(col.points)
}

func (c *collection) remove(id string) {
	if _, ok := c.points[id]; !ok {
		return
	}
	delete(c.points, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
