package vectorstore

import "context"

// Point is a single stored record: id, vector and an arbitrary payload map.
// Upserting an existing id overwrites the point in place.
type Point struct {
	ID      string
	Vector  []float64
	Payload map[string]any
}

// ScoredPoint is a search hit ordered by descending cosine similarity.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Record is a point fetched without its vector.
type Record struct {
	ID      string
	Payload map[string]any
}

// Filter matches points whose payload field Key equals Value. A single
// equality match is the only filtering the backend contract offers; there
// is no secondary index, so filtered reads are bounded linear scans.
type Filter struct {
	Key   string
	Value any
}

// Store is a uniform gateway over the vector backend's collections.
//
// Callers that need ordering (recency, timestamps) sort the page returned
// by Scroll themselves; correctness is therefore only guaranteed within
// that page. This is a documented scalability limit of the backend
// contract, not a defect of an implementation.
type Store interface {
	// EnsureCollection gets or creates a collection with the given vector
	// dimension. When an existing collection was provisioned with a
	// different dimension it is deleted and recreated, losing all prior
	// points. Implementations log this destructive path, never absorb
	// it silently.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert writes points idempotently by id.
	Upsert(ctx context.Context, collection string, points []Point) error

	// GetByID fetches one point's payload. A missing point or collection
	// yields (nil, nil).
	GetByID(ctx context.Context, collection, id string) (*Record, error)

	// Search returns up to limit hits ranked by descending cosine
	// similarity. A missing collection yields an empty result, not an
	// error.
	Search(ctx context.Context, collection string, vector []float64, limit int) ([]ScoredPoint, error)

	// Scroll fetches up to limit points, optionally restricted by one
	// equality filter. A missing collection yields an empty result.
	Scroll(ctx context.Context, collection string, filter *Filter, limit int) ([]Record, error)

	// DeleteByID removes points by id.
	DeleteByID(ctx context.Context, collection string, ids ...string) error

	// DeleteByFilter removes every point matching the filter.
	DeleteByFilter(ctx context.Context, collection string, filter *Filter) error

	// DropCollection removes a whole collection and everything in it.
	// Dropping a missing collection is a no-op.
	DropCollection(ctx context.Context, collection string) error
}
