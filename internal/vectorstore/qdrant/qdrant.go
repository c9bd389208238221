// Package qdrant is a REST gateway to a Qdrant vector backend. It hides
// API-version differences behind an ordered chain of search call
// conventions and provisions collections by dimension.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Config configures the Qdrant gateway.
type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// Store talks to Qdrant over its REST API. A single shared HTTP client
// serves all collections; per-call deadlines come from the client timeout
// and the caller's context.
type Store struct {
	url        string
	apiKey     string
	client     *http.Client
	log        *slog.Logger
	maxRetries int

	// searchMode remembers which call convention the backend accepted.
	modeMu     sync.Mutex
	searchMode int

	// ensureMu serializes the destructive recreate path per collection so
	// a racing upsert cannot interleave with a dimension migration.
	ensureMu sync.Mutex
	colMu    map[string]*sync.Mutex
}

var _ vectorstore.Store = (*Store)(nil)

// NewStore creates a gateway to the Qdrant instance at cfg.URL.
func NewStore(cfg Config, log *slog.Logger) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: timeout},
		log:        log,
		maxRetries: retries,
		searchMode: -1,
		colMu:      map[string]*sync.Mutex{},
	}
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection gets or creates the collection. An existing collection
// with a different vector size is deleted and recreated, losing all points
// in it; the event is logged at warning level.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d for collection %s", dimension, name)
	}
	mu := s.collectionLock(name)
	mu.Lock()
	defer mu.Unlock()

	var info collectionInfo
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(name), nil, &info)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusNotFound:
		return s.createCollection(ctx, name, dimension)
	case status >= 300:
		// Anything but a readable collection must not reach the
		// destructive recreate below.
		return &domain.BackendError{Op: "get collection " + name, Err: fmt.Errorf("status %d", status)}
	case info.Result.Config.Params.Vectors.Size == dimension:
		return nil
	}

	s.log.Warn("collection dimension changed, recreating (all points lost)",
		"collection", name,
		"have", info.Result.Config.Params.Vectors.Size,
		"want", dimension)
	if _, err := s.do(ctx, http.MethodDelete, s.collectionURL(name), nil, nil); err != nil {
		return err
	}
	return s.createCollection(ctx, name, dimension)
}

func (s *Store) createCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, err := s.do(ctx, http.MethodPut, s.collectionURL(name), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return &domain.BackendError{Op: "create collection " + name, Err: fmt.Errorf("status %d", status)}
	}
	return nil
}

// Upsert writes points idempotently by id.
func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	payload := make([]map[string]any, len(points))
	for i, p := range points {
		payload[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": payload}
	status, err := s.do(ctx, http.MethodPut, s.collectionURL(collection)+"/points?wait=true", body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return &domain.BackendError{Op: "upsert into " + collection, Err: fmt.Errorf("status %d", status)}
	}
	return nil
}

// GetByID fetches one point's payload; a missing point or collection
// yields (nil, nil).
func (s *Store) GetByID(ctx context.Context, collection, id string) (*vectorstore.Record, error) {
	var resp struct {
		Result struct {
			ID      any            `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(collection)+"/points/"+id, nil, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status >= 300 {
		return nil, &domain.BackendError{Op: "get point from " + collection, Err: fmt.Errorf("status %d", status)}
	}
	return &vectorstore.Record{ID: idString(resp.Result.ID), Payload: resp.Result.Payload}, nil
}

// searchStrategy is one call convention for similarity search. Older
// backends expose points/search with a flat vector; newer ones expose
// points/query with either a bare vector or a nested nearest clause.
type searchStrategy struct {
	name string
	path string
	body func(vector []float64, limit int) map[string]any
}

var searchStrategies = []searchStrategy{
	{
		name: "search",
		path: "/points/search",
		body: func(v []float64, limit int) map[string]any {
			return map[string]any{"vector": v, "limit": limit, "with_payload": true}
		},
	},
	{
		name: "query",
		path: "/points/query",
		body: func(v []float64, limit int) map[string]any {
			return map[string]any{"query": v, "limit": limit, "with_payload": true}
		},
	},
	{
		name: "query-nearest",
		path: "/points/query",
		body: func(v []float64, limit int) map[string]any {
			return map[string]any{"query": map[string]any{"nearest": v}, "limit": limit, "with_payload": true}
		},
	},
}

type searchHit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type searchResponse struct {
	Result json.RawMessage `json:"result"`
}

// Search tries each call convention in order until one succeeds and
// remembers the winner for subsequent calls. A missing collection (or a
// backend that rejected every convention with not-found) yields an empty
// result.
func (s *Store) Search(ctx context.Context, collection string, vector []float64, limit int) ([]vectorstore.ScoredPoint, error) {
	if limit <= 0 {
		limit = 5
	}
	start := s.currentMode()
	order := make([]int, 0, len(searchStrategies))
	if start >= 0 {
		order = append(order, start)
	}
	for i := range searchStrategies {
		if i != start {
			order = append(order, i)
		}
	}

	for _, idx := range order {
		strat := searchStrategies[idx]
		var resp searchResponse
		status, err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+strat.path, strat.body(vector, limit), &resp)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound || status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
			// Unknown route or rejected body shape: try the next convention.
			continue
		}
		if status >= 300 {
			return nil, &domain.BackendError{Op: "search " + collection, Err: fmt.Errorf("status %d", status)}
		}
		s.rememberMode(idx)
		return decodeHits(resp.Result)
	}
	// Every convention came back not-found: the collection does not exist.
	return nil, nil
}

// decodeHits accepts both response shapes: a bare hit array (points/search)
// and an object with a nested points array (points/query).
func decodeHits(raw json.RawMessage) ([]vectorstore.ScoredPoint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var flat []searchHit
	if err := json.Unmarshal(raw, &flat); err != nil {
		var nested struct {
			Points []searchHit `json:"points"`
		}
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, fmt.Errorf("undecodable search result: %w", err)
		}
		flat = nested.Points
	}
	out := make([]vectorstore.ScoredPoint, 0, len(flat))
	for _, h := range flat {
		out = append(out, vectorstore.ScoredPoint{
			ID:      idString(h.ID),
			Score:   h.Score,
			Payload: h.Payload,
		})
	}
	return out, nil
}

// Scroll fetches up to limit points, optionally restricted by one equality
// filter. Ordering within the page is backend-defined; callers sort.
func (s *Store) Scroll(ctx context.Context, collection string, filter *vectorstore.Filter, limit int) ([]vectorstore.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	body := map[string]any{"limit": limit, "with_payload": true}
	if filter != nil {
		body["filter"] = filterClause(filter)
	}
	var resp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+"/points/scroll", body, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status >= 300 {
		return nil, &domain.BackendError{Op: "scroll " + collection, Err: fmt.Errorf("status %d", status)}
	}
	out := make([]vectorstore.Record, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, vectorstore.Record{ID: idString(p.ID), Payload: p.Payload})
	}
	return out, nil
}

// DeleteByID removes points by id. Deleting from a missing collection is a
// no-op.
func (s *Store) DeleteByID(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.deletePoints(ctx, collection, map[string]any{"points": ids})
}

// DeleteByFilter removes every point matching the filter.
func (s *Store) DeleteByFilter(ctx context.Context, collection string, filter *vectorstore.Filter) error {
	if filter == nil {
		return fmt.Errorf("delete by filter requires a filter")
	}
	return s.deletePoints(ctx, collection, map[string]any{"filter": filterClause(filter)})
}

func (s *Store) deletePoints(ctx context.Context, collection string, body map[string]any) error {
	status, err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+"/points/delete?wait=true", body, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	if status >= 300 {
		return &domain.BackendError{Op: "delete from " + collection, Err: fmt.Errorf("status %d", status)}
	}
	return nil
}

// DropCollection removes the collection and all points in it. A missing
// collection is a no-op.
func (s *Store) DropCollection(ctx context.Context, collection string) error {
	mu := s.collectionLock(collection)
	mu.Lock()
	defer mu.Unlock()

	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(collection), nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	if status >= 300 {
		return &domain.BackendError{Op: "drop collection " + collection, Err: fmt.Errorf("status %d", status)}
	}
	return nil
}

func filterClause(f *vectorstore.Filter) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": f.Key, "match": map[string]any{"value": f.Value}},
		},
	}
}

func (s *Store) collectionURL(name string) string {
	return fmt.Sprintf("%s/collections/%s", s.url, name)
}

func (s *Store) collectionLock(name string) *sync.Mutex {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	mu, ok := s.colMu[name]
	if !ok {
		mu = &sync.Mutex{}
		s.colMu[name] = mu
	}
	return mu
}

func (s *Store) currentMode() int {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	return s.searchMode
}

func (s *Store) rememberMode(idx int) {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	if s.searchMode != idx {
		s.log.Debug("qdrant search convention selected", "convention", searchStrategies[idx].name)
		s.searchMode = idx
	}
}

// do issues one JSON request with bounded retry on transient failures
// (network errors, 429, 5xx). Non-transient statuses are returned to the
// caller for interpretation; out is only decoded on 2xx.
func (s *Store) do(ctx context.Context, method, url string, body any, out any) (int, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return 0, err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		var reader io.Reader
		if data != nil {
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return 0, err
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if s.apiKey != "" {
			req.Header.Set("api-key", s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			if attempt < s.maxRetries {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return 0, &domain.BackendError{Op: method + " " + url, Err: lastErr}
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			if attempt < s.maxRetries {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return resp.StatusCode, &domain.BackendError{Op: method + " " + url, Err: lastErr}
		}

		if out != nil && resp.StatusCode < 300 {
			err = json.NewDecoder(resp.Body).Decode(out)
			_ = resp.Body.Close()
			if err != nil {
				return resp.StatusCode, fmt.Errorf("decode %s response: %w", url, err)
			}
			return resp.StatusCode, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode, nil
	}
	return 0, &domain.BackendError{Op: method + " " + url, Err: lastErr}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func idString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
