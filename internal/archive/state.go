package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hivdr-report/internal/domain"
)

// LoadBreakerState returns the persisted breaker state for name. An unknown
// name yields the zero (closed) state.
func (s *SQLiteStore) LoadBreakerState(ctx context.Context, name string) (domain.BreakerState, error) {
	var state domain.BreakerState
	var failures, openedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT consecutive_failures, opened_at FROM breaker_state WHERE name = ?
	`, name).Scan(&failures, &openedAt)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to load breaker state %s: %w", name, err)
	}

	state.ConsecutiveFailures = uint32(failures)
	if openedAt != 0 {
		state.OpenedAt = time.Unix(0, openedAt)
	}
	return state, nil
}

// SaveBreakerState persists the breaker state for name
func (s *SQLiteStore) SaveBreakerState(ctx context.Context, name string, state domain.BreakerState) error {
	var openedAt int64
	if !state.OpenedAt.IsZero() {
		openedAt = state.OpenedAt.UnixNano()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO breaker_state (name, consecutive_failures, opened_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			consecutive_failures = excluded.consecutive_failures,
			opened_at = excluded.opened_at,
			updated_at = excluded.updated_at
	`, name, int64(state.ConsecutiveFailures), openedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save breaker state %s: %w", name, err)
	}
	return nil
}

// ResponseCache is a service response cache kept in the archive database, so
// repeated runs over the same input are answered without a query.
type ResponseCache struct {
	db         *sql.DB
	defaultTTL time.Duration
	now        func() time.Time
}

// ResponseCache returns the response cache sharing the store's database.
// Closing the cache leaves the store open.
func (s *SQLiteStore) ResponseCache(defaultTTL time.Duration) *ResponseCache {
	return &ResponseCache{db: s.db, defaultTTL: defaultTTL, now: time.Now}
}

// Get retrieves a cached response
func (c *ResponseCache) Get(ctx context.Context, key string) (*domain.AnalysisResponse, bool, error) {
	var data string
	var expiresAt int64

	err := c.db.QueryRowContext(ctx, `
		SELECT response, expires_at FROM response_cache WHERE cache_key = ?
	`, key).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached analysis: %w", err)
	}

	if c.now().UnixNano() >= expiresAt {
		c.delete(ctx, key)
		return nil, false, nil
	}

	var resp domain.AnalysisResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		// Remove corrupted cache entry
		c.delete(ctx, key)
		return nil, false, nil
	}
	return &resp, true, nil
}

// Set caches a response. Expired entries are purged on the way.
func (c *ResponseCache) Set(ctx context.Context, key string, resp *domain.AnalysisResponse, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis cache data: %w", err)
	}

	now := c.now()
	if _, err := c.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, now.UnixNano()); err != nil {
		return fmt.Errorf("failed to purge response cache: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO response_cache (cache_key, response, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			response = excluded.response,
			expires_at = excluded.expires_at
	`, key, string(data), now.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("failed to cache analysis: %w", err)
	}
	return nil
}

// Close is a no-op; the database belongs to the store
func (c *ResponseCache) Close() error {
	return nil
}

func (c *ResponseCache) delete(ctx context.Context, key string) {
	c.db.ExecContext(ctx, `DELETE FROM response_cache WHERE cache_key = ?`, key)
}
