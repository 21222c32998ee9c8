package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/hivdr-report/internal/domain"
)

// Retry and breaker defaults for the genotyping service
const (
	DefaultRetryCount     = 5
	DefaultRetryDelay     = 10 * time.Second
	DefaultBreakerTimeout = 5 * time.Minute
)

const breakerName = "HIVDB"

// ResilientHIVDBClient wraps a ResistanceAnalyzer with response caching, a fixed
// delay retry on transport failures and a circuit breaker
type ResilientHIVDBClient struct {
	client     ResistanceAnalyzer
	cache      ResponseCache
	cacheTTL   time.Duration
	breaker    *gobreaker.CircuitBreaker
	retryCount int
	retryDelay time.Duration
	logger     *logrus.Logger

	// Breaker state shared with other runs through stateStore
	stateStore     BreakerStateStore
	breakerTimeout time.Duration
	threshold      uint32
	restored       bool
	carried        uint32
	openedAt       time.Time
	openUntil      time.Time
}

// NewResilientHIVDBClient creates a resilient client talking to the HIVDB API.
// cache may be nil.
func NewResilientHIVDBClient(config domain.HIVDBConfig, cache ResponseCache, cacheTTL time.Duration, logger *logrus.Logger) *ResilientHIVDBClient {
	return NewResilientClient(NewHIVDBClient(config), config, cache, cacheTTL, logger)
}

// NewResilientClient wraps an arbitrary analyzer
func NewResilientClient(client ResistanceAnalyzer, config domain.HIVDBConfig, cache ResponseCache, cacheTTL time.Duration, logger *logrus.Logger) *ResilientHIVDBClient {
	if logger == nil {
		logger = logrus.New()
	}
	if config.RetryCount <= 0 {
		config.RetryCount = DefaultRetryCount
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	if config.BreakerTimeout == 0 {
		config.BreakerTimeout = DefaultBreakerTimeout
	}

	breakerConfig := CircuitBreakerConfig{
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		// One run may burn its whole retry budget without tripping; only
		// repeated exhaustion opens the breaker.
		FailureThreshold: uint32(config.RetryCount) + 1,
	}

	r := &ResilientHIVDBClient{
		client:         client,
		cache:          cache,
		cacheTTL:       cacheTTL,
		retryCount:     config.RetryCount,
		retryDelay:     config.RetryDelay,
		logger:         logger,
		breakerTimeout: breakerConfig.Timeout,
		threshold:      breakerConfig.FailureThreshold,
	}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: breakerConfig.MaxRequests,
		Interval:    breakerConfig.Interval,
		Timeout:     breakerConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return r.carried+counts.ConsecutiveFailures >= r.threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				r.openedAt = time.Now()
				r.carried = 0
			case gobreaker.StateClosed:
				r.openedAt = time.Time{}
			}
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return r
}

// WithStateStore makes the breaker state outlive the process. The persisted
// state is loaded on the first query and saved after every query that reached
// the service.
func (r *ResilientHIVDBClient) WithStateStore(store BreakerStateStore) *ResilientHIVDBClient {
	r.stateStore = store
	return r
}

// Analyze queries the service, serving repeated queries from the cache. Transport
// failures are retried up to the configured count with a fixed delay; after
// exhaustion the last observed error is returned.
func (r *ResilientHIVDBClient) Analyze(ctx context.Context, sequences []domain.Sequence) (*domain.AnalysisResponse, error) {
	if len(sequences) == 0 {
		return nil, domain.NewEmptyInputError("no sequences to analyze")
	}

	key := CacheKey(sequences)
	if r.cache != nil {
		cached, found, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.WithError(err).Warn("Response cache lookup failed")
		} else if found {
			r.logger.WithField("cache_key", key).Debug("Serving analysis from cache")
			return cached, nil
		}
	}

	r.restoreBreaker(ctx)
	if time.Now().Before(r.openUntil) {
		return nil, fmt.Errorf("HIVDB circuit breaker open since %s: %w",
			r.openedAt.Format(time.RFC3339), gobreaker.ErrOpenState)
	}
	defer r.saveBreaker(ctx)

	var lastErr error
	for attempt := 1; attempt <= r.retryCount; attempt++ {
		result, err := r.breaker.Execute(func() (interface{}, error) {
			return r.client.Analyze(ctx, sequences)
		})
		if err == nil {
			r.carried = 0
			resp := result.(*domain.AnalysisResponse)
			if len(resp.Sequences) > 0 {
				r.store(ctx, key, resp)
			}
			if attempt > 1 {
				r.logger.WithField("attempt", attempt).Info("HIVDB query succeeded after retry")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			if lastErr != nil {
				return nil, fmt.Errorf("HIVDB circuit breaker open after: %w", lastErr)
			}
			return nil, fmt.Errorf("HIVDB unavailable: %w", err)
		}

		var transportErr *domain.TransportError
		if !errors.As(err, &transportErr) {
			r.carried = 0
			return nil, err
		}
		transportErr.Attempt = attempt
		lastErr = err

		r.logger.WithFields(logrus.Fields{
			"attempt":     attempt,
			"max_retries": r.retryCount,
			"error":       err.Error(),
		}).Warn("HIVDB query failed")

		if attempt < r.retryCount {
			if err := sleepContext(ctx, r.retryDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("HIVDB query failed after %d attempts: %w", r.retryCount, lastErr)
}

// State returns the circuit breaker state
func (r *ResilientHIVDBClient) State() gobreaker.State {
	return r.breaker.State()
}

// restoreBreaker loads the state left by earlier runs once per client. A
// breaker whose timeout has passed comes back half-open: one more failure
// reopens it.
func (r *ResilientHIVDBClient) restoreBreaker(ctx context.Context) {
	if r.stateStore == nil || r.restored {
		return
	}
	r.restored = true

	state, err := r.stateStore.LoadBreakerState(ctx, breakerName)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to load circuit breaker state")
		return
	}

	switch {
	case state.IsOpen(time.Now(), r.breakerTimeout):
		r.openedAt = state.OpenedAt
		r.openUntil = state.OpenedAt.Add(r.breakerTimeout)
	case !state.OpenedAt.IsZero():
		r.carried = r.threshold - 1
	default:
		r.carried = state.ConsecutiveFailures
	}

	r.logger.WithFields(logrus.Fields{
		"circuit_breaker":      breakerName,
		"consecutive_failures": state.ConsecutiveFailures,
		"open":                 !r.openUntil.IsZero(),
	}).Debug("Circuit breaker state restored")
}

func (r *ResilientHIVDBClient) saveBreaker(ctx context.Context) {
	if r.stateStore == nil {
		return
	}

	var state domain.BreakerState
	if r.breaker.State() == gobreaker.StateOpen {
		state.OpenedAt = r.openedAt
	} else {
		state.ConsecutiveFailures = r.carried + r.breaker.Counts().ConsecutiveFailures
	}

	if err := r.stateStore.SaveBreakerState(ctx, breakerName, state); err != nil {
		r.logger.WithError(err).Warn("Failed to save circuit breaker state")
	}
}

func (r *ResilientHIVDBClient) store(ctx context.Context, key string, resp *domain.AnalysisResponse) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, key, resp, r.cacheTTL); err != nil {
		r.logger.WithError(err).Warn("Failed to cache analysis response")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
