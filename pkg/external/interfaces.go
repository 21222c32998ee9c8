package external

import (
	"context"
	"time"

	"github.com/hivdr-report/internal/domain"
)

// ResistanceAnalyzer submits sequences to a genotypic resistance service
type ResistanceAnalyzer interface {
	Analyze(ctx context.Context, sequences []domain.Sequence) (*domain.AnalysisResponse, error)
}

// ResponseCache stores service responses keyed by the submitted sequences
type ResponseCache interface {
	Get(ctx context.Context, key string) (*domain.AnalysisResponse, bool, error)
	Set(ctx context.Context, key string, resp *domain.AnalysisResponse, ttl time.Duration) error
	Close() error
}

// BreakerStateStore persists circuit breaker state between runs
type BreakerStateStore interface {
	LoadBreakerState(ctx context.Context, name string) (domain.BreakerState, error)
	SaveBreakerState(ctx context.Context, name string, state domain.BreakerState) error
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `json:"max_requests"`
	Interval         time.Duration `json:"interval"`
	Timeout          time.Duration `json:"timeout"`
	FailureThreshold uint32        `json:"failure_threshold"`
}
