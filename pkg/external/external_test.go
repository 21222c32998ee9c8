package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hivdr-report/internal/domain"
)

const sierraFixture = `{
  "data": {
    "viewer": {
      "currentVersion": {"text": "HIVDB_9.5", "publishDate": "2023-06-30"},
      "sequenceAnalysis": [{
        "inputSequence": {"header": "patient-001"},
        "validationResults": [{"level": "WARNING", "message": "There are 2 ambiguous bases."}],
        "bestMatchingSubtype": {"display": "B (1.57%)"},
        "drugResistance": [{
          "gene": {"name": "RT"},
          "drugScores": [
            {"drugClass": {"name": "NRTI", "fullName": "Nucleoside Reverse Transcriptase Inhibitor"},
             "drug": {"displayAbbr": "3TC", "fullName": "lamivudine"},
             "SIR": "R", "score": 60, "level": 5, "text": "High-Level Resistance"}
          ],
          "mutationsByTypes": [
            {"mutationType": "NRTI", "mutations": [{"text": "M184V", "shortText": "M184V"}]},
            {"mutationType": "Other", "mutations": []}
          ],
          "commentsByTypes": [
            {"commentType": "NRTI", "comments": [
              {"type": "NRTI", "text": "M184V/I cause high-level resistance to 3TC.", "highlightText": ["M184V"]}
            ]}
          ]
        }]
      }]
    }
  }
}`

var testSequences = []domain.Sequence{{Header: "patient-001", Residues: "CCTCAGATCACTCTTTGG"}}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func testConfig(url string) domain.HIVDBConfig {
	return domain.HIVDBConfig{
		BaseURL:    url,
		Timeout:    5 * time.Second,
		RateLimit:  1000,
		RetryCount: 5,
		RetryDelay: time.Millisecond,
	}
}

func TestHIVDBClient_Analyze(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sierraFixture)
	}))
	defer server.Close()

	client := NewHIVDBClient(testConfig(server.URL))

	resp, err := client.Analyze(context.Background(), testSequences)
	require.NoError(t, err)

	// Request shape
	assert.Contains(t, captured["query"], "sequenceAnalysis(sequences: $sequences)")
	variables := captured["variables"].(map[string]interface{})
	sequences := variables["sequences"].([]interface{})
	require.Len(t, sequences, 1)
	assert.Equal(t, "patient-001", sequences[0].(map[string]interface{})["header"])
	assert.Equal(t, "CCTCAGATCACTCTTTGG", sequences[0].(map[string]interface{})["sequence"])

	// Conversion
	assert.Equal(t, "HIVDB_9.5 (2023-06-30)", resp.DatabaseVersion)
	require.Len(t, resp.Sequences, 1)
	seq := resp.Sequences[0]
	assert.Equal(t, "patient-001", seq.Header)
	assert.Equal(t, "B (1.57%)", seq.Subtype)
	assert.Equal(t, []domain.ValidationMessage{{Level: "WARNING", Message: "There are 2 ambiguous bases."}}, seq.Validation)

	require.Len(t, seq.Genes, 1)
	gene := seq.Genes[0]
	assert.Equal(t, "RT", gene.Name)
	assert.Equal(t, domain.DrugScore{
		DrugClass: "NRTI", DrugName: "lamivudine", DrugAbbr: "3TC",
		SIR: "R", Score: 60, Level: 5, Text: "High-Level Resistance",
	}, gene.DrugScores[0])
	assert.Equal(t, "lamivudine (3TC)", gene.DrugScores[0].Label())
	assert.Equal(t, []domain.MutationGroup{
		{Type: "NRTI", Mutations: []string{"M184V"}},
		{Type: "Other"},
	}, gene.MutationGroups)
	assert.Equal(t, "M184V", gene.CommentGroups[0].Comments[0].Highlighted[0])
}

func TestHIVDBClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{name: "server error is retryable", status: http.StatusBadGateway, body: "bad gateway", retryable: true},
		{name: "rate limited is retryable", status: http.StatusTooManyRequests, body: "slow down", retryable: true},
		{name: "bad request is not retryable", status: http.StatusBadRequest, body: "invalid", retryable: false},
		{name: "graphql errors are not retryable", status: http.StatusOK, body: `{"errors":[{"message":"Validation error"}]}`, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := NewHIVDBClient(testConfig(server.URL)).Analyze(context.Background(), testSequences)
			require.Error(t, err)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
		})
	}
}

func TestHIVDBClient_ConnectionFailureIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHIVDBClient(testConfig(url)).Analyze(context.Background(), testSequences)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
}

func TestHIVDBClient_EmptyInput(t *testing.T) {
	_, err := NewHIVDBClient(testConfig("http://127.0.0.1:1")).Analyze(context.Background(), nil)
	assert.True(t, errors.Is(err, domain.ErrEmptyInput))
}

// MockAnalyzer is a mock implementation of the ResistanceAnalyzer interface
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, sequences []domain.Sequence) (*domain.AnalysisResponse, error) {
	args := m.Called(ctx, sequences)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisResponse), args.Error(1)
}

func TestResilientClient_RetryIsTransparent(t *testing.T) {
	ctx := context.Background()
	expected := &domain.AnalysisResponse{DatabaseVersion: "HIVDB_9.5", Sequences: []domain.SequenceResult{{Header: "patient-001"}}}

	firstTry := new(MockAnalyzer)
	firstTry.On("Analyze", ctx, testSequences).Return(expected, nil).Once()

	flaky := new(MockAnalyzer)
	flaky.On("Analyze", ctx, testSequences).Return(nil, &domain.TransportError{Err: errors.New("connection reset")}).Times(4)
	flaky.On("Analyze", ctx, testSequences).Return(expected, nil).Once()

	cfg := testConfig("")
	direct, err := NewResilientClient(firstTry, cfg, nil, 0, newTestLogger()).Analyze(ctx, testSequences)
	require.NoError(t, err)

	retried, err := NewResilientClient(flaky, cfg, nil, 0, newTestLogger()).Analyze(ctx, testSequences)
	require.NoError(t, err)

	assert.Equal(t, direct, retried)
	flaky.AssertNumberOfCalls(t, "Analyze", 5)
	firstTry.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestResilientClient_ExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	analyzer := new(MockAnalyzer)
	analyzer.On("Analyze", ctx, testSequences).Return(nil, &domain.TransportError{Err: errors.New("connection refused")})

	client := NewResilientClient(analyzer, testConfig(""), nil, 0, newTestLogger())

	_, err := client.Analyze(ctx, testSequences)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 5 attempts")

	var transportErr *domain.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, 5, transportErr.Attempt, "last observed error is reported")
	analyzer.AssertNumberOfCalls(t, "Analyze", 5)
	assert.Equal(t, gobreaker.StateClosed, client.State(), "one exhausted run does not trip the breaker")

	// A second exhausted run opens the breaker and fails fast
	_, err = client.Analyze(ctx, testSequences)
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, client.State())
	analyzer.AssertNumberOfCalls(t, "Analyze", 6)
}

func TestResilientClient_NonRetryableErrorStopsImmediately(t *testing.T) {
	ctx := context.Background()
	analyzer := new(MockAnalyzer)
	analyzer.On("Analyze", ctx, testSequences).Return(nil, &domain.ServiceResponseError{Messages: []string{"bad sequence"}})

	_, err := NewResilientClient(analyzer, testConfig(""), nil, 0, newTestLogger()).Analyze(ctx, testSequences)
	require.Error(t, err)

	var serviceErr *domain.ServiceResponseError
	assert.True(t, errors.As(err, &serviceErr))
	analyzer.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestResilientClient_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	analyzer := new(MockAnalyzer)
	analyzer.On("Analyze", ctx, testSequences).
		Return(nil, &domain.TransportError{Err: errors.New("timeout")}).
		Run(func(mock.Arguments) { cancel() })

	cfg := testConfig("")
	cfg.RetryDelay = time.Hour

	_, err := NewResilientClient(analyzer, cfg, nil, 0, newTestLogger()).Analyze(ctx, testSequences)
	assert.ErrorIs(t, err, context.Canceled)
	analyzer.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestResilientClient_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	expected := &domain.AnalysisResponse{DatabaseVersion: "HIVDB_9.5", Sequences: []domain.SequenceResult{{Header: "patient-001"}}}

	analyzer := new(MockAnalyzer)
	analyzer.On("Analyze", ctx, testSequences).Return(expected, nil).Once()

	cache := NewMemoryCache(10, time.Hour)
	client := NewResilientClient(analyzer, testConfig(""), cache, time.Hour, newTestLogger())

	first, err := client.Analyze(ctx, testSequences)
	require.NoError(t, err)
	second, err := client.Analyze(ctx, testSequences)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.Len())
	analyzer.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestResilientHIVDBClient_AgainstServer(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, sierraFixture)
	}))
	defer server.Close()

	client := NewResilientHIVDBClient(testConfig(server.URL), nil, 0, newTestLogger())

	resp, err := client.Analyze(context.Background(), testSequences)
	require.NoError(t, err)
	assert.Equal(t, "HIVDB_9.5 (2023-06-30)", resp.DatabaseVersion)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCacheKey(t *testing.T) {
	a := CacheKey([]domain.Sequence{{Header: "a", Residues: "ACGT"}})
	b := CacheKey([]domain.Sequence{{Header: "a", Residues: "ACGT"}})
	c := CacheKey([]domain.Sequence{{Header: "aA", Residues: "CGT"}})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "hivdr:analysis:")
}

func TestNewResponseCache(t *testing.T) {
	cache, err := NewResponseCache(domain.CacheConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Nil(t, cache)

	cache, err = NewResponseCache(domain.CacheConfig{Enabled: true, MaxItems: 5, TTL: time.Minute}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, cache)
	require.NoError(t, cache.Close())

	cache, err = NewResponseCache(domain.CacheConfig{Enabled: true, MaxItems: 5, TTL: time.Minute}, NewMemoryCache(5, time.Minute))
	require.NoError(t, err)
	assert.IsType(t, &LayeredCache{}, cache)
	require.NoError(t, cache.Close())

	_, err = NewResponseCache(domain.CacheConfig{Enabled: true, RedisURL: "not-a-url"}, nil)
	assert.Error(t, err)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, 20*time.Millisecond)
	resp := &domain.AnalysisResponse{DatabaseVersion: "v"}

	require.NoError(t, cache.Set(ctx, "k", resp, 0))
	got, found, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Same(t, resp, got)

	assert.Eventually(t, func() bool {
		_, found, _ := cache.Get(ctx, "k")
		return !found
	}, time.Second, 10*time.Millisecond)
}
