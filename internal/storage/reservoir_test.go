package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/logward-dev/logward/pkg/models"
)

// fakeEngine counts lifecycle calls and satisfies Engine for façade
// tests.
type fakeEngine struct {
	connectCalls    atomic.Int32
	initializeCalls atomic.Int32
	disconnectCalls atomic.Int32
	initializeErr   error
	queries         atomic.Int32
}

func (f *fakeEngine) Connect(ctx context.Context) error {
	f.connectCalls.Add(1)
	return nil
}

func (f *fakeEngine) Initialize(ctx context.Context) error {
	f.initializeCalls.Add(1)
	// Simulate slow schema setup so concurrent Initialize calls overlap.
	time.Sleep(10 * time.Millisecond)
	return f.initializeErr
}

func (f *fakeEngine) Migrate(ctx context.Context, version int) error { return nil }

func (f *fakeEngine) Disconnect(ctx context.Context) error {
	f.disconnectCalls.Add(1)
	return nil
}

func (f *fakeEngine) Ingest(ctx context.Context, records []models.LogRecord) (*models.IngestResult, error) {
	return &models.IngestResult{AcceptedCount: len(records)}, nil
}

func (f *fakeEngine) IngestReturning(ctx context.Context, records []models.LogRecord) (*models.IngestReturningResult, error) {
	return &models.IngestReturningResult{}, nil
}

func (f *fakeEngine) Query(ctx context.Context, p models.QueryParams) (*models.QueryResult, error) {
	f.queries.Add(1)
	return &models.QueryResult{}, nil
}

func (f *fakeEngine) Aggregate(ctx context.Context, p models.AggregateParams) (*models.AggregateResult, error) {
	return &models.AggregateResult{}, nil
}

func (f *fakeEngine) Count(ctx context.Context, p models.CountParams) (*models.CountResult, error) {
	return &models.CountResult{}, nil
}

func (f *fakeEngine) Distinct(ctx context.Context, p models.DistinctParams) (*models.DistinctResult, error) {
	return &models.DistinctResult{}, nil
}

func (f *fakeEngine) TopValues(ctx context.Context, p models.TopValuesParams) (*models.TopValuesResult, error) {
	return &models.TopValuesResult{}, nil
}

func (f *fakeEngine) DeleteByTimeRange(ctx context.Context, p models.DeleteParams) (*models.DeleteResult, error) {
	return &models.DeleteResult{}, nil
}

func (f *fakeEngine) GetSegments(ctx context.Context, from, to time.Time) ([]models.Segment, error) {
	return nil, nil
}

func (f *fakeEngine) Capabilities() models.EngineCapabilities {
	return models.EngineCapabilities{MaxBatchSize: 1}
}

func (f *fakeEngine) HealthCheck(ctx context.Context) (*models.HealthStatus, error) {
	return &models.HealthStatus{Healthy: true}, nil
}

func TestReservoirGuardsUninitializedUse(t *testing.T) {
	fe := &fakeEngine{}
	r := WrapEngine(fe, nil)
	ctx := context.Background()

	if _, err := r.Query(ctx, models.QueryParams{}); !errors.Is(err, models.ErrNotInitialized) {
		t.Errorf("Query = %v, want ErrNotInitialized", err)
	}
	if _, err := r.Ingest(ctx, nil); !errors.Is(err, models.ErrNotInitialized) {
		t.Errorf("Ingest = %v, want ErrNotInitialized", err)
	}
	if _, err := r.IngestReturning(ctx, nil); !errors.Is(err, models.ErrNotInitialized) {
		t.Errorf("IngestReturning = %v, want ErrNotInitialized", err)
	}
	if _, err := r.Aggregate(ctx, models.AggregateParams{}); !errors.Is(err, models.ErrNotInitialized) {
		t.Errorf("Aggregate = %v, want ErrNotInitialized", err)
	}

	// Capabilities is a property of the engine type, never gated.
	if caps := r.Capabilities(); caps.MaxBatchSize != 1 {
		t.Errorf("Capabilities = %+v", caps)
	}
	if fe.queries.Load() != 0 {
		t.Error("engine reached before initialization")
	}
}

func TestReservoirInitializeIdempotentAndSerialized(t *testing.T) {
	fe := &fakeEngine{}
	r := WrapEngine(fe, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Initialize(ctx); err != nil {
				t.Errorf("Initialize: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := fe.initializeCalls.Load(); got != 1 {
		t.Fatalf("engine Initialize ran %d times, want exactly 1", got)
	}
	if got := fe.connectCalls.Load(); got != 1 {
		t.Fatalf("engine Connect ran %d times, want exactly 1", got)
	}

	if _, err := r.Query(ctx, models.QueryParams{}); err != nil {
		t.Fatalf("Query after Initialize: %v", err)
	}
}

func TestReservoirInitializeFailureIsRetryable(t *testing.T) {
	fe := &fakeEngine{initializeErr: errors.New("schema boom")}
	r := WrapEngine(fe, nil)
	ctx := context.Background()

	if err := r.Initialize(ctx); err == nil {
		t.Fatal("failed initialization reported success")
	}
	if _, err := r.Query(ctx, models.QueryParams{}); !errors.Is(err, models.ErrNotInitialized) {
		t.Fatalf("Query after failed init = %v, want ErrNotInitialized", err)
	}

	fe.initializeErr = nil
	if err := r.Initialize(ctx); err != nil {
		t.Fatalf("retried Initialize: %v", err)
	}
	if _, err := r.Query(ctx, models.QueryParams{}); err != nil {
		t.Fatalf("Query after retry: %v", err)
	}
}

func TestReservoirCloseAlwaysSafe(t *testing.T) {
	fe := &fakeEngine{}
	r := WrapEngine(fe, nil)
	ctx := context.Background()

	// Close before Initialize, then again: both fine, one disconnect.
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close before init: %v", err)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := fe.disconnectCalls.Load(); got != 1 {
		t.Fatalf("Disconnect ran %d times, want 1", got)
	}

	if err := r.Initialize(ctx); !errors.Is(err, models.ErrClosed) {
		t.Fatalf("Initialize after Close = %v, want ErrClosed", err)
	}
	if _, err := r.Query(ctx, models.QueryParams{}); !errors.Is(err, models.ErrClosed) {
		t.Fatalf("Query after Close = %v, want ErrClosed", err)
	}
}
