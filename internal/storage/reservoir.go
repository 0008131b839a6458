package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/logward-dev/logward/pkg/models"
)

// Reservoir is the façade collaborators hold. It owns exactly one engine
// for its lifetime and forwards all data operations to it once
// Initialize has succeeded. It is created by the process's composition
// root and passed by reference; there is no hidden global instance.
type Reservoir struct {
	engine Engine
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	closed      bool

	// ready mirrors initialized for lock-free checks on the data path.
	ready atomic.Bool
}

// NewReservoir constructs the façade around a factory-built engine.
func NewReservoir(engineType EngineType, cfg Config, opts Options) (*Reservoir, error) {
	engine, err := Create(engineType, cfg, opts)
	if err != nil {
		return nil, err
	}
	return WrapEngine(engine, opts.Logger), nil
}

// WrapEngine builds a façade around an existing engine. Used by the
// composition root when it constructs the engine itself, and by tests.
func WrapEngine(engine Engine, logger *slog.Logger) *Reservoir {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reservoir{engine: engine, logger: logger}
}

// Initialize connects the engine and sets up its schema. It is
// serialized: concurrent calls run exactly one underlying initialization,
// and calls after a success are no-ops. A failed attempt may be retried.
func (r *Reservoir) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return models.ErrClosed
	}
	if r.initialized {
		return nil
	}

	if err := r.engine.Connect(ctx); err != nil {
		return err
	}
	if err := r.engine.Initialize(ctx); err != nil {
		return err
	}

	r.initialized = true
	r.ready.Store(true)
	r.logger.Info("reservoir initialized",
		"capabilities", r.engine.Capabilities())
	return nil
}

// Close releases owned engine resources. Always safe to call, including
// before initialization, and idempotent.
func (r *Reservoir) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.initialized = false
	r.ready.Store(false)
	return r.engine.Disconnect(ctx)
}

// Migrate applies versioned schema changes through the engine.
func (r *Reservoir) Migrate(ctx context.Context, version int) error {
	if err := r.checkReady(); err != nil {
		return err
	}
	return r.engine.Migrate(ctx, version)
}

func (r *Reservoir) checkReady() error {
	if r.ready.Load() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return models.ErrClosed
	}
	if !r.initialized {
		return models.ErrNotInitialized
	}
	return nil
}

func (r *Reservoir) Ingest(ctx context.Context, records []models.LogRecord) (*models.IngestResult, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.engine.Ingest(ctx, records)
}

func (r *Reservoir) IngestReturning(ctx context.Context, records []models.LogRecord) (*models.IngestReturningResult, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.engine.IngestReturning(ctx, records)
}

func (r *Reservoir) Query(ctx context.Context, p models.QueryParams) (*models.QueryResult, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.engine.Query(ctx, p)
}

func (r *Reservoir) Aggregate(ctx context.Context, p models.AggregateParams) (*models.AggregateResult, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.engine.Aggregate(ctx, p)
}

func (r *Reservoir) Count(ctx context.Context, p models.CountParams) (*models.CountResult, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.engine.Count(ctx, p)
}

func (r *Reservoir) Distinct(ctx context.Context, p models.DistinctParams) (*models.DistinctResult, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.engine.Distinct(ctx, p)
}

func (r *Reservoir) TopValues(ctx context.Context, p models.TopValuesParams) (*models.TopValuesResult, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.engine.TopValues(ctx, p)
}

func (r *Reservoir) DeleteByTimeRange(ctx context.Context, p models.DeleteParams) (*models.DeleteResult, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.engine.DeleteByTimeRange(ctx, p)
}

func (r *Reservoir) GetSegments(ctx context.Context, from, to time.Time) ([]models.Segment, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.engine.GetSegments(ctx, from, to)
}

// Capabilities is callable in any state, including before Initialize.
func (r *Reservoir) Capabilities() models.EngineCapabilities {
	return r.engine.Capabilities()
}

func (r *Reservoir) HealthCheck(ctx context.Context) (*models.HealthStatus, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.engine.HealthCheck(ctx)
}
