// Package storage defines the engine-agnostic storage contract for log
// records, the factory that constructs concrete engines, and the
// Reservoir façade consumed by collaborators.
package storage

import (
	"context"
	"time"

	"github.com/logward-dev/logward/pkg/models"
)

// Engine is the contract every storage backend implements. Instances
// move strictly through the lifecycle states Unconnected -> Connected ->
// Initialized -> Closed (see internal/storage/lifecycle).
// Implementations must be safe for concurrent use; the only shared
// mutable resource is the connection pool, which is thread-safe by
// construction.
type Engine interface {
	// Connect establishes the owned pool, or verifies an injected one.
	Connect(ctx context.Context) error

	// Initialize performs idempotent schema setup. It is a no-op when
	// the configuration declares the schema externally managed.
	Initialize(ctx context.Context) error

	// Migrate applies versioned schema changes up to version.
	Migrate(ctx context.Context, version int) error

	// Disconnect releases owned resources only. Injected pools are never
	// closed by this layer.
	Disconnect(ctx context.Context) error

	// Data operations. Valid only in the Initialized state; earlier
	// calls fail fast with the distinct lifecycle errors.
	Ingest(ctx context.Context, records []models.LogRecord) (*models.IngestResult, error)
	IngestReturning(ctx context.Context, records []models.LogRecord) (*models.IngestReturningResult, error)
	Query(ctx context.Context, p models.QueryParams) (*models.QueryResult, error)
	Aggregate(ctx context.Context, p models.AggregateParams) (*models.AggregateResult, error)
	Count(ctx context.Context, p models.CountParams) (*models.CountResult, error)
	Distinct(ctx context.Context, p models.DistinctParams) (*models.DistinctResult, error)
	TopValues(ctx context.Context, p models.TopValuesParams) (*models.TopValuesResult, error)
	DeleteByTimeRange(ctx context.Context, p models.DeleteParams) (*models.DeleteResult, error)

	// GetSegments reports the physical partitions covering [from, to).
	// Read-only; used by external tiering and retention logic.
	GetSegments(ctx context.Context, from, to time.Time) ([]models.Segment, error)

	// Capabilities is valid in any state: it describes the engine type,
	// not a live connection.
	Capabilities() models.EngineCapabilities

	// HealthCheck pings the backend and measures round-trip latency.
	HealthCheck(ctx context.Context) (*models.HealthStatus, error)
}
