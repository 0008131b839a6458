package models

import "time"

// EngineCapabilities describes the static feature set of an engine type.
// It is a property of the type, not of a live connection, so it is
// queryable before initialization.
type EngineCapabilities struct {
	// FullTextSearch reports whether SearchFulltext is supported.
	FullTextSearch bool `json:"full_text_search"`
	// Transactions reports whether batch ingestion runs in a real
	// transaction.
	Transactions bool `json:"transactions"`
	// MaxBatchSize is the largest record batch one ingest call accepts.
	MaxBatchSize int `json:"max_batch_size"`
	// SynchronousDeletes reports whether deleted rows are guaranteed
	// absent from queries issued after DeleteByTimeRange returns. The
	// columnar engine applies deletes as asynchronous mutations.
	SynchronousDeletes bool `json:"synchronous_deletes"`
}

// IngestResult is the outcome of an atomic batch ingest.
type IngestResult struct {
	AcceptedCount int `json:"accepted_count"`
}

// IngestReturningResult carries the stored records, in input order, with
// their assigned ids.
type IngestReturningResult struct {
	Records []StoredLogRecord `json:"records"`
}

// HealthStatus is the outcome of a health check.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Engine  string        `json:"engine"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Segment describes one physical storage partition covering part of a
// time range, as reported by GetSegments for external tiering and
// retention logic.
type Segment struct {
	Name string    `json:"name"`
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	// RowCount is the engine's (possibly approximate) row count for the
	// segment; -1 when the engine cannot report it cheaply.
	RowCount int64 `json:"row_count"`
}
