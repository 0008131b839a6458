package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/logward-dev/logward/internal/storage/lifecycle"
	"github.com/logward-dev/logward/internal/storage/translate"
	"github.com/logward-dev/logward/pkg/models"
)

const maxBatchSize = 100000

// Config holds the columnar engine's connection parameters, or an
// injected connection. An injected connection is borrowed: never closed
// by this layer.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string

	Table          string
	SkipSchemaInit bool

	Conn driver.Conn
}

// Engine is the ClickHouse storage engine.
type Engine struct {
	cfg    Config
	tr     *Translator
	logger *slog.Logger

	mu    sync.Mutex
	conn  driver.Conn
	owned bool
	state lifecycle.Tracker
}

// New constructs the engine without performing any I/O; Connect and
// Initialize do that.
func New(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Table == "" {
		cfg.Table = "log_records"
	}
	return &Engine{
		cfg:    cfg,
		tr:     NewTranslator(cfg.Table),
		logger: logger,
	}
}

// Connect opens the owned connection or verifies the injected one.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.State() {
	case lifecycle.Closed:
		return models.ErrClosed
	case lifecycle.Connected, lifecycle.Initialized:
		return nil
	}

	if e.cfg.Conn != nil {
		if err := e.cfg.Conn.Ping(ctx); err != nil {
			return fmt.Errorf("pinging injected connection: %w", err)
		}
		e.conn = e.cfg.Conn
		e.owned = false
	} else {
		conn, err := connect(ctx, ConnectionConfig{
			Addr:     e.cfg.Addr,
			Database: e.cfg.Database,
			Username: e.cfg.Username,
			Password: e.cfg.Password,
		})
		if err != nil {
			return err
		}
		e.conn = conn
		e.owned = true
	}

	e.state.Set(lifecycle.Connected)
	return nil
}

// Initialize performs idempotent schema setup. A no-op when the caller
// declared the schema externally managed.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.State() {
	case lifecycle.Initialized:
		return nil
	case lifecycle.Closed:
		return models.ErrClosed
	case lifecycle.Unconnected:
		return models.ErrNotConnected
	}

	if !e.cfg.SkipSchemaInit {
		if err := initializeSchema(ctx, e.conn, e.cfg.Table); err != nil {
			return err
		}
	}
	e.state.Set(lifecycle.Initialized)
	return nil
}

// Migrate applies versioned schema changes up to version.
func (e *Engine) Migrate(ctx context.Context, version int) error {
	if err := e.state.RequireInitialized(); err != nil {
		return err
	}
	return applyMigrations(ctx, e.conn, e.cfg.Table, version)
}

// Disconnect closes the connection only when this engine owns it.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.State() == lifecycle.Closed {
		return nil
	}
	e.state.Set(lifecycle.Closed)
	var err error
	if e.owned && e.conn != nil {
		err = e.conn.Close()
	}
	e.conn = nil
	return err
}

func prepareRows(records []models.LogRecord) ([]models.StoredLogRecord, error) {
	now := time.Now().UTC()
	out := make([]models.StoredLogRecord, len(records))
	for i, rec := range records {
		if !rec.Level.Valid() {
			return nil, models.Validationf("level", "unknown level %q at record %d", rec.Level, i)
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = now
		}
		out[i] = models.StoredLogRecord{ID: uuid.New(), LogRecord: rec}
	}
	return out, nil
}

func metadataJSON(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// insertBatch appends all rows to one native insert block; the server
// applies a block atomically, so the batch is all-or-nothing.
func (e *Engine) insertBatch(ctx context.Context, rows []models.StoredLogRecord) error {
	batch, err := e.conn.PrepareBatch(ctx, "INSERT INTO "+e.cfg.Table)
	if err != nil {
		return fmt.Errorf("preparing batch: %w", err)
	}

	for _, row := range rows {
		meta, err := metadataJSON(row.Metadata)
		if err != nil {
			batch.Abort()
			return models.Validationf("metadata", "not serializable: %v", err)
		}
		err = batch.Append(
			row.ID, row.Timestamp.UTC(), row.OrgID, row.ProjectID, row.Service,
			string(row.Level), row.Message, meta, row.TraceID, row.SpanID)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("appending row: %w", err)
		}
	}
	return batch.Send()
}

func validateBatch(records []models.LogRecord) error {
	if len(records) > maxBatchSize {
		return models.Validationf("records", "batch of %d exceeds max batch size %d", len(records), maxBatchSize)
	}
	return nil
}

// Ingest stores a batch atomically.
func (e *Engine) Ingest(ctx context.Context, records []models.LogRecord) (*models.IngestResult, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}
	if err := validateBatch(records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &models.IngestResult{}, nil
	}

	rows, err := prepareRows(records)
	if err != nil {
		return nil, err
	}
	if err := e.insertBatch(ctx, rows); err != nil {
		return nil, err
	}
	return &models.IngestResult{AcceptedCount: len(rows)}, nil
}

// IngestReturning stores a batch atomically and returns the stored
// records, with assigned ids and timestamps, in input order.
func (e *Engine) IngestReturning(ctx context.Context, records []models.LogRecord) (*models.IngestReturningResult, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}
	if err := validateBatch(records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &models.IngestReturningResult{Records: []models.StoredLogRecord{}}, nil
	}

	rows, err := prepareRows(records)
	if err != nil {
		return nil, err
	}
	if err := e.insertBatch(ctx, rows); err != nil {
		return nil, err
	}
	return &models.IngestReturningResult{Records: rows}, nil
}

func scanRecord(rows driver.Rows) (models.StoredLogRecord, error) {
	var (
		rec   models.StoredLogRecord
		level string
		meta  string
	)
	err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.OrgID, &rec.ProjectID,
		&rec.Service, &level, &rec.Message, &meta, &rec.TraceID, &rec.SpanID)
	if err != nil {
		return rec, err
	}
	rec.Level = models.Level(level)
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return rec, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return rec, nil
}

// Query runs the translated page query, trims the extra probe row, and
// attaches the next cursor when more rows exist.
func (e *Engine) Query(ctx context.Context, p models.QueryParams) (*models.QueryResult, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}
	q, err := e.tr.TranslateQuery(p)
	if err != nil {
		return nil, err
	}

	rows, err := e.conn.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.StoredLogRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	limit := translate.EffectiveLimit(p.Limit)
	result := &models.QueryResult{Records: records}
	if len(records) > limit {
		result.Records = records[:limit]
		last := result.Records[limit-1]
		result.NextCursor = translate.EncodeCursor(last.Timestamp, last.ID)
	}
	return result, nil
}

// Aggregate folds (bucket, level, count) rows into the ascending bucket
// series. Empty buckets are omitted; densifying is caller responsibility.
func (e *Engine) Aggregate(ctx context.Context, p models.AggregateParams) (*models.AggregateResult, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}
	q, err := e.tr.TranslateAggregate(p)
	if err != nil {
		return nil, err
	}

	rows, err := e.conn.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []models.TimeBucket
	for rows.Next() {
		var (
			bucket time.Time
			level  string
			cnt    uint64
		)
		if err := rows.Scan(&bucket, &level, &cnt); err != nil {
			return nil, err
		}
		if len(series) == 0 || !series[len(series)-1].Start.Equal(bucket) {
			series = append(series, models.TimeBucket{
				Start:  bucket,
				Counts: make(map[models.Level]int64),
			})
		}
		series[len(series)-1].Counts[models.Level(level)] = int64(cnt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &models.AggregateResult{Timeseries: series}, nil
}

func (e *Engine) count(ctx context.Context, q translate.NativeQuery) (int64, error) {
	var count uint64
	if err := e.conn.QueryRow(ctx, q.SQL, q.Args...).Scan(&count); err != nil {
		return 0, err
	}
	return int64(count), nil
}

// Count returns the number of matching rows.
func (e *Engine) Count(ctx context.Context, p models.CountParams) (*models.CountResult, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}
	q, err := e.tr.TranslateCount(p)
	if err != nil {
		return nil, err
	}
	count, err := e.count(ctx, q)
	if err != nil {
		return nil, err
	}
	return &models.CountResult{Count: count}, nil
}

// Distinct lists the distinct values of one allow-listed field.
func (e *Engine) Distinct(ctx context.Context, p models.DistinctParams) (*models.DistinctResult, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}
	q, err := e.tr.TranslateDistinct(p)
	if err != nil {
		return nil, err
	}

	rows, err := e.conn.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &models.DistinctResult{Values: values}, nil
}

// TopValues ranks field values by descending frequency.
func (e *Engine) TopValues(ctx context.Context, p models.TopValuesParams) (*models.TopValuesResult, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}
	q, err := e.tr.TranslateTopValues(p)
	if err != nil {
		return nil, err
	}

	rows, err := e.conn.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []models.ValueCount
	for rows.Next() {
		var (
			vc  models.ValueCount
			cnt uint64
		)
		if err := rows.Scan(&vc.Value, &cnt); err != nil {
			return nil, err
		}
		vc.Count = int64(cnt)
		values = append(values, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &models.TopValuesResult{Values: values}, nil
}

// DeleteByTimeRange issues the range delete as a lightweight mutation.
// The reported count is measured immediately before the mutation; the
// mutation itself applies asynchronously, so the rows may remain visible
// briefly (Capabilities.SynchronousDeletes is false).
func (e *Engine) DeleteByTimeRange(ctx context.Context, p models.DeleteParams) (*models.DeleteResult, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}

	cq, err := e.tr.TranslateCount(models.CountParams{Range: p.Range})
	if err != nil {
		return nil, err
	}
	matched, err := e.count(ctx, cq)
	if err != nil {
		return nil, err
	}

	q, err := e.tr.TranslateDelete(p)
	if err != nil {
		return nil, err
	}
	if err := e.conn.Exec(ctx, q.SQL, q.Args...); err != nil {
		return nil, err
	}
	return &models.DeleteResult{DeletedCount: matched}, nil
}

// GetSegments lists the active data parts overlapping [from, to),
// grouped by partition.
func (e *Engine) GetSegments(ctx context.Context, from, to time.Time) ([]models.Segment, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}

	const q = `
		SELECT partition, sum(rows), min(min_time), max(max_time)
		FROM system.parts
		WHERE database = currentDatabase() AND table = {table:String} AND active
		  AND max_time >= {from:DateTime} AND min_time < {to:DateTime}
		GROUP BY partition
		ORDER BY partition`

	rows, err := e.conn.Query(ctx, q,
		clickhouse.Named("table", e.cfg.Table),
		clickhouse.DateNamed("from", from.UTC(), clickhouse.Seconds),
		clickhouse.DateNamed("to", to.UTC(), clickhouse.Seconds))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []models.Segment
	for rows.Next() {
		var (
			s   models.Segment
			cnt uint64
		)
		if err := rows.Scan(&s.Name, &cnt, &s.From, &s.To); err != nil {
			return nil, err
		}
		s.RowCount = int64(cnt)
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// Capabilities describes the columnar engine type. Valid in any state.
// Deletes are asynchronous mutations, so SynchronousDeletes is false.
func (e *Engine) Capabilities() models.EngineCapabilities {
	return models.EngineCapabilities{
		FullTextSearch:     true,
		Transactions:       false,
		MaxBatchSize:       maxBatchSize,
		SynchronousDeletes: false,
	}
}

// HealthCheck pings the connection and reports round-trip latency.
func (e *Engine) HealthCheck(ctx context.Context) (*models.HealthStatus, error) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()

	status := &models.HealthStatus{Engine: "clickhouse"}
	if conn == nil {
		status.Error = models.ErrNotConnected.Error()
		return status, nil
	}

	start := time.Now()
	if err := conn.Ping(ctx); err != nil {
		status.Latency = time.Since(start)
		status.Error = err.Error()
		return status, nil
	}
	status.Latency = time.Since(start)
	status.Healthy = true
	return status, nil
}
