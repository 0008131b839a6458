package timescale

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logward-dev/logward/internal/storage/lifecycle"
	"github.com/logward-dev/logward/internal/storage/translate"
	"github.com/logward-dev/logward/pkg/models"
)

const maxBatchSize = 10000

// Config holds the relational engine's connection parameters, or an
// injected pool. An injected pool is borrowed: never closed, never
// resized by this layer.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	Table          string
	SkipSchemaInit bool

	Pool *pgxpool.Pool
}

// Engine is the Postgres/TimescaleDB storage engine.
type Engine struct {
	cfg    Config
	tr     *Translator
	logger *slog.Logger

	mu    sync.Mutex
	pool  *pgxpool.Pool
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

func (e *Engine) dsn() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(e.cfg.Username, e.cfg.Password),
		Host:   e.cfg.Host + ":" + strconv.Itoa(e.cfg.Port),
		Path:   "/" + e.cfg.Database,
	}
	return u.String()
}

// Connect establishes the owned pool or verifies the injected one.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.State() {
	case lifecycle.Closed:
		return models.ErrClosed
	case lifecycle.Connected, lifecycle.Initialized:
		return nil
	}

	if e.cfg.Pool != nil {
		if err := e.cfg.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("pinging injected pool: %w", err)
		}
		e.pool = e.cfg.Pool
		e.owned = false
	} else {
		pool, err := pgxpool.New(ctx, e.dsn())
		if err != nil {
			return fmt.Errorf("creating pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("pinging database: %w", err)
		}
		e.pool = pool
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
		if err := initializeSchema(ctx, e.pool, e.cfg.Table); err != nil {
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
	return applyMigrations(ctx, e.pool, e.cfg.Table, version)
}

// Disconnect closes the pool only when this engine owns it.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.State() == lifecycle.Closed {
		return nil
	}
	e.state.Set(lifecycle.Closed)
	if e.owned && e.pool != nil {
		e.pool.Close()
	}
	e.pool = nil
	return nil
}

// prepareRows assigns ids (and timestamps where missing) and validates
// levels before anything reaches the database.
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

func metadataJSON(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

const insertSQL = `INSERT INTO %s (id, ts, org_id, project_id, service, level, message, metadata, trace_id, span_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// insertBatch writes all rows inside one transaction: either every
// record in the batch is durably stored or none are.
func (e *Engine) insertBatch(ctx context.Context, rows []models.StoredLogRecord) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning ingest transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(insertSQL, e.cfg.Table)
	b := &pgx.Batch{}
	for _, row := range rows {
		meta, err := metadataJSON(row.Metadata)
		if err != nil {
			return models.Validationf("metadata", "not serializable: %v", err)
		}
		b.Queue(stmt,
			row.ID, row.Timestamp.UTC(), row.OrgID, row.ProjectID, row.Service,
			string(row.Level), row.Message, meta,
			nullable(row.TraceID), nullable(row.SpanID))
	}

	br := tx.SendBatch(ctx, b)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
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

func scanRecord(rows pgx.Rows) (models.StoredLogRecord, error) {
	var (
		rec     models.StoredLogRecord
		level   string
		meta    []byte
		traceID *string
		spanID  *string
	)
	err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.OrgID, &rec.ProjectID,
		&rec.Service, &level, &rec.Message, &meta, &traceID, &spanID)
	if err != nil {
		return rec, err
	}
	rec.Level = models.Level(level)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return rec, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	if traceID != nil {
		rec.TraceID = *traceID
	}
	if spanID != nil {
		rec.SpanID = *spanID
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

	rows, err := e.pool.Query(ctx, q.SQL, q.Args...)
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

	rows, err := e.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []models.TimeBucket
	for rows.Next() {
		var (
			bucket time.Time
			level  string
			cnt    int64
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
		series[len(series)-1].Counts[models.Level(level)] = cnt
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &models.AggregateResult{Timeseries: series}, nil
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

	var count int64
	if err := e.pool.QueryRow(ctx, q.SQL, q.Args...).Scan(&count); err != nil {
		return nil, err
	}
	return &models.CountResult{Count: count}, nil
}

func (e *Engine) scanValues(ctx context.Context, q translate.NativeQuery) ([]string, error) {
	rows, err := e.pool.Query(ctx, q.SQL, q.Args...)
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
	return values, rows.Err()
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
	values, err := e.scanValues(ctx, q)
	if err != nil {
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

	rows, err := e.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []models.ValueCount
	for rows.Next() {
		var vc models.ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, err
		}
		values = append(values, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &models.TopValuesResult{Values: values}, nil
}

// DeleteByTimeRange removes rows in the range inside one transaction;
// the deleted rows are absent from any query issued after return.
func (e *Engine) DeleteByTimeRange(ctx context.Context, p models.DeleteParams) (*models.DeleteResult, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}
	q, err := e.tr.TranslateDelete(p)
	if err != nil {
		return nil, err
	}

	tag, err := e.pool.Exec(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	return &models.DeleteResult{DeletedCount: tag.RowsAffected()}, nil
}

// GetSegments lists the hypertable chunks overlapping [from, to). Row
// counts come from the planner statistics and are approximate.
func (e *Engine) GetSegments(ctx context.Context, from, to time.Time) ([]models.Segment, error) {
	if err := e.state.RequireInitialized(); err != nil {
		return nil, err
	}

	const q = `
		SELECT c.chunk_name, c.range_start, c.range_end,
		       COALESCE(cl.reltuples::bigint, -1)
		FROM timescaledb_information.chunks c
		LEFT JOIN pg_class cl ON cl.relname = c.chunk_name
		WHERE c.hypertable_name = $1 AND c.range_end > $2 AND c.range_start < $3
		ORDER BY c.range_start`

	rows, err := e.pool.Query(ctx, q, e.cfg.Table, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []models.Segment
	for rows.Next() {
		var s models.Segment
		if err := rows.Scan(&s.Name, &s.From, &s.To, &s.RowCount); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// Capabilities describes the relational engine type. Valid in any state.
func (e *Engine) Capabilities() models.EngineCapabilities {
	return models.EngineCapabilities{
		FullTextSearch:     true,
		Transactions:       true,
		MaxBatchSize:       maxBatchSize,
		SynchronousDeletes: true,
	}
}

// HealthCheck pings the pool and reports round-trip latency.
func (e *Engine) HealthCheck(ctx context.Context) (*models.HealthStatus, error) {
	e.mu.Lock()
	pool := e.pool
	e.mu.Unlock()

	status := &models.HealthStatus{Engine: "timescale"}
	if pool == nil {
		status.Error = models.ErrNotConnected.Error()
		return status, nil
	}

	start := time.Now()
	if err := pool.Ping(ctx); err != nil {
		status.Latency = time.Since(start)
		status.Error = err.Error()
		return status, nil
	}
	status.Latency = time.Since(start)
	status.Healthy = true
	return status, nil
}
