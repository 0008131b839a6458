//go:build integration

package clickhouse

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/logward-dev/logward/pkg/models"
)

// setupIntegrationEngine connects to a local ClickHouse, skipping when
// unreachable.
// Run with: go test -tags=integration ./internal/storage/clickhouse -v
func setupIntegrationEngine(t *testing.T) *Engine {
	t.Helper()

	addr := os.Getenv("LOGWARD_CH_ADDR")
	if addr == "" {
		addr = "localhost:9000"
	}

	e := New(Config{
		Addr:     addr,
		Database: "default",
		Username: "default",
		Password: os.Getenv("LOGWARD_CH_PASSWORD"),
		Table:    fmt.Sprintf("log_records_it_%d", time.Now().UnixNano()),
	}, nil)

	ctx := context.Background()
	if err := e.Connect(ctx); err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() {
		e.conn.Exec(ctx, "DROP TABLE IF EXISTS "+e.cfg.Table)
		e.Disconnect(ctx)
	})
	return e
}

func record(ts time.Time, msg string) models.LogRecord {
	return models.LogRecord{
		Timestamp: ts,
		OrgID:     "acme",
		ProjectID: "checkout",
		Service:   "api",
		Level:     models.LevelInfo,
		Message:   msg,
		Metadata:  map[string]string{"region": "eu-west-1"},
	}
}

func TestEndToEndQueryScenario(t *testing.T) {
	e := setupIntegrationEngine(t)
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := e.Ingest(ctx, []models.LogRecord{
		record(t0, "first"),
		record(t0.Add(time.Second), "second"),
		record(t0.Add(2*time.Second), "third"),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	r := models.TimeRange{From: t0, To: t0.Add(3 * time.Second)}
	page1, err := e.Query(ctx, models.QueryParams{Range: r, Limit: 2})
	if err != nil {
		t.Fatalf("Query page 1: %v", err)
	}
	if len(page1.Records) != 2 || page1.NextCursor == "" {
		t.Fatalf("page 1 = %d records, cursor %q", len(page1.Records), page1.NextCursor)
	}
	if page1.Records[0].Message != "third" || page1.Records[1].Message != "second" {
		t.Errorf("page 1 not newest-first: %q, %q",
			page1.Records[0].Message, page1.Records[1].Message)
	}

	page2, err := e.Query(ctx, models.QueryParams{Range: r, Limit: 2, Cursor: page1.NextCursor})
	if err != nil {
		t.Fatalf("Query page 2: %v", err)
	}
	if len(page2.Records) != 1 || page2.Records[0].Message != "first" || page2.NextCursor != "" {
		t.Fatalf("page 2 = %+v, cursor %q", page2.Records, page2.NextCursor)
	}
}

func TestAggregateAndDistinct(t *testing.T) {
	e := setupIntegrationEngine(t)
	ctx := context.Background()

	ts := time.Date(2025, 6, 1, 14, 37, 12, 0, time.UTC)
	if _, err := e.Ingest(ctx, []models.LogRecord{record(ts, "one row")}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	r := models.TimeRange{From: ts.Add(-time.Hour), To: ts.Add(time.Hour)}
	agg, err := e.Aggregate(ctx, models.AggregateParams{Range: r, Interval: models.Interval1h})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	wantHour := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	if len(agg.Timeseries) != 1 || !agg.Timeseries[0].Start.Equal(wantHour) {
		t.Fatalf("timeseries = %+v, want one bucket at %v", agg.Timeseries, wantHour)
	}

	dist, err := e.Distinct(ctx, models.DistinctParams{Range: r, Field: "metadata.region"})
	if err != nil {
		t.Fatalf("Distinct: %v", err)
	}
	if len(dist.Values) != 1 || dist.Values[0] != "eu-west-1" {
		t.Fatalf("distinct metadata values = %v", dist.Values)
	}
}
