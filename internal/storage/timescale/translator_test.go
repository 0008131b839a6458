package timescale

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/logward-dev/logward/internal/storage/translate"
	"github.com/logward-dev/logward/pkg/models"
)

var testRange = models.TimeRange{
	From: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
}

func TestTranslateQueryBasic(t *testing.T) {
	tr := NewTranslator("log_records")

	q, err := tr.TranslateQuery(models.QueryParams{
		FilterSet: models.FilterSet{
			OrgIDs: []string{"acme"},
			Levels: []models.Level{models.LevelError, models.LevelCritical},
		},
		Range: testRange,
		Limit: 50,
	})
	if err != nil {
		t.Fatalf("TranslateQuery: %v", err)
	}

	for _, want := range []string{
		"FROM log_records",
		"org_id = $1",
		"level = ANY($2)",
		"ts >= $3",
		"ts < $4",
		"ORDER BY ts DESC, id DESC",
		"LIMIT $5",
	} {
		if !strings.Contains(q.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, q.SQL)
		}
	}

	// One extra row is requested so the engine can detect a next page.
	if got := q.Args[len(q.Args)-1]; got != 51 {
		t.Errorf("limit arg = %v, want 51", got)
	}
}

func TestTranslateQueryTimeRangeFlags(t *testing.T) {
	tr := NewTranslator("log_records")

	r := testRange
	r.FromExclusive = true
	r.ToInclusive = true
	q, err := tr.TranslateQuery(models.QueryParams{Range: r})
	if err != nil {
		t.Fatalf("TranslateQuery: %v", err)
	}
	if !strings.Contains(q.SQL, "ts > $1") || !strings.Contains(q.SQL, "ts <= $2") {
		t.Errorf("boundary operators not derived from flags:\n%s", q.SQL)
	}
}

func TestTranslateQueryCursor(t *testing.T) {
	tr := NewTranslator("log_records")
	cursor := translate.EncodeCursor(testRange.To, uuid.New())

	q, err := tr.TranslateQuery(models.QueryParams{
		Range:  testRange,
		Cursor: cursor,
		Offset: 40, // must be ignored in favor of the cursor
	})
	if err != nil {
		t.Fatalf("TranslateQuery: %v", err)
	}
	if !strings.Contains(q.SQL, "(ts, id) < (") {
		t.Errorf("descending cursor predicate missing:\n%s", q.SQL)
	}
	if strings.Contains(q.SQL, "OFFSET") {
		t.Errorf("offset applied despite cursor:\n%s", q.SQL)
	}

	q, err = tr.TranslateQuery(models.QueryParams{
		Range:  testRange,
		Cursor: cursor,
		Order:  models.OrderAsc,
	})
	if err != nil {
		t.Fatalf("TranslateQuery asc: %v", err)
	}
	if !strings.Contains(q.SQL, "(ts, id) > (") {
		t.Errorf("ascending cursor predicate missing:\n%s", q.SQL)
	}
}

func TestTranslateQueryMalformedCursorIgnored(t *testing.T) {
	tr := NewTranslator("log_records")

	q, err := tr.TranslateQuery(models.QueryParams{
		Range:  testRange,
		Cursor: "!!!not-a-cursor!!!",
		Offset: 20,
	})
	if err != nil {
		t.Fatalf("malformed cursor must not fail the query: %v", err)
	}
	if strings.Contains(q.SQL, "(ts, id)") {
		t.Errorf("keyset predicate built from malformed cursor:\n%s", q.SQL)
	}
	if !strings.Contains(q.SQL, "OFFSET") {
		t.Errorf("offset fallback not applied:\n%s", q.SQL)
	}
}

func TestTranslateQuerySearch(t *testing.T) {
	tr := NewTranslator("log_records")

	q, err := tr.TranslateQuery(models.QueryParams{
		Range:      testRange,
		Search:     "Connection REFUSED",
		SearchMode: models.SearchFulltext,
	})
	if err != nil {
		t.Fatalf("fulltext: %v", err)
	}
	if !strings.Contains(q.SQL, "search @@ plainto_tsquery('simple', $3)") {
		t.Errorf("fulltext predicate missing:\n%s", q.SQL)
	}
	if q.Args[2] != "connection refused" {
		t.Errorf("fulltext term not lowered: %v", q.Args[2])
	}

	q, err = tr.TranslateQuery(models.QueryParams{
		Range:      testRange,
		Search:     "50%_done",
		SearchMode: models.SearchSubstring,
	})
	if err != nil {
		t.Fatalf("substring: %v", err)
	}
	if !strings.Contains(q.SQL, "message ILIKE $3") {
		t.Errorf("substring predicate missing:\n%s", q.SQL)
	}
	if q.Args[2] != `%50\%\_done%` {
		t.Errorf("LIKE metacharacters not escaped: %v", q.Args[2])
	}
}

func TestTranslateQueryRejectsInvalidInput(t *testing.T) {
	tr := NewTranslator("log_records")

	cases := []models.QueryParams{
		{Range: testRange, FilterSet: models.FilterSet{Services: []string{}}},
		{Range: testRange, Limit: -1},
		{Range: testRange, Offset: -1},
		{},
	}
	for i, p := range cases {
		if _, err := tr.TranslateQuery(p); err == nil {
			t.Errorf("case %d: invalid params accepted", i)
		}
	}
}

func TestTranslateAggregate(t *testing.T) {
	tr := NewTranslator("log_records")

	q, err := tr.TranslateAggregate(models.AggregateParams{
		FilterSet: models.FilterSet{Services: []string{"api", "worker"}},
		Range:     testRange,
		Interval:  models.Interval1h,
	})
	if err != nil {
		t.Fatalf("TranslateAggregate: %v", err)
	}
	if !strings.Contains(q.SQL, "time_bucket($1::interval, ts)") {
		t.Errorf("time_bucket missing:\n%s", q.SQL)
	}
	if q.Args[0] != "1 hour" {
		t.Errorf("interval arg = %v, want \"1 hour\"", q.Args[0])
	}
	if !strings.Contains(q.SQL, "GROUP BY bucket, level ORDER BY bucket ASC") {
		t.Errorf("grouping/ordering missing:\n%s", q.SQL)
	}
}

func TestTranslateDistinctFieldGate(t *testing.T) {
	tr := NewTranslator("log_records")

	q, err := tr.TranslateDistinct(models.DistinctParams{
		Range: testRange,
		Field: "metadata.user_id",
	})
	if err != nil {
		t.Fatalf("TranslateDistinct: %v", err)
	}
	if !strings.Contains(q.SQL, "metadata->>'user_id'") {
		t.Errorf("metadata extraction missing:\n%s", q.SQL)
	}

	injections := []string{
		"metadata.x'; DROP TABLE log_records; --",
		"message) FROM log_records; --",
		"pg_sleep(10)",
	}
	for _, field := range injections {
		if _, err := tr.TranslateDistinct(models.DistinctParams{Range: testRange, Field: field}); err == nil {
			t.Errorf("field %q accepted", field)
		}
	}
}

func TestTranslateTopValues(t *testing.T) {
	tr := NewTranslator("log_records")

	q, err := tr.TranslateTopValues(models.TopValuesParams{
		Range: testRange,
		Field: "service",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("TranslateTopValues: %v", err)
	}
	if !strings.Contains(q.SQL, "GROUP BY value ORDER BY cnt DESC") {
		t.Errorf("ranking missing:\n%s", q.SQL)
	}
}

func TestTranslateDelete(t *testing.T) {
	tr := NewTranslator("log_records")

	q, err := tr.TranslateDelete(models.DeleteParams{Range: testRange})
	if err != nil {
		t.Fatalf("TranslateDelete: %v", err)
	}
	want := "DELETE FROM log_records WHERE ts >= $1 AND ts < $2"
	if q.SQL != want {
		t.Errorf("SQL = %q, want %q", q.SQL, want)
	}
	if len(q.Args) != 2 {
		t.Errorf("args = %v, want the two bounds", q.Args)
	}
}
