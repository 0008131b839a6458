package clickhouse

import (
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/logward-dev/logward/internal/storage/translate"
	"github.com/logward-dev/logward/pkg/models"
)

// Translator builds named-parameter SQL for the columnar backend. Types
// are explicit at the wire level ({name:Type} placeholders) rather than
// inferred.
type Translator struct {
	table string
}

// NewTranslator returns a translator targeting the given table.
func NewTranslator(table string) *Translator {
	return &Translator{table: table}
}

// intervalSQL maps the bucketing enumeration to INTERVAL literals. Keyed
// by enum, never by caller data.
var intervalSQL = map[models.Interval]string{
	models.Interval1m:  "INTERVAL 1 MINUTE",
	models.Interval5m:  "INTERVAL 5 MINUTE",
	models.Interval15m: "INTERVAL 15 MINUTE",
	models.Interval1h:  "INTERVAL 1 HOUR",
	models.Interval6h:  "INTERVAL 6 HOUR",
	models.Interval1d:  "INTERVAL 1 DAY",
	models.Interval1w:  "INTERVAL 1 WEEK",
}

// namedArgs accumulates clickhouse named parameters.
type namedArgs struct {
	args []any
}

func (a *namedArgs) str(name, v string) string {
	a.args = append(a.args, clickhouse.Named(name, v))
	return "{" + name + ":String}"
}

func (a *namedArgs) strs(name string, v []string) string {
	a.args = append(a.args, clickhouse.Named(name, v))
	return "{" + name + ":Array(String)}"
}

func (a *namedArgs) any(name, chType string, v any) string {
	a.args = append(a.args, clickhouse.Named(name, v))
	return "{" + name + ":" + chType + "}"
}

// fieldExpr maps a validated abstract field to its SQL expression.
// Metadata is a JSON string column, so dynamic keys go through
// JSONExtractString; the key has passed the strict identifier pattern,
// which excludes quoting characters.
func fieldExpr(field string) string {
	if key, ok := translate.MetadataKey(field); ok {
		return "JSONExtractString(metadata, '" + key + "')"
	}
	if field == "timestamp" {
		return "ts"
	}
	return field
}

func levelStrings(levels []models.Level) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}

func (a *namedArgs) membership(column, name string, values []string) string {
	if len(values) == 1 {
		return column + " = " + a.str(name, values[0])
	}
	return column + " IN " + a.strs(name, values)
}

func (a *namedArgs) filterConditions(f models.FilterSet, r models.TimeRange) []string {
	var conds []string
	if f.OrgIDs != nil {
		conds = append(conds, a.membership("org_id", "org_ids", f.OrgIDs))
	}
	if f.ProjectIDs != nil {
		conds = append(conds, a.membership("project_id", "project_ids", f.ProjectIDs))
	}
	if f.Services != nil {
		conds = append(conds, a.membership("service", "services", f.Services))
	}
	if f.Levels != nil {
		conds = append(conds, a.membership("level", "levels", levelStrings(f.Levels)))
	}

	fromOp := ">="
	if r.FromExclusive {
		fromOp = ">"
	}
	toOp := "<"
	if r.ToInclusive {
		toOp = "<="
	}
	conds = append(conds,
		"ts "+fromOp+" "+a.any("from", "DateTime64(9)", r.From.UTC()),
		"ts "+toOp+" "+a.any("to", "DateTime64(9)", r.To.UTC()))
	return conds
}

func (a *namedArgs) searchCondition(term string, mode models.SearchMode) string {
	if mode == models.SearchSubstring {
		// Locale-aware case-insensitive substring position.
		return "positionCaseInsensitiveUTF8(message, " + a.str("search", term) + ") > 0"
	}
	// Token match over the lower-cased message.
	return "hasToken(lowerUTF8(message), " + a.str("search", strings.ToLower(term)) + ")"
}

const selectColumns = "id, ts, org_id, project_id, service, level, message, metadata, trace_id, span_id"

// TranslateQuery builds the filtered, keyset-paginated page query,
// requesting limit+1 rows so the engine can detect a further page.
func (t *Translator) TranslateQuery(p models.QueryParams) (translate.NativeQuery, error) {
	if err := translate.ValidateQueryParams(p); err != nil {
		return translate.NativeQuery{}, err
	}

	a := &namedArgs{}
	conds := a.filterConditions(p.FilterSet, p.Range)
	if p.Search != "" {
		conds = append(conds, a.searchCondition(p.Search, p.SearchMode))
	}

	order := translate.EffectiveOrder(p.Order)
	limit := translate.EffectiveLimit(p.Limit)

	var sb strings.Builder
	sb.WriteString("SELECT " + selectColumns + " FROM " + t.table)
	sb.WriteString(" WHERE " + strings.Join(conds, " AND "))

	useOffset := true
	if cur, ok := translate.DecodeCursor(p.Cursor); ok {
		cmp := "<"
		if order == models.OrderAsc {
			cmp = ">"
		}
		sb.WriteString(fmt.Sprintf(" AND (ts, id) %s (%s, %s)",
			cmp,
			a.any("cursor_ts", "DateTime64(9)", cur.Timestamp.UTC()),
			a.any("cursor_id", "UUID", cur.ID)))
		useOffset = false
	}

	dir := "DESC"
	if order == models.OrderAsc {
		dir = "ASC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY ts %s, id %s", dir, dir))
	sb.WriteString(" LIMIT " + a.any("limit", "UInt64", uint64(limit+1)))
	if useOffset && p.Offset > 0 {
		sb.WriteString(" OFFSET " + a.any("offset", "UInt64", uint64(p.Offset)))
	}

	return translate.NativeQuery{SQL: sb.String(), Args: a.args}, nil
}

// TranslateAggregate buckets rows with toStartOfInterval and groups by
// (bucket, level), ascending.
func (t *Translator) TranslateAggregate(p models.AggregateParams) (translate.NativeQuery, error) {
	if err := translate.ValidateAggregateParams(p); err != nil {
		return translate.NativeQuery{}, err
	}

	a := &namedArgs{}
	conds := a.filterConditions(p.FilterSet, p.Range)

	sql := "SELECT toStartOfInterval(ts, " + intervalSQL[p.Interval] + ") AS bucket, level, count() AS cnt" +
		" FROM " + t.table +
		" WHERE " + strings.Join(conds, " AND ") +
		" GROUP BY bucket, level ORDER BY bucket ASC, level ASC"
	return translate.NativeQuery{SQL: sql, Args: a.args}, nil
}

// TranslateCount builds the matching-row count query.
func (t *Translator) TranslateCount(p models.CountParams) (translate.NativeQuery, error) {
	q := models.QueryParams{
		FilterSet:  p.FilterSet,
		Range:      p.Range,
		Search:     p.Search,
		SearchMode: p.SearchMode,
	}
	if err := translate.ValidateQueryParams(q); err != nil {
		return translate.NativeQuery{}, err
	}

	a := &namedArgs{}
	conds := a.filterConditions(p.FilterSet, p.Range)
	if p.Search != "" {
		conds = append(conds, a.searchCondition(p.Search, p.SearchMode))
	}

	sql := "SELECT count() FROM " + t.table + " WHERE " + strings.Join(conds, " AND ")
	return translate.NativeQuery{SQL: sql, Args: a.args}, nil
}

func (t *Translator) validateFieldParams(field string, f models.FilterSet, r models.TimeRange, limit int) error {
	if err := translate.ValidateFieldName(field); err != nil {
		return err
	}
	if err := translate.ValidateFilterSet(f); err != nil {
		return err
	}
	if err := translate.ValidateTimeRange(r); err != nil {
		return err
	}
	return translate.ValidatePagination(limit, 0)
}

// TranslateDistinct lists the distinct non-empty values of one validated
// field, ascending.
func (t *Translator) TranslateDistinct(p models.DistinctParams) (translate.NativeQuery, error) {
	if err := t.validateFieldParams(p.Field, p.FilterSet, p.Range, p.Limit); err != nil {
		return translate.NativeQuery{}, err
	}

	a := &namedArgs{}
	expr := fieldExpr(p.Field)
	conds := a.filterConditions(p.FilterSet, p.Range)
	conds = append(conds, "value != ''")

	sql := "SELECT DISTINCT toString(" + expr + ") AS value FROM " + t.table +
		" WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY value ASC LIMIT " + a.any("limit", "UInt64", uint64(translate.EffectiveLimit(p.Limit)))
	return translate.NativeQuery{SQL: sql, Args: a.args}, nil
}

// TranslateTopValues ranks the values of one validated field by
// descending frequency.
func (t *Translator) TranslateTopValues(p models.TopValuesParams) (translate.NativeQuery, error) {
	if err := t.validateFieldParams(p.Field, p.FilterSet, p.Range, p.Limit); err != nil {
		return translate.NativeQuery{}, err
	}

	a := &namedArgs{}
	expr := fieldExpr(p.Field)
	conds := a.filterConditions(p.FilterSet, p.Range)
	conds = append(conds, "value != ''")

	sql := "SELECT toString(" + expr + ") AS value, count() AS cnt FROM " + t.table +
		" WHERE " + strings.Join(conds, " AND ") +
		" GROUP BY value ORDER BY cnt DESC, value ASC" +
		" LIMIT " + a.any("limit", "UInt64", uint64(translate.EffectiveLimit(p.Limit)))
	return translate.NativeQuery{SQL: sql, Args: a.args}, nil
}

// TranslateDelete builds the range delete as a lightweight mutation.
// The mutation is applied asynchronously by the engine; capabilities
// advertise this to callers.
func (t *Translator) TranslateDelete(p models.DeleteParams) (translate.NativeQuery, error) {
	if err := translate.ValidateTimeRange(p.Range); err != nil {
		return translate.NativeQuery{}, err
	}

	a := &namedArgs{}
	fromOp := ">="
	if p.Range.FromExclusive {
		fromOp = ">"
	}
	toOp := "<"
	if p.Range.ToInclusive {
		toOp = "<="
	}
	sql := "ALTER TABLE " + t.table + " DELETE WHERE ts " + fromOp + " " +
		a.any("from", "DateTime64(9)", p.Range.From.UTC()) +
		" AND ts " + toOp + " " + a.any("to", "DateTime64(9)", p.Range.To.UTC())
	return translate.NativeQuery{SQL: sql, Args: a.args}, nil
}
