// Package timescale implements the storage engine and query translator
// for a Postgres/TimescaleDB time-series backend.
package timescale

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/logward-dev/logward/internal/storage/translate"
	"github.com/logward-dev/logward/pkg/models"
)

// Translator builds positional-parameter SQL for the relational backend.
type Translator struct {
	table string
}

// NewTranslator returns a translator targeting the given table.
func NewTranslator(table string) *Translator {
	return &Translator{table: table}
}

// intervalSQL maps the bucketing enumeration to Postgres interval
// literals. Keyed by enum, never by caller data.
var intervalSQL = map[models.Interval]string{
	models.Interval1m:  "1 minute",
	models.Interval5m:  "5 minutes",
	models.Interval15m: "15 minutes",
	models.Interval1h:  "1 hour",
	models.Interval6h:  "6 hours",
	models.Interval1d:  "1 day",
	models.Interval1w:  "1 week",
}

// argList accumulates bound arguments and hands out $n placeholders.
type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return "$" + strconv.Itoa(len(a.args))
}

// fieldExpr maps a validated abstract field to its SQL expression. The
// metadata key has passed the strict identifier pattern, which excludes
// quoting characters, so embedding it is safe.
func fieldExpr(field string) string {
	if key, ok := translate.MetadataKey(field); ok {
		return "metadata->>'" + key + "'"
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

// escapeLike escapes LIKE metacharacters so the search term matches
// literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func eqOrAny(column string, values []string, args *argList) string {
	if len(values) == 1 {
		return column + " = " + args.add(values[0])
	}
	return column + " = ANY(" + args.add(values) + ")"
}

// filterConditions renders the dimension filters and time range. The
// range operators come from the inclusive/exclusive flags.
func filterConditions(f models.FilterSet, r models.TimeRange, args *argList) []string {
	var conds []string
	if f.OrgIDs != nil {
		conds = append(conds, eqOrAny("org_id", f.OrgIDs, args))
	}
	if f.ProjectIDs != nil {
		conds = append(conds, eqOrAny("project_id", f.ProjectIDs, args))
	}
	if f.Services != nil {
		conds = append(conds, eqOrAny("service", f.Services, args))
	}
	if f.Levels != nil {
		conds = append(conds, eqOrAny("level", levelStrings(f.Levels), args))
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
		"ts "+fromOp+" "+args.add(r.From),
		"ts "+toOp+" "+args.add(r.To))
	return conds
}

func searchCondition(term string, mode models.SearchMode, args *argList) string {
	if mode == models.SearchSubstring {
		return "message ILIKE " + args.add("%"+escapeLike(term)+"%")
	}
	// Fulltext matches the lower-cased term against the precomputed
	// search vector.
	return "search @@ plainto_tsquery('simple', " + args.add(strings.ToLower(term)) + ")"
}

const selectColumns = "id, ts, org_id, project_id, service, level, message, metadata, trace_id, span_id"

// TranslateQuery builds the filtered, keyset-paginated page query. It
// requests limit+1 rows so the engine can detect a further page without
// a count query.
func (t *Translator) TranslateQuery(p models.QueryParams) (translate.NativeQuery, error) {
	if err := translate.ValidateQueryParams(p); err != nil {
		return translate.NativeQuery{}, err
	}

	args := &argList{}
	conds := filterConditions(p.FilterSet, p.Range, args)
	if p.Search != "" {
		conds = append(conds, searchCondition(p.Search, p.SearchMode, args))
	}

	order := translate.EffectiveOrder(p.Order)
	limit := translate.EffectiveLimit(p.Limit)

	var sb strings.Builder
	sb.WriteString("SELECT " + selectColumns + " FROM " + t.table)
	sb.WriteString(" WHERE " + strings.Join(conds, " AND "))

	// Keyset pagination is stable under concurrent inserts; offset is
	// only the fallback when no cursor was supplied.
	useOffset := true
	if cur, ok := translate.DecodeCursor(p.Cursor); ok {
		cmp := "<"
		if order == models.OrderAsc {
			cmp = ">"
		}
		sb.WriteString(fmt.Sprintf(" AND (ts, id) %s (%s, %s)",
			cmp, args.add(cur.Timestamp), args.add(cur.ID)))
		useOffset = false
	}

	dir := "DESC"
	if order == models.OrderAsc {
		dir = "ASC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY ts %s, id %s", dir, dir))
	sb.WriteString(" LIMIT " + args.add(limit+1))
	if useOffset && p.Offset > 0 {
		sb.WriteString(" OFFSET " + args.add(p.Offset))
	}

	return translate.NativeQuery{SQL: sb.String(), Args: args.args}, nil
}

// TranslateAggregate buckets rows with time_bucket and groups by
// (bucket, level), ascending.
func (t *Translator) TranslateAggregate(p models.AggregateParams) (translate.NativeQuery, error) {
	if err := translate.ValidateAggregateParams(p); err != nil {
		return translate.NativeQuery{}, err
	}

	args := &argList{}
	bucket := "time_bucket(" + args.add(intervalSQL[p.Interval]) + "::interval, ts)"
	conds := filterConditions(p.FilterSet, p.Range, args)

	sql := "SELECT " + bucket + " AS bucket, level, count(*) AS cnt FROM " + t.table +
		" WHERE " + strings.Join(conds, " AND ") +
		" GROUP BY bucket, level ORDER BY bucket ASC, level ASC"
	return translate.NativeQuery{SQL: sql, Args: args.args}, nil
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

	args := &argList{}
	conds := filterConditions(p.FilterSet, p.Range, args)
	if p.Search != "" {
		conds = append(conds, searchCondition(p.Search, p.SearchMode, args))
	}

	sql := "SELECT count(*) FROM " + t.table + " WHERE " + strings.Join(conds, " AND ")
	return translate.NativeQuery{SQL: sql, Args: args.args}, nil
}

// TranslateDistinct lists the distinct non-null values of one validated
// field, ascending.
func (t *Translator) TranslateDistinct(p models.DistinctParams) (translate.NativeQuery, error) {
	if err := translate.ValidateFieldName(p.Field); err != nil {
		return translate.NativeQuery{}, err
	}
	if err := translate.ValidateFilterSet(p.FilterSet); err != nil {
		return translate.NativeQuery{}, err
	}
	if err := translate.ValidateTimeRange(p.Range); err != nil {
		return translate.NativeQuery{}, err
	}
	if err := translate.ValidatePagination(p.Limit, 0); err != nil {
		return translate.NativeQuery{}, err
	}

	args := &argList{}
	expr := fieldExpr(p.Field)
	conds := filterConditions(p.FilterSet, p.Range, args)
	conds = append(conds, expr+" IS NOT NULL")

	sql := "SELECT DISTINCT " + expr + "::text AS value FROM " + t.table +
		" WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY value ASC LIMIT " + args.add(translate.EffectiveLimit(p.Limit))
	return translate.NativeQuery{SQL: sql, Args: args.args}, nil
}

// TranslateTopValues ranks the values of one validated field by
// descending frequency.
func (t *Translator) TranslateTopValues(p models.TopValuesParams) (translate.NativeQuery, error) {
	if err := translate.ValidateFieldName(p.Field); err != nil {
		return translate.NativeQuery{}, err
	}
	if err := translate.ValidateFilterSet(p.FilterSet); err != nil {
		return translate.NativeQuery{}, err
	}
	if err := translate.ValidateTimeRange(p.Range); err != nil {
		return translate.NativeQuery{}, err
	}
	if err := translate.ValidatePagination(p.Limit, 0); err != nil {
		return translate.NativeQuery{}, err
	}

	args := &argList{}
	expr := fieldExpr(p.Field)
	conds := filterConditions(p.FilterSet, p.Range, args)
	conds = append(conds, expr+" IS NOT NULL")

	sql := "SELECT " + expr + "::text AS value, count(*) AS cnt FROM " + t.table +
		" WHERE " + strings.Join(conds, " AND ") +
		" GROUP BY value ORDER BY cnt DESC, value ASC LIMIT " + args.add(translate.EffectiveLimit(p.Limit))
	return translate.NativeQuery{SQL: sql, Args: args.args}, nil
}

// TranslateDelete builds the transactional range delete used by
// retention.
func (t *Translator) TranslateDelete(p models.DeleteParams) (translate.NativeQuery, error) {
	if err := translate.ValidateTimeRange(p.Range); err != nil {
		return translate.NativeQuery{}, err
	}

	args := &argList{}
	fromOp := ">="
	if p.Range.FromExclusive {
		fromOp = ">"
	}
	toOp := "<"
	if p.Range.ToInclusive {
		toOp = "<="
	}
	sql := "DELETE FROM " + t.table +
		" WHERE ts " + fromOp + " " + args.add(p.Range.From) +
		" AND ts " + toOp + " " + args.add(p.Range.To)
	return translate.NativeQuery{SQL: sql, Args: args.args}, nil
}
