package models

import "time"

// SortOrder controls the direction of the (timestamp, id) sort.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// SearchMode selects how the free-text search term is matched.
type SearchMode string

const (
	// SearchFulltext matches the lower-cased term against the engine's
	// token index.
	SearchFulltext SearchMode = "fulltext"
	// SearchSubstring performs a case-insensitive substring match on the
	// raw message.
	SearchSubstring SearchMode = "substring"
)

// TimeRange is a mandatory time window. The zero flags give the half-open
// interval [From, To); set FromExclusive or ToInclusive for the other
// boundary shapes.
type TimeRange struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	FromExclusive bool      `json:"from_exclusive,omitempty"`
	ToInclusive   bool      `json:"to_inclusive,omitempty"`
}

// FilterSet holds the scalar-or-array dimension filters shared by all read
// operations. A nil slice means "no filter on this dimension"; an empty
// non-nil slice is a validation error, it would silently match nothing.
type FilterSet struct {
	OrgIDs     []string `json:"org_ids,omitempty"`
	ProjectIDs []string `json:"project_ids,omitempty"`
	Services   []string `json:"services,omitempty"`
	Levels     []Level  `json:"levels,omitempty"`
}

// QueryParams are the abstract parameters of a filtered, paginated query.
type QueryParams struct {
	FilterSet
	Range TimeRange `json:"range"`

	Search     string     `json:"search,omitempty"`
	SearchMode SearchMode `json:"search_mode,omitempty"`

	// Cursor is an opaque keyset cursor from a previous QueryResult. A
	// malformed cursor is treated as absent, never as an error. Offset is
	// the fallback used only when no cursor is supplied.
	Cursor string `json:"cursor,omitempty"`
	Offset int    `json:"offset,omitempty"`

	Limit int       `json:"limit,omitempty"`
	Order SortOrder `json:"order,omitempty"`
}

// QueryResult is one page of records. NextCursor is set iff more rows
// exist beyond Limit.
type QueryResult struct {
	Records    []StoredLogRecord `json:"records"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// CountParams selects the rows to count.
type CountParams struct {
	FilterSet
	Range      TimeRange  `json:"range"`
	Search     string     `json:"search,omitempty"`
	SearchMode SearchMode `json:"search_mode,omitempty"`
}

// CountResult is the outcome of a count operation.
type CountResult struct {
	Count int64 `json:"count"`
}

// DistinctParams selects the distinct values of one field. Field is either
// a physical column or "metadata.<key>".
type DistinctParams struct {
	FilterSet
	Range TimeRange `json:"range"`
	Field string    `json:"field"`
	Limit int       `json:"limit,omitempty"`
}

// DistinctResult holds the distinct values, ascending.
type DistinctResult struct {
	Values []string `json:"values"`
}

// TopValuesParams selects the most frequent values of one field.
type TopValuesParams struct {
	FilterSet
	Range TimeRange `json:"range"`
	Field string    `json:"field"`
	Limit int       `json:"limit,omitempty"`
}

// ValueCount is one entry of a top-values result.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// TopValuesResult holds values ordered by descending count.
type TopValuesResult struct {
	Values []ValueCount `json:"values"`
}

// DeleteParams selects the rows of a retention delete.
type DeleteParams struct {
	Range TimeRange `json:"range"`
}

// DeleteResult reports how many rows matched the delete. On engines with
// asynchronous mutations (see EngineCapabilities.SynchronousDeletes) the
// rows may remain visible briefly after the call returns.
type DeleteResult struct {
	DeletedCount int64 `json:"deleted_count"`
}
