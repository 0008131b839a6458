// Package translate defines the engine-agnostic query translation
// contract: the Translator interface each backend implements, the shared
// validation gate every backend must pass caller input through, and the
// opaque keyset cursor codec.
package translate

import "github.com/logward-dev/logward/pkg/models"

// NativeQuery is an engine-native statement plus its bound arguments.
// Caller data only ever travels through Args, never through SQL.
type NativeQuery struct {
	SQL  string
	Args []any
}

// Translator turns abstract parameters into safe native queries. Every
// method validates its input via the shared validators before building
// SQL, so all backends reject unsafe input identically.
type Translator interface {
	TranslateQuery(p models.QueryParams) (NativeQuery, error)
	TranslateAggregate(p models.AggregateParams) (NativeQuery, error)
	TranslateCount(p models.CountParams) (NativeQuery, error)
	TranslateDistinct(p models.DistinctParams) (NativeQuery, error)
	TranslateTopValues(p models.TopValuesParams) (NativeQuery, error)
	TranslateDelete(p models.DeleteParams) (NativeQuery, error)
}

const (
	// DefaultLimit applies when QueryParams.Limit is zero.
	DefaultLimit = 100
	// MaxLimit caps a single page.
	MaxLimit = 1000
)

// EffectiveLimit resolves a caller limit against the defaults. Negative
// limits are rejected by ValidatePagination before this is reached.
func EffectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EffectiveOrder resolves the sort order, defaulting to newest-first.
func EffectiveOrder(o models.SortOrder) models.SortOrder {
	if o == models.OrderAsc {
		return models.OrderAsc
	}
	return models.OrderDesc
}
