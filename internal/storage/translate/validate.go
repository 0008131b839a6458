package translate

import (
	"regexp"
	"strings"

	"github.com/logward-dev/logward/pkg/models"
)

// physicalColumns is the allow-list of queryable columns. Together with
// the metadata key pattern it is the sole defense against SQL injection
// through dynamically named fields, so it must stay a hard gate shared by
// every translator.
var physicalColumns = map[string]bool{
	"id":         true,
	"timestamp":  true,
	"org_id":     true,
	"project_id": true,
	"service":    true,
	"level":      true,
	"message":    true,
	"trace_id":   true,
	"span_id":    true,
}

const metadataPrefix = "metadata."

// metadataKeyRe bounds metadata keys to a strict identifier shape. Dots
// are allowed for nested keys but the key must start with a letter or
// underscore and stay short.
var metadataKeyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]{0,62}$`)

// ValidateFieldName accepts the allow-listed physical columns and
// well-formed "metadata.<key>" fields, and rejects everything else.
func ValidateFieldName(field string) error {
	if physicalColumns[field] {
		return nil
	}
	if key, ok := strings.CutPrefix(field, metadataPrefix); ok && metadataKeyRe.MatchString(key) {
		return nil
	}
	return models.Validationf(field, "invalid field name")
}

// MetadataKey splits a validated field into its metadata key, or returns
// false for a physical column.
func MetadataKey(field string) (string, bool) {
	return strings.CutPrefix(field, metadataPrefix)
}

// ValidatePagination rejects negative limits and offsets.
func ValidatePagination(limit, offset int) error {
	if limit < 0 {
		return models.Validationf("limit", "must not be negative, got %d", limit)
	}
	if offset < 0 {
		return models.Validationf("offset", "must not be negative, got %d", offset)
	}
	return nil
}

// ValidateArrayFilter rejects empty (non-nil) array values: they would
// silently match zero rows and mask a caller mistake.
func ValidateArrayFilter[T any](column string, values []T) error {
	if values != nil && len(values) == 0 {
		return models.Validationf(column, "array filter must not be empty")
	}
	return nil
}

// ValidateTimeRange requires both bounds and forward ordering.
func ValidateTimeRange(r models.TimeRange) error {
	if r.From.IsZero() || r.To.IsZero() {
		return models.Validationf("range", "from and to are required")
	}
	if r.To.Before(r.From) {
		return models.Validationf("range", "to precedes from")
	}
	return nil
}

// ValidateFilterSet applies the array-filter rule to every dimension and
// checks the level enumeration.
func ValidateFilterSet(f models.FilterSet) error {
	if err := ValidateArrayFilter("org_ids", f.OrgIDs); err != nil {
		return err
	}
	if err := ValidateArrayFilter("project_ids", f.ProjectIDs); err != nil {
		return err
	}
	if err := ValidateArrayFilter("services", f.Services); err != nil {
		return err
	}
	if err := ValidateArrayFilter("levels", f.Levels); err != nil {
		return err
	}
	for _, l := range f.Levels {
		if !l.Valid() {
			return models.Validationf("levels", "unknown level %q", l)
		}
	}
	return nil
}

// ValidateQueryParams is the full pre-translation gate for query and
// count parameters.
func ValidateQueryParams(p models.QueryParams) error {
	if err := ValidateFilterSet(p.FilterSet); err != nil {
		return err
	}
	if err := ValidateTimeRange(p.Range); err != nil {
		return err
	}
	if err := ValidatePagination(p.Limit, p.Offset); err != nil {
		return err
	}
	if p.Search != "" {
		switch p.SearchMode {
		case models.SearchFulltext, models.SearchSubstring, "":
		default:
			return models.Validationf("search_mode", "unknown mode %q", p.SearchMode)
		}
	}
	switch p.Order {
	case models.OrderAsc, models.OrderDesc, "":
	default:
		return models.Validationf("order", "unknown order %q", p.Order)
	}
	return nil
}

// ValidateAggregateParams checks the aggregation window and interval.
func ValidateAggregateParams(p models.AggregateParams) error {
	if err := ValidateFilterSet(p.FilterSet); err != nil {
		return err
	}
	if err := ValidateTimeRange(p.Range); err != nil {
		return err
	}
	if _, err := models.ParseInterval(string(p.Interval)); err != nil {
		return models.Validationf("interval", "unknown interval %q", p.Interval)
	}
	return nil
}
