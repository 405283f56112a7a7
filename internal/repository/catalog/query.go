package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/atelier-cloud/shelfdex/internal/db"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
)

// sortFields maps filter sort keys to sortable index fields.
var sortFields = map[filter.Sort]string{
	filter.SortCreatedAt: fieldCreatedAt,
	filter.SortName:      fieldName,
	filter.SortBrand:     fieldBrand,
	filter.SortSize:      fieldSize,
}

// predicateQuery translates a filter state into an FT.SEARCH query over
// facets and size bounds. The free-text query is deliberately excluded:
// the predicate path ignores it.
func predicateQuery(f filter.Set) string {
	var parts []string

	for field, value := range map[string]string{
		fieldType:     f.Type(),
		fieldBrand:    f.Brand(),
		fieldCategory: f.Category(),
		fieldStatus:   f.Status(),
	} {
		if value != filter.All {
			parts = append(parts, fmt.Sprintf("@%s:{%s}", field, db.EscapeTag(value)))
		}
	}

	if f.MinSize() != nil || f.MaxSize() != nil {
		minBound, maxBound := "-inf", "+inf"
		if v := f.MinSize(); v != nil {
			minBound = fmt.Sprintf("%g", *v)
		}
		if v := f.MaxSize(); v != nil {
			maxBound = fmt.Sprintf("%g", *v)
		}
		parts = append(parts, fmt.Sprintf("@%s:[%s %s]", fieldSize, minBound, maxBound))
	}

	if len(parts) == 0 {
		return "*"
	}
	// Sort for a deterministic query string regardless of map order.
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// rankedQuery translates a filter state into an FT.SEARCH query that
// combines the predicates with a scored text clause.
func rankedQuery(f filter.Set) string {
	textPart := fmt.Sprintf("@%s:(%s)", fieldText, db.EscapeQueryTerm(f.Query()))

	predicates := predicateQuery(f)
	if predicates == "*" {
		return textPart
	}
	return predicates + " " + textPart
}

// siblingsQuery matches every record of one product group.
func siblingsQuery(groupKey string) string {
	return fmt.Sprintf("@%s:{%s}", fieldGroup, db.EscapeTag(groupKey))
}

// eligibleLinksQuery matches records whose link was never probed or whose
// last probe predates the cutoff (unix milliseconds, exclusive).
func eligibleLinksQuery(cutoffMs int64) string {
	return fmt.Sprintf("(@%s:{unknown}) | @%s:[-inf (%d]",
		fieldLinkHealth, fieldLinkCheckedAt, cutoffMs)
}
