package browse

import (
	"strings"
	"unicode/utf8"

	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
)

// MinRankedQueryLen is the minimum trimmed query length that routes a
// search to the ranked path. Shorter queries match too broadly for
// relevance scoring to mean anything.
const MinRankedQueryLen = 3

// Mode identifies which search path a filter state routes to.
type Mode string

// Routing modes.
const (
	ModeRanked    Mode = "ranked"
	ModePredicate Mode = "predicate"
)

// Plan routes a filter state: ranked full-text search when the trimmed
// query is long enough, predicate filtering otherwise. Length is counted
// in runes so multi-byte input does not route early.
func Plan(f filter.Set) Mode {
	if utf8.RuneCountInString(strings.TrimSpace(f.Query())) >= MinRankedQueryLen {
		return ModeRanked
	}
	return ModePredicate
}
