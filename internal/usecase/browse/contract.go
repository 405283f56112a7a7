package browse

import (
	"context"

	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
)

// RecordStore defines the storage contract for catalog browsing.
type RecordStore interface {
	// Page runs a predicate-only search: facet and range filtering with a
	// deterministic field sort. Returns the page items and the total match
	// count.
	Page(ctx context.Context, f filter.Set, page int) ([]domain.ScoredRecord, int, error)

	// RankedPage runs a relevance-ranked full-text search constrained by
	// the same predicates. Returns the page items and the total match count.
	RankedPage(ctx context.Context, f filter.Set, page int) ([]domain.ScoredRecord, int, error)
}

// Executor runs one search for a filter state and page. Implemented by
// Service; sessions depend on this so tests can substitute a fake.
type Executor interface {
	Execute(ctx context.Context, f filter.Set, page int) (domain.SearchPage, error)
}
