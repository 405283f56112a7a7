package browse

import (
	"context"
	"fmt"
	"time"

	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
	"github.com/atelier-cloud/shelfdex/internal/metrics"
)

// Service executes catalog searches, routing each filter state to the
// ranked or predicate path.
type Service struct {
	store RecordStore
}

// New creates a browse service.
func New(store RecordStore) *Service {
	return &Service{store: store}
}

// Execute runs one search and assembles the result page.
func (s *Service) Execute(
	ctx context.Context, f filter.Set, page int,
) (domain.SearchPage, error) {
	if page < 1 {
		return domain.SearchPage{}, fmt.Errorf("%w: page must be >= 1, got %d", domain.ErrInvalidInput, page)
	}

	mode := Plan(f)
	start := time.Now()

	var (
		items []domain.ScoredRecord
		total int
		err   error
	)
	switch mode {
	case ModeRanked:
		items, total, err = s.store.RankedPage(ctx, f, page)
	case ModePredicate:
		items, total, err = s.store.Page(ctx, f, page)
	}
	if err != nil {
		return domain.SearchPage{}, fmt.Errorf("%s search: %w", mode, err)
	}

	metrics.SearchesTotal.WithLabelValues(string(mode)).Inc()
	metrics.SearchDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())

	return domain.NewSearchPage(items, page, total), nil
}
