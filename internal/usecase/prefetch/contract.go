package prefetch

import (
	"context"

	"github.com/atelier-cloud/shelfdex/internal/domain"
)

// Fetcher loads the sibling variants of a product group from storage.
type Fetcher interface {
	Siblings(ctx context.Context, groupKey string) ([]domain.Record, error)
}
