package snapshot

import (
	"context"

	"github.com/atelier-cloud/shelfdex/internal/domain"
)

// Repository defines the storage contract for saved filter snapshots.
type Repository interface {
	Save(ctx context.Context, snap domain.FilterSnapshot) error
	Get(ctx context.Context, id string) (domain.FilterSnapshot, error)
	List(ctx context.Context) ([]domain.FilterSnapshot, error)
	Delete(ctx context.Context, id string) error
}
