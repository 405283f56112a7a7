package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// IndexChecker checks that the catalog search index is queryable.
type IndexChecker interface {
	CheckIndex(ctx context.Context) error
}
