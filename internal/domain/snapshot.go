package domain

import (
	"time"

	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
)

// FilterSnapshot is a named, saved filter state that can be reapplied
// later. Names are labels, not identifiers: duplicates are allowed.
type FilterSnapshot struct {
	ID        string
	Name      string
	Filters   filter.Set
	CreatedAt time.Time
}
