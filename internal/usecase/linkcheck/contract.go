package linkcheck

import (
	"context"
	"net/http"
	"time"

	"github.com/atelier-cloud/shelfdex/internal/domain"
)

// LinkSource lists records whose external links are due for a probe:
// never checked, or last checked before the cutoff.
type LinkSource interface {
	Eligible(ctx context.Context, cutoff time.Time, limit int) ([]domain.Record, error)
}

// LinkWriter persists probe outcomes.
type LinkWriter interface {
	UpsertHealth(ctx context.Context, results []domain.Link) error
}

// Doer executes HTTP requests. Satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
