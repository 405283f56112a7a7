package browse

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atelier-cloud/shelfdex/internal/clock"
	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
	"github.com/atelier-cloud/shelfdex/internal/metrics"
)

// DefaultDebounce is the settle window for filter changes. Keystrokes
// inside the window collapse into one search.
const DefaultDebounce = 300 * time.Millisecond

// Snapshot is an immutable view of session state handed to observers.
type Snapshot struct {
	Filters    filter.Set
	Items      []domain.ScoredRecord
	Page       int
	TotalCount int
	TotalPages int
	HasNext    bool
	Loading    bool
	Err        error
}

// Session is a stateful browsing engine over an Executor. Filter changes
// are debounced and searches supersede each other: only the result of the
// newest generation is ever applied, so state reflects last-writer-wins
// regardless of response ordering.
type Session struct {
	exec     Executor
	clk      clock.Clock
	log      *zap.Logger
	debounce time.Duration

	mu        sync.Mutex
	gen       uint64
	timer     clock.Timer
	cancel    context.CancelFunc
	closed    bool
	hasTarget bool // a debounced filter change is pending
	target    filter.Set

	filters    filter.Set
	items      []domain.ScoredRecord
	page       int
	totalCount int
	totalPages int
	hasNext    bool
	loading    bool
	err        error

	onChange func(Snapshot)
}

// NewSession creates a session. A non-positive debounce falls back to
// DefaultDebounce.
func NewSession(exec Executor, clk clock.Clock, log *zap.Logger, debounce time.Duration) *Session {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		exec:     exec,
		clk:      clk,
		log:      log,
		debounce: debounce,
		filters:  filter.Default(),
		page:     1,
	}
}

// OnChange registers the observer notified after every applied result or
// error. Delivery is synchronous from the session's worker goroutine, so
// the observer must not block. Must be called before the first SetFilters.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SetFilters schedules a search for a new filter state, resetting to page
// one. The search fires after the debounce window; repeated calls inside
// the window collapse into the last state, and every call restarts the
// window, even one repeating the pending state. Re-setting the already
// applied state with no change pending is a no-op.
func (s *Session) SetFilters(f filter.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// No-op only once a search has actually run for this state; a fresh
	// session still owes its first search.
	if !s.hasTarget && s.gen > 0 && f.Equal(s.filters) {
		return
	}
	s.target = f
	s.hasTarget = true

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clk.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || !f.Equal(s.target) {
			return
		}
		s.startLocked(f, 1, false)
	})
}

// Refresh re-runs the current filter state immediately, bypassing the
// debounce window.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.startLocked(s.filters, s.page, false)
}

// LoadMore appends the next page. A no-op while a request is in flight or
// when the last page is already loaded.
func (s *Session) LoadMore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.loading || !s.hasNext {
		return
	}
	s.startLocked(s.filters, s.page+1, true)
}

// State returns a copy of the current session state.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close cancels any pending or in-flight work. The session is unusable
// afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// startLocked launches a search generation, superseding any in-flight one.
// Caller holds s.mu.
func (s *Session) startLocked(f filter.Set, page int, appendItems bool) {
	s.gen++
	gen := s.gen

	if s.cancel != nil {
		s.cancel()
		metrics.SearchesSupersededTotal.Inc()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.filters = f
	s.target = f
	s.hasTarget = false
	s.loading = true

	go s.run(ctx, gen, f, page, appendItems)
}

func (s *Session) run(ctx context.Context, gen uint64, f filter.Set, page int, appendItems bool) {
	result, err := s.exec.Execute(ctx, f, page)

	s.mu.Lock()

	// A newer generation owns the session now; this result is stale.
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	s.loading = false

	if err != nil {
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		// Keep the last good items so the view does not blank out.
		s.err = err
		s.log.Warn("search failed",
			zap.String("filters", f.Key()),
			zap.Int("page", page),
			zap.Error(err))
		s.notifyUnlock()
		return
	}

	s.err = nil
	if appendItems {
		s.items = append(s.items, result.Items...)
	} else {
		s.items = result.Items
	}
	s.page = result.Page
	s.totalCount = result.TotalCount
	s.totalPages = result.TotalPages
	s.hasNext = result.HasNext
	s.notifyUnlock()
}

func (s *Session) snapshotLocked() Snapshot {
	items := make([]domain.ScoredRecord, len(s.items))
	copy(items, s.items)
	return Snapshot{
		Filters:    s.filters,
		Items:      items,
		Page:       s.page,
		TotalCount: s.totalCount,
		TotalPages: s.totalPages,
		HasNext:    s.hasNext,
		Loading:    s.loading,
		Err:        s.err,
	}
}

// notifyUnlock releases s.mu and delivers the snapshot taken under it.
func (s *Session) notifyUnlock() {
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
