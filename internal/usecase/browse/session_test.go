package browse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/atelier-cloud/shelfdex/internal/clock"
	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
)

// countingExec records every Execute call and answers immediately.
type countingExec struct {
	mu    sync.Mutex
	calls []string
	pages []int
	total int
	err   error
}

func (c *countingExec) Execute(_ context.Context, f filter.Set, page int) (domain.SearchPage, error) {
	c.mu.Lock()
	c.calls = append(c.calls, f.Query())
	c.pages = append(c.pages, page)
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return domain.SearchPage{}, err
	}
	n := domain.PageSize
	if rem := c.total - (page-1)*domain.PageSize; rem < n {
		n = rem
	}
	if n < 0 {
		n = 0
	}
	items := make([]domain.ScoredRecord, n)
	for i := range items {
		items[i] = domain.ScoredRecord{Record: domain.Record{
			ID: fmt.Sprintf("p%d-%d", page, i),
		}}
	}
	return domain.NewSearchPage(items, page, c.total), nil
}

func (c *countingExec) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func waitSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session notification")
		return Snapshot{}
	}
}

func TestSession_DebounceCollapsesBurstIntoOneSearch(t *testing.T) {
	exec := &countingExec{total: 5}
	clk := clock.NewMock()
	s := NewSession(exec, clk, nil, DefaultDebounce)
	defer s.Close()

	notified := make(chan Snapshot, 16)
	s.OnChange(func(snap Snapshot) { notified <- snap })

	// Ten keystrokes, 100ms apart: each one re-arms the 300ms window.
	for i := 0; i < 10; i++ {
		s.SetFilters(mustFilter(t, fmt.Sprintf("query %d", i)))
		clk.Advance(100 * time.Millisecond)
	}
	if got := exec.callCount(); got != 0 {
		t.Fatalf("expected no search before the window settles, got %d", got)
	}

	clk.Advance(300 * time.Millisecond)
	snap := waitSnapshot(t, notified)

	if got := exec.callCount(); got != 1 {
		t.Fatalf("expected exactly 1 search, got %d", got)
	}
	if exec.calls[0] != "query 9" {
		t.Errorf("expected the last state to win, got query %q", exec.calls[0])
	}
	if snap.Filters.Query() != "query 9" {
		t.Errorf("snapshot carries stale filters: %q", snap.Filters.Query())
	}
}

func TestSession_EqualFilterStateIsNoOp(t *testing.T) {
	exec := &countingExec{total: 5}
	clk := clock.NewMock()
	s := NewSession(exec, clk, nil, DefaultDebounce)
	defer s.Close()

	notified := make(chan Snapshot, 16)
	s.OnChange(func(snap Snapshot) { notified <- snap })

	f := mustFilter(t, "sofa")
	s.SetFilters(f)
	s.SetFilters(f)
	clk.Advance(DefaultDebounce)
	waitSnapshot(t, notified)

	// Re-setting the already applied state must not search again.
	s.SetFilters(f)
	clk.Advance(DefaultDebounce)

	if got := exec.callCount(); got != 1 {
		t.Fatalf("expected 1 search for identical states, got %d", got)
	}
}

func TestSession_RepeatingPendingStateRestartsDebounce(t *testing.T) {
	exec := &countingExec{total: 5}
	clk := clock.NewMock()
	s := NewSession(exec, clk, nil, DefaultDebounce)
	defer s.Close()

	notified := make(chan Snapshot, 16)
	s.OnChange(func(snap Snapshot) { notified <- snap })

	// Typing back to the pending state (type, delete, retype) must count
	// the settle window from the last keystroke, not the first.
	f := mustFilter(t, "armchair")
	s.SetFilters(f)
	clk.Advance(200 * time.Millisecond)
	s.SetFilters(f)
	clk.Advance(200 * time.Millisecond)

	if got := exec.callCount(); got != 0 {
		t.Fatalf("expected no search 200ms into the restarted window, got %d", got)
	}

	clk.Advance(100 * time.Millisecond)
	waitSnapshot(t, notified)
	if got := exec.callCount(); got != 1 {
		t.Fatalf("expected exactly 1 search after the window settled, got %d", got)
	}
}

func TestSession_FirstSearchRunsForDefaultFilters(t *testing.T) {
	exec := &countingExec{total: 1}
	clk := clock.NewMock()
	s := NewSession(exec, clk, nil, DefaultDebounce)
	defer s.Close()

	notified := make(chan Snapshot, 16)
	s.OnChange(func(snap Snapshot) { notified <- snap })

	// A fresh session starts on the default state, but the initial search
	// for it must still run.
	s.SetFilters(filter.Default())
	clk.Advance(DefaultDebounce)
	waitSnapshot(t, notified)

	if got := exec.callCount(); got != 1 {
		t.Fatalf("expected the initial default-state search, got %d", got)
	}
}

// gatedExec blocks every Execute until the test releases its gate,
// ignoring context cancellation so stale generations can resolve late
// with a successful result. Gates are keyed by query so the test controls
// completion order.
type gatedExec struct {
	mu      sync.Mutex
	started chan string
	gates   map[string]chan domain.SearchPage
}

func newGatedExec() *gatedExec {
	return &gatedExec{
		started: make(chan string, 8),
		gates:   make(map[string]chan domain.SearchPage),
	}
}

func (g *gatedExec) gate(query string) chan domain.SearchPage {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[query]
	if !ok {
		ch = make(chan domain.SearchPage, 1)
		g.gates[query] = ch
	}
	return ch
}

func (g *gatedExec) Execute(_ context.Context, f filter.Set, _ int) (domain.SearchPage, error) {
	g.started <- f.Query()
	return <-g.gate(f.Query()), nil
}

func TestSession_LastWriterWinsWhenResponsesArriveOutOfOrder(t *testing.T) {
	exec := newGatedExec()
	clk := clock.NewMock()
	s := NewSession(exec, clk, nil, DefaultDebounce)
	defer s.Close()

	notified := make(chan Snapshot, 16)
	s.OnChange(func(snap Snapshot) { notified <- snap })

	s.SetFilters(mustFilter(t, "request A"))
	clk.Advance(DefaultDebounce)
	if q := <-exec.started; q != "request A" {
		t.Fatalf("expected request A to start, got %q", q)
	}

	s.SetFilters(mustFilter(t, "request B"))
	clk.Advance(DefaultDebounce)
	if q := <-exec.started; q != "request B" {
		t.Fatalf("expected request B to start, got %q", q)
	}

	itemsB := []domain.ScoredRecord{{Record: domain.Record{ID: "b"}}}
	itemsA := []domain.ScoredRecord{{Record: domain.Record{ID: "a"}}}

	// B resolves first and is applied.
	exec.gate("request B") <- domain.NewSearchPage(itemsB, 1, 1)
	snap := waitSnapshot(t, notified)
	if len(snap.Items) != 1 || snap.Items[0].ID != "b" {
		t.Fatalf("expected items from B, got %+v", snap.Items)
	}

	// A resolves late; its result must be discarded.
	exec.gate("request A") <- domain.NewSearchPage(itemsA, 1, 1)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		got := s.State()
		if len(got.Items) != 1 || got.Items[0].ID != "b" {
			t.Fatalf("stale result overwrote newer state: %+v", got.Items)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_LoadMoreAppendsNextPage(t *testing.T) {
	exec := &countingExec{total: 45}
	clk := clock.NewMock()
	s := NewSession(exec, clk, nil, DefaultDebounce)
	defer s.Close()

	notified := make(chan Snapshot, 16)
	s.OnChange(func(snap Snapshot) { notified <- snap })

	s.SetFilters(mustFilter(t, "chair"))
	clk.Advance(DefaultDebounce)
	snap := waitSnapshot(t, notified)
	if len(snap.Items) != 20 || !snap.HasNext {
		t.Fatalf("expected full first page with more available, got %d items hasNext=%v", len(snap.Items), snap.HasNext)
	}

	s.LoadMore()
	snap = waitSnapshot(t, notified)
	if len(snap.Items) != 40 {
		t.Fatalf("expected 40 items after load more, got %d", len(snap.Items))
	}
	if snap.Page != 2 {
		t.Errorf("expected page 2, got %d", snap.Page)
	}
	if snap.Items[0].ID != "p1-0" || snap.Items[20].ID != "p2-0" {
		t.Error("expected pages appended in order")
	}

	s.LoadMore()
	snap = waitSnapshot(t, notified)
	if len(snap.Items) != 45 || snap.HasNext {
		t.Fatalf("expected all 45 items loaded, got %d hasNext=%v", len(snap.Items), snap.HasNext)
	}

	// Last page reached: further calls are no-ops.
	s.LoadMore()
	if got := exec.callCount(); got != 3 {
		t.Errorf("expected 3 searches total, got %d", got)
	}
}

func TestSession_LoadMoreIgnoredWhileInFlight(t *testing.T) {
	exec := newGatedExec()
	clk := clock.NewMock()
	s := NewSession(exec, clk, nil, DefaultDebounce)
	defer s.Close()

	notified := make(chan Snapshot, 16)
	s.OnChange(func(snap Snapshot) { notified <- snap })

	s.SetFilters(mustFilter(t, "lamp"))
	clk.Advance(DefaultDebounce)
	<-exec.started

	// In flight: LoadMore must not start a second request.
	s.LoadMore()

	items := []domain.ScoredRecord{{Record: domain.Record{ID: "x"}}}
	exec.gate("lamp") <- domain.NewSearchPage(items, 1, 100)
	waitSnapshot(t, notified)

	select {
	case q := <-exec.started:
		t.Fatalf("unexpected second request for %q", q)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_ErrorKeepsLastGoodItems(t *testing.T) {
	exec := &countingExec{total: 5}
	clk := clock.NewMock()
	s := NewSession(exec, clk, nil, DefaultDebounce)
	defer s.Close()

	notified := make(chan Snapshot, 16)
	s.OnChange(func(snap Snapshot) { notified <- snap })

	s.SetFilters(mustFilter(t, "desk"))
	clk.Advance(DefaultDebounce)
	snap := waitSnapshot(t, notified)
	if len(snap.Items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(snap.Items))
	}

	exec.mu.Lock()
	exec.err = errors.New("index offline")
	exec.mu.Unlock()

	s.Refresh()
	snap = waitSnapshot(t, notified)
	if snap.Err == nil {
		t.Fatal("expected error to surface")
	}
	if len(snap.Items) != 5 {
		t.Errorf("error must not discard last good items, got %d", len(snap.Items))
	}
}

func TestSession_CloseStopsPendingWork(t *testing.T) {
	exec := &countingExec{total: 5}
	clk := clock.NewMock()
	s := NewSession(exec, clk, nil, DefaultDebounce)

	s.SetFilters(mustFilter(t, "shelf"))
	s.Close()
	clk.Advance(DefaultDebounce)

	if got := exec.callCount(); got != 0 {
		t.Errorf("expected no search after close, got %d", got)
	}
}
