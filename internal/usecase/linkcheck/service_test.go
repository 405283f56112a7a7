package linkcheck

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atelier-cloud/shelfdex/internal/clock"
	"github.com/atelier-cloud/shelfdex/internal/domain"
)

type fakeSource struct {
	records []domain.Record
	cutoff  time.Time
	limit   int
	err     error
}

func (f *fakeSource) Eligible(_ context.Context, cutoff time.Time, limit int) ([]domain.Record, error) {
	f.cutoff = cutoff
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]domain.Link
	err     error
}

func (f *fakeWriter) UpsertHealth(_ context.Context, results []domain.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	batch := make([]domain.Link, len(results))
	copy(batch, results)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeWriter) written() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

// statusDoer answers each URL with a canned status code. URLs without an
// entry fail with a transport error.
type statusDoer struct {
	mu       sync.Mutex
	statuses map[string]int
	calls    []string
}

func (d *statusDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req.URL.String())
	code, ok := d.statuses[req.URL.String()]
	d.mu.Unlock()
	if !ok {
		return nil, errors.New("dial tcp: connection refused")
	}
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func rec(id, url string) domain.Record {
	return domain.Record{ID: id, ProductURL: url}
}

func newService(src LinkSource, w LinkWriter, d Doer, clk clock.Clock, cfg Config) *Service {
	return New(src, w, d, clk, nil, cfg)
}

func TestRun_ClassifiesStatusBoundaries(t *testing.T) {
	source := &fakeSource{records: []domain.Record{
		rec("r200", "https://cdn.example/a"),
		rec("r301", "https://cdn.example/b"),
		rec("r399", "https://cdn.example/c"),
		rec("r400", "https://cdn.example/d"),
		rec("r404", "https://cdn.example/e"),
		rec("r503", "https://cdn.example/f"),
	}}
	doer := &statusDoer{statuses: map[string]int{
		"https://cdn.example/a": 200,
		"https://cdn.example/b": 301,
		"https://cdn.example/c": 399,
		"https://cdn.example/d": 400,
		"https://cdn.example/e": 404,
		"https://cdn.example/f": 503,
	}}
	writer := &fakeWriter{}
	svc := newService(source, writer, doer, clock.System(), Config{Delay: time.Nanosecond})

	report, err := svc.Run(context.Background(), Params{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Checked != 6 || report.OK != 3 || report.Broken != 3 {
		t.Fatalf("expected 6 checked / 3 ok / 3 broken, got %d/%d/%d",
			report.Checked, report.OK, report.Broken)
	}

	want := map[string]domain.LinkStatus{
		"r200": domain.LinkOK,
		"r301": domain.LinkOK,
		"r399": domain.LinkOK,
		"r400": domain.LinkBroken,
		"r404": domain.LinkBroken,
		"r503": domain.LinkBroken,
	}
	for _, link := range report.Results {
		if link.Status != want[link.ID] {
			t.Errorf("%s: expected %q, got %q", link.ID, want[link.ID], link.Status)
		}
	}
}

func TestRun_BrokenLinkCarriesDiagnostics(t *testing.T) {
	source := &fakeSource{records: []domain.Record{
		rec("r404", "https://cdn.example/gone"),
		rec("rdead", "https://cdn.example/unreachable"),
	}}
	doer := &statusDoer{statuses: map[string]int{
		"https://cdn.example/gone": 404,
	}}
	svc := newService(source, &fakeWriter{}, doer, clock.System(), Config{Delay: time.Nanosecond})

	report, err := svc.Run(context.Background(), Params{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Results[0].Error != "unexpected status 404" {
		t.Errorf("expected status diagnostic, got %q", report.Results[0].Error)
	}
	if !strings.Contains(report.Results[1].Error, "connection refused") {
		t.Errorf("expected transport diagnostic, got %q", report.Results[1].Error)
	}
	// Only the unreachable host counts as a transport error; the 404 is a
	// plain broken classification.
	if report.Broken != 2 || report.Errors != 1 {
		t.Errorf("expected 2 broken / 1 error, got %d/%d", report.Broken, report.Errors)
	}
}

func TestRun_RejectsLimitOutOfRange(t *testing.T) {
	svc := newService(&fakeSource{}, &fakeWriter{}, &statusDoer{}, clock.NewMock(), Config{})

	for _, limit := range []int{0, -1, 101} {
		_, err := svc.Run(context.Background(), Params{Limit: limit})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("limit %d: expected ErrInvalidInput, got %v", limit, err)
		}
	}
}

func TestRun_TimeoutMarksBroken(t *testing.T) {
	source := &fakeSource{records: []domain.Record{rec("slow", "https://cdn.example/slow")}}
	blocked := doerFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	svc := newService(source, &fakeWriter{}, blocked, clock.System(), Config{Timeout: 10 * time.Millisecond})

	report, err := svc.Run(context.Background(), Params{Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Broken != 1 {
		t.Fatalf("expected timed-out probe to count broken, got %+v", report)
	}
	if report.Results[0].Status != domain.LinkBroken {
		t.Errorf("expected broken, got %q", report.Results[0].Status)
	}
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func TestRun_DryRunWritesNothing(t *testing.T) {
	source := &fakeSource{records: []domain.Record{
		rec("a", "https://cdn.example/a"),
		rec("b", "https://cdn.example/b"),
	}}
	doer := &statusDoer{statuses: map[string]int{
		"https://cdn.example/a": 200,
		"https://cdn.example/b": 404,
	}}
	writer := &fakeWriter{}
	svc := newService(source, writer, doer, clock.System(), Config{Delay: time.Nanosecond})

	report, err := svc.Run(context.Background(), Params{Limit: 10, DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.DryRun || report.Checked != 2 {
		t.Fatalf("expected dry-run report over 2 links, got %+v", report)
	}
	if report.Updated != 0 {
		t.Errorf("dry run must report zero updates, got %d", report.Updated)
	}
	if len(writer.batches) != 0 {
		t.Fatalf("dry run must not write, got %d batches", len(writer.batches))
	}

	// A second dry run probes again: nothing was recorded as checked.
	report2, err := svc.Run(context.Background(), Params{Limit: 10, DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report2.Checked != 2 {
		t.Fatalf("expected dry run to be repeatable, got %+v", report2)
	}
}

func TestRun_PersistsInSubBatches(t *testing.T) {
	var records []domain.Record
	statuses := make(map[string]int)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		url := "https://cdn.example/" + id
		records = append(records, rec(id, url))
		statuses[url] = 200
	}
	source := &fakeSource{records: records}
	writer := &fakeWriter{}
	svc := newService(source, writer, &statusDoer{statuses: statuses}, clock.System(),
		Config{Delay: time.Nanosecond, WriteBatchSize: 2})

	report, err := svc.Run(context.Background(), Params{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Updated != 5 {
		t.Errorf("expected 5 updates reported, got %d", report.Updated)
	}
	if len(writer.batches) != 3 {
		t.Fatalf("expected 3 sub-batches, got %d", len(writer.batches))
	}
	if len(writer.batches[0]) != 2 || len(writer.batches[1]) != 2 || len(writer.batches[2]) != 1 {
		t.Errorf("expected batch sizes 2/2/1, got %d/%d/%d",
			len(writer.batches[0]), len(writer.batches[1]), len(writer.batches[2]))
	}
	if writer.written() != 5 {
		t.Errorf("expected 5 results written, got %d", writer.written())
	}
}

func TestRun_PacesProbesWithDelay(t *testing.T) {
	source := &fakeSource{records: []domain.Record{
		rec("a", "https://cdn.example/a"),
		rec("b", "https://cdn.example/b"),
		rec("c", "https://cdn.example/c"),
	}}
	doer := &statusDoer{statuses: map[string]int{
		"https://cdn.example/a": 200,
		"https://cdn.example/b": 200,
		"https://cdn.example/c": 200,
	}}
	clk := clock.NewMock()
	svc := newService(source, &fakeWriter{}, doer, clk, Config{Delay: 500 * time.Millisecond})
	start := clk.Now()

	done := make(chan Report, 1)
	go func() {
		report, err := svc.Run(context.Background(), Params{Limit: 10})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- report
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case report := <-done:
			if report.Checked != 3 {
				t.Fatalf("expected 3 probes, got %d", report.Checked)
			}
			// Two inter-probe pauses of 500ms each.
			if elapsed := clk.Now().Sub(start); elapsed < time.Second {
				t.Errorf("expected at least 1s of pacing, clock advanced %v", elapsed)
			}
			return
		case <-deadline:
			t.Fatal("run did not finish")
		default:
			clk.Advance(500 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestRun_CancelStopsBetweenProbes(t *testing.T) {
	source := &fakeSource{records: []domain.Record{
		rec("a", "https://cdn.example/a"),
		rec("b", "https://cdn.example/b"),
	}}
	doer := &statusDoer{statuses: map[string]int{
		"https://cdn.example/a": 200,
		"https://cdn.example/b": 200,
	}}
	ctx, cancel := context.WithCancel(context.Background())
	svc := newService(source, &fakeWriter{}, doer, clock.NewMock(), Config{Delay: time.Hour})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(ctx, Params{Limit: 10})
		done <- err
	}()

	// First probe runs immediately; the run then parks in the pacing
	// sleep, where cancellation must release it.
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled run did not return")
	}
}

func TestRun_EligibleCutoffUsesRecheckWindow(t *testing.T) {
	source := &fakeSource{}
	clk := clock.NewMock()
	svc := newService(source, &fakeWriter{}, &statusDoer{}, clk,
		Config{RecheckAfter: 7 * 24 * time.Hour})

	if _, err := svc.Run(context.Background(), Params{Limit: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := clk.Now().Add(-7 * 24 * time.Hour)
	if !source.cutoff.Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, source.cutoff)
	}
	if source.limit != 5 {
		t.Errorf("expected limit 5 passed through, got %d", source.limit)
	}
}
