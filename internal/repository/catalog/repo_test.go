package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atelier-cloud/shelfdex/internal/db"
	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
)

// fakeStore is an in-memory stand-in for the Redis store, recording the
// queries it receives.
type fakeStore struct {
	hashes  map[string]map[string]string
	sets    map[string]map[string]bool
	indexes map[string]bool

	lastList   *db.ListQuery
	lastRanked *db.RankedQuery
	listResult *db.SearchResult
	counts     map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hashes:     make(map[string]map[string]string),
		sets:       make(map[string]map[string]bool),
		indexes:    make(map[string]bool),
		listResult: &db.SearchResult{},
		counts:     make(map[string]int),
	}
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *fakeStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	for _, item := range items {
		if err := f.HSet(ctx, item.Key, item.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	return f.hashes[key], nil
}

func (f *fakeStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i] = f.hashes[k]
	}
	return out, nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	delete(f.hashes, key)
	return nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.hashes[key]
	return ok, nil
}

func (f *fakeStore) Scan(_ context.Context, _ string) ([]string, error) { return nil, nil }

func (f *fakeStore) SAdd(_ context.Context, key string, members ...string) error {
	s, ok := f.sets[key]
	if !ok {
		s = make(map[string]bool)
		f.sets[key] = s
	}
	for _, m := range members {
		s[m] = true
	}
	return nil
}

func (f *fakeStore) SMembers(_ context.Context, key string) ([]string, error) {
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) SearchList(_ context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	f.lastList = q
	return f.listResult, nil
}

func (f *fakeStore) SearchRanked(_ context.Context, q *db.RankedQuery) (*db.SearchResult, error) {
	f.lastRanked = q
	return f.listResult, nil
}

func (f *fakeStore) SearchCount(_ context.Context, _, query string) (int, error) {
	return f.counts[query], nil
}

func (f *fakeStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if f.indexes[def.Name] {
		return db.ErrIndexExists
	}
	f.indexes[def.Name] = true
	return nil
}

func (f *fakeStore) DropIndex(_ context.Context, name string) error {
	delete(f.indexes, name)
	return nil
}

func (f *fakeStore) IndexExists(_ context.Context, name string) (bool, error) {
	return f.indexes[name], nil
}

func TestUpsert_InitializesLinkHealthOnce(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "shelfdex:")
	ctx := context.Background()

	rec := domain.Record{ID: "r1", Name: "Chair", Brand: "Artek", Type: "obj"}
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := store.hashes["shelfdex:record:r1"]
	if h[fieldLinkHealth] != "unknown" || h[fieldLinkCheckedAt] != "0" {
		t.Fatalf("new record must start with unknown link health, got %v", h)
	}

	// Simulate a probe, then update the record: health must survive.
	h[fieldLinkHealth] = "ok"
	h[fieldLinkCheckedAt] = "1700000000000"

	rec.Status = "archived"
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h[fieldLinkHealth] != "ok" {
		t.Errorf("update overwrote link health: %q", h[fieldLinkHealth])
	}
}

func TestUpsert_TracksFacetValues(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "shelfdex:")

	rec := domain.Record{ID: "r1", Type: "revit", Brand: "Artek", Category: "seating", Status: "active"}
	if err := repo.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !store.sets["shelfdex:facet:type"]["revit"] {
		t.Error("expected type facet tracked")
	}
	if !store.sets["shelfdex:facet:brand"]["Artek"] {
		t.Error("expected brand facet tracked")
	}
}

func TestUpsert_RejectsEmptyID(t *testing.T) {
	repo := New(newFakeStore(), "shelfdex:")
	err := repo.Upsert(context.Background(), domain.Record{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := New(newFakeStore(), "shelfdex:")
	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestPage_BuildsPaginatedSortedQuery(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "shelfdex:")

	f, err := filter.New("", "obj", "", "", "", nil, nil, filter.SortName)
	if err != nil {
		t.Fatalf("filter.New: %v", err)
	}
	if _, _, err := repo.Page(context.Background(), f, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := store.lastList
	if q.Offset != 2*domain.PageSize || q.Limit != domain.PageSize {
		t.Errorf("expected offset %d limit %d, got %d/%d", 2*domain.PageSize, domain.PageSize, q.Offset, q.Limit)
	}
	if q.SortBy != fieldName || q.SortDesc {
		t.Errorf("expected ascending name sort, got %q desc=%v", q.SortBy, q.SortDesc)
	}
}

func TestPage_RecencySortsDescending(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "shelfdex:")

	if _, _, err := repo.Page(context.Background(), filter.Default(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastList.SortBy != fieldCreatedAt || !store.lastList.SortDesc {
		t.Errorf("expected created_at desc, got %q desc=%v", store.lastList.SortBy, store.lastList.SortDesc)
	}
}

func TestRankedPage_PassesScoresThrough(t *testing.T) {
	store := newFakeStore()
	store.listResult = &db.SearchResult{
		Total: 1,
		Entries: []db.SearchEntry{{
			Key:    "shelfdex:record:r1",
			Score:  2.5,
			Fields: map[string]string{fieldName: "Chair"},
		}},
	}
	repo := New(store, "shelfdex:")

	f, err := filter.New("chair", "", "", "", "", nil, nil, "")
	if err != nil {
		t.Fatalf("filter.New: %v", err)
	}
	items, total, err := repo.RankedPage(context.Background(), f, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected one hit, got total=%d items=%d", total, len(items))
	}
	if items[0].ID != "r1" || items[0].Score != 2.5 {
		t.Errorf("expected r1 with score 2.5, got %+v", items[0])
	}
}

func TestEligible_QueriesOldestFirst(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "shelfdex:")

	cutoff := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)
	if _, err := repo.Eligible(context.Background(), cutoff, 25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := store.lastList
	if q.Limit != 25 {
		t.Errorf("expected limit 25, got %d", q.Limit)
	}
	if q.SortBy != fieldLinkCheckedAt || q.SortDesc {
		t.Errorf("expected ascending checked-at sort, got %q desc=%v", q.SortBy, q.SortDesc)
	}
	if q.Query != eligibleLinksQuery(cutoff.UnixMilli()) {
		t.Errorf("unexpected eligible query %q", q.Query)
	}
}

func TestUpsertHealth_WritesLinkFields(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "shelfdex:")

	checked := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	err := repo.UpsertHealth(context.Background(), []domain.Link{
		{ID: "r1", URL: "https://x", Status: domain.LinkOK, CheckedAt: checked},
		{ID: "r2", URL: "https://y", Status: domain.LinkBroken, Error: "unexpected status 404", CheckedAt: checked},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.hashes["shelfdex:record:r1"][fieldLinkHealth]; got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	h2 := store.hashes["shelfdex:record:r2"]
	if h2[fieldLinkHealth] != "broken" || h2[fieldLinkError] != "unexpected status 404" {
		t.Errorf("broken link fields wrong: %v", h2)
	}
}

func TestEnsureIndex_Idempotent(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "shelfdex:")
	ctx := context.Background()

	if err := repo.EnsureIndex(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.EnsureIndex(ctx); err != nil {
		t.Fatalf("second EnsureIndex must be a no-op, got %v", err)
	}
	if err := repo.CheckIndex(ctx); err != nil {
		t.Fatalf("expected index to exist, got %v", err)
	}
}

func TestStats_DerivesUnknownBucket(t *testing.T) {
	store := newFakeStore()
	store.counts["*"] = 10
	store.counts["@link_health:{ok}"] = 6
	store.counts["@link_health:{broken}"] = 1
	repo := New(store, "shelfdex:")

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalRecords != 10 {
		t.Errorf("expected 10 records, got %d", stats.TotalRecords)
	}
	if stats.ByLinkHealth["unknown"] != 3 {
		t.Errorf("expected 3 unknown, got %d", stats.ByLinkHealth["unknown"])
	}
}
