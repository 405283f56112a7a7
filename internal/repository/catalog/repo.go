// Package catalog is the record repository: hash-per-record storage with
// an FT index over it for predicate and ranked search.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atelier-cloud/shelfdex/internal/db"
	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
	"github.com/atelier-cloud/shelfdex/internal/usecase/browse"
	"github.com/atelier-cloud/shelfdex/internal/usecase/linkcheck"
	"github.com/atelier-cloud/shelfdex/internal/usecase/prefetch"
)

var (
	_ browse.RecordStore   = (*Repo)(nil)
	_ prefetch.Fetcher     = (*Repo)(nil)
	_ linkcheck.LinkSource = (*Repo)(nil)
	_ linkcheck.LinkWriter = (*Repo)(nil)
)

// maxSiblings bounds a sibling lookup; product groups are small in
// practice.
const maxSiblings = 100

// facetNames are the facets tracked as Redis sets for enumeration.
var facetNames = []string{fieldType, fieldBrand, fieldCategory, fieldStatus}

// Store is the storage surface the repository needs.
type Store interface {
	db.HashStore
	db.SetStore
	db.Searcher
	db.IndexManager
}

// Repo implements record storage and search over a db.Store.
type Repo struct {
	store  Store
	prefix string
	index  string
}

// New creates a catalog repository. keyPrefix namespaces every key and
// the index name.
func New(store Store, keyPrefix string) *Repo {
	return &Repo{
		store:  store,
		prefix: keyPrefix,
		index:  keyPrefix + "idx:records",
	}
}

// Schema returns the FT index definition for the record hashes.
func Schema(keyPrefix string) *db.IndexDefinition {
	return db.NewIndex(keyPrefix + "idx:records").
		Prefix(keyPrefix + "record:").
		Text(fieldText).
		Tag(fieldType).
		Tag(fieldCategory).
		Tag(fieldStatus).
		Tag(fieldGroup).
		SortableTag(fieldName).
		SortableTag(fieldBrand).
		SortableNumeric(fieldSize).
		SortableNumeric(fieldCreatedAt).
		Tag(fieldLinkHealth).
		SortableNumeric(fieldLinkCheckedAt).
		MustBuild()
}

// EnsureIndex creates the record index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	err := r.store.CreateIndex(ctx, Schema(r.prefix))
	if err != nil && err != db.ErrIndexExists {
		return fmt.Errorf("create record index: %w", err)
	}
	return nil
}

// CheckIndex reports whether the record index is queryable.
func (r *Repo) CheckIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return fmt.Errorf("check record index: %w", err)
	}
	if !exists {
		return db.ErrIndexNotFound
	}
	return nil
}

func (r *Repo) recordKey(id string) string {
	return r.prefix + "record:" + id
}

func (r *Repo) facetKey(name string) string {
	return r.prefix + "facet:" + name
}

func (r *Repo) idFromKey(key string) string {
	return strings.TrimPrefix(key, r.prefix+"record:")
}

// Upsert stores a record and tracks its facet values. New records start
// with unknown link health; updates leave the recorded health untouched.
func (r *Repo) Upsert(ctx context.Context, rec domain.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record id is required", domain.ErrInvalidInput)
	}

	key := r.recordKey(rec.ID)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check record %s: %w", rec.ID, err)
	}

	fields := recordToFields(rec)
	if !exists {
		fields[fieldLinkHealth] = string(domain.LinkUnknown)
		fields[fieldLinkCheckedAt] = "0"
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("store record %s: %w", rec.ID, err)
	}

	return r.trackFacets(ctx, rec)
}

func (r *Repo) trackFacets(ctx context.Context, rec domain.Record) error {
	values := map[string]string{
		fieldType:     rec.Type,
		fieldBrand:    rec.Brand,
		fieldCategory: rec.Category,
		fieldStatus:   rec.Status,
	}
	for _, name := range facetNames {
		v := values[name]
		if v == "" {
			continue
		}
		if err := r.store.SAdd(ctx, r.facetKey(name), v); err != nil {
			return fmt.Errorf("track facet %s: %w", name, err)
		}
	}
	return nil
}

// Get returns a single record by ID.
func (r *Repo) Get(ctx context.Context, id string) (domain.Record, error) {
	fields, err := r.store.HGetAll(ctx, r.recordKey(id))
	if err != nil {
		return domain.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.Record{}, domain.ErrRecordNotFound
	}
	return fieldsToRecord(id, fields), nil
}

// Page runs a predicate search with a deterministic field sort. Recency
// sorts newest-first, every other key ascending.
func (r *Repo) Page(ctx context.Context, f filter.Set, page int) ([]domain.ScoredRecord, int, error) {
	res, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName:    r.index,
		Query:        predicateQuery(f),
		Offset:       (page - 1) * domain.PageSize,
		Limit:        domain.PageSize,
		SortBy:       sortFields[f.SortKey()],
		SortDesc:     f.SortKey() == filter.SortCreatedAt,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("predicate search: %w", err)
	}
	return r.entriesToScored(res.Entries), res.Total, nil
}

// RankedPage runs a relevance-ranked text search constrained by the same
// predicates.
func (r *Repo) RankedPage(ctx context.Context, f filter.Set, page int) ([]domain.ScoredRecord, int, error) {
	res, err := r.store.SearchRanked(ctx, &db.RankedQuery{
		IndexName:    r.index,
		Query:        rankedQuery(f),
		Offset:       (page - 1) * domain.PageSize,
		Limit:        domain.PageSize,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("ranked search: %w", err)
	}

	// Equal relevance breaks toward the newest record.
	items := r.entriesToScored(res.Entries)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, res.Total, nil
}

func (r *Repo) entriesToScored(entries []db.SearchEntry) []domain.ScoredRecord {
	out := make([]domain.ScoredRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.ScoredRecord{
			Record: fieldsToRecord(r.idFromKey(e.Key), e.Fields),
			Score:  e.Score,
		})
	}
	return out
}

// Siblings returns every record of a product group, name-sorted.
func (r *Repo) Siblings(ctx context.Context, groupKey string) ([]domain.Record, error) {
	res, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName:    r.index,
		Query:        siblingsQuery(groupKey),
		Offset:       0,
		Limit:        maxSiblings,
		SortBy:       fieldName,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("sibling search: %w", err)
	}
	out := make([]domain.Record, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, fieldsToRecord(r.idFromKey(e.Key), e.Fields))
	}
	return out, nil
}

// Facets enumerates the distinct values of each filterable facet.
func (r *Repo) Facets(ctx context.Context) (domain.Facets, error) {
	var facets domain.Facets
	targets := map[string]*[]string{
		fieldType:     &facets.Types,
		fieldBrand:    &facets.Brands,
		fieldCategory: &facets.Categories,
		fieldStatus:   &facets.Statuses,
	}
	for _, name := range facetNames {
		values, err := r.store.SMembers(ctx, r.facetKey(name))
		if err != nil {
			return domain.Facets{}, fmt.Errorf("list facet %s: %w", name, err)
		}
		sort.Strings(values)
		*targets[name] = values
	}
	return facets, nil
}

// Stats aggregates catalog counters. The unknown link bucket is derived:
// total minus the probed ones.
func (r *Repo) Stats(ctx context.Context) (domain.Stats, error) {
	total, err := r.store.SearchCount(ctx, r.index, "*")
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count records: %w", err)
	}

	stats := domain.Stats{
		TotalRecords: total,
		ByType:       make(map[string]int),
		ByStatus:     make(map[string]int),
		ByLinkHealth: make(map[string]int),
	}

	if err := r.countByFacet(ctx, fieldType, stats.ByType); err != nil {
		return domain.Stats{}, err
	}
	if err := r.countByFacet(ctx, fieldStatus, stats.ByStatus); err != nil {
		return domain.Stats{}, err
	}

	probed := 0
	for _, status := range []domain.LinkStatus{domain.LinkOK, domain.LinkBroken} {
		q := fmt.Sprintf("@%s:{%s}", fieldLinkHealth, string(status))
		n, err := r.store.SearchCount(ctx, r.index, q)
		if err != nil {
			return domain.Stats{}, fmt.Errorf("count link health %s: %w", status, err)
		}
		stats.ByLinkHealth[string(status)] = n
		probed += n
	}
	stats.ByLinkHealth[string(domain.LinkUnknown)] = total - probed

	return stats, nil
}

func (r *Repo) countByFacet(ctx context.Context, facet string, out map[string]int) error {
	values, err := r.store.SMembers(ctx, r.facetKey(facet))
	if err != nil {
		return fmt.Errorf("list facet %s: %w", facet, err)
	}
	for _, v := range values {
		q := fmt.Sprintf("@%s:{%s}", facet, db.EscapeTag(v))
		n, err := r.store.SearchCount(ctx, r.index, q)
		if err != nil {
			return fmt.Errorf("count facet %s=%s: %w", facet, v, err)
		}
		out[v] = n
	}
	return nil
}

// Eligible lists records whose link is due for a probe, oldest probe
// first.
func (r *Repo) Eligible(ctx context.Context, cutoff time.Time, limit int) ([]domain.Record, error) {
	res, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName:    r.index,
		Query:        eligibleLinksQuery(cutoff.UnixMilli()),
		Offset:       0,
		Limit:        limit,
		SortBy:       fieldLinkCheckedAt,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("eligible link search: %w", err)
	}
	out := make([]domain.Record, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, fieldsToRecord(r.idFromKey(e.Key), e.Fields))
	}
	return out, nil
}

// UpsertHealth records probe outcomes on the owning record hashes.
func (r *Repo) UpsertHealth(ctx context.Context, results []domain.Link) error {
	if len(results) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, len(results))
	for i, link := range results {
		items[i] = db.HashSetItem{
			Key: r.recordKey(link.ID),
			Fields: map[string]string{
				fieldLinkHealth:    string(link.Status),
				fieldLinkError:     link.Error,
				fieldLinkCheckedAt: strconv.FormatInt(link.CheckedAt.UnixMilli(), 10),
			},
		}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store link health: %w", err)
	}
	return nil
}
