// Package filter defines the query vocabulary of the browsing engine: an
// immutable filter Set combining free text, facets, size bounds, and a
// sort key.
package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// All is the sentinel for an absent facet. Absence is always represented
// by the sentinel, never by omission, so Set equality is total.
const All = "all"

// Sort selects the field-sort applied to predicate (non-ranked) results.
type Sort string

// Supported sort keys.
const (
	SortCreatedAt Sort = "createdAt"
	SortName      Sort = "name"
	SortBrand     Sort = "brand"
	SortSize      Sort = "size"
)

// ParseSort validates a sort key. Empty input defaults to SortCreatedAt.
func ParseSort(s string) (Sort, error) {
	switch Sort(s) {
	case "":
		return SortCreatedAt, nil
	case SortCreatedAt, SortName, SortBrand, SortSize:
		return Sort(s), nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// Set is an immutable filter state: free-text query, facets, numeric size
// bounds, and sort key.
type Set struct {
	query    string
	typ      string
	brand    string
	category string
	status   string
	minSize  *float64
	maxSize  *float64
	sort     Sort
}

// New validates and creates a Set. Empty facet values normalize to the All
// sentinel; the empty sort key normalizes to SortCreatedAt.
func New(
	query, typ, brand, category, status string,
	minSize, maxSize *float64, sort Sort,
) (Set, error) {
	if minSize != nil && *minSize < 0 {
		return Set{}, fmt.Errorf("min size must not be negative, got %g", *minSize)
	}
	if maxSize != nil && *maxSize < 0 {
		return Set{}, fmt.Errorf("max size must not be negative, got %g", *maxSize)
	}
	if minSize != nil && maxSize != nil && *minSize > *maxSize {
		return Set{}, fmt.Errorf("min size %g exceeds max size %g", *minSize, *maxSize)
	}
	sort, err := ParseSort(string(sort))
	if err != nil {
		return Set{}, err
	}
	return Set{
		query:    strings.TrimSpace(query),
		typ:      normalizeFacet(typ),
		brand:    normalizeFacet(brand),
		category: normalizeFacet(category),
		status:   normalizeFacet(status),
		minSize:  copyBound(minSize),
		maxSize:  copyBound(maxSize),
		sort:     sort,
	}, nil
}

// Default returns the empty filter state: no query, all facets open,
// unbounded size, default sort.
func Default() Set {
	s, _ := New("", "", "", "", "", nil, nil, "")
	return s
}

func normalizeFacet(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return All
	}
	return v
}

func copyBound(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Query returns the free-text query.
func (s Set) Query() string { return s.query }

// Type returns the file type facet.
func (s Set) Type() string { return s.typ }

// Brand returns the brand facet.
func (s Set) Brand() string { return s.brand }

// Category returns the category facet.
func (s Set) Category() string { return s.category }

// Status returns the status facet.
func (s Set) Status() string { return s.status }

// MinSize returns the inclusive lower size bound, nil when unbounded.
func (s Set) MinSize() *float64 { return copyBound(s.minSize) }

// MaxSize returns the inclusive upper size bound, nil when unbounded.
func (s Set) MaxSize() *float64 { return copyBound(s.maxSize) }

// SortKey returns the sort key.
func (s Set) SortKey() Sort { return s.sort }

// Equal reports total, order-independent equality of two filter states.
func (s Set) Equal(o Set) bool {
	return s.Key() == o.Key()
}

// Key returns the canonical string form of the filter state, usable for
// equality and cache-key derivation.
func (s Set) Key() string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(s.query)
	b.WriteString("&type=")
	b.WriteString(s.typ)
	b.WriteString("&brand=")
	b.WriteString(s.brand)
	b.WriteString("&category=")
	b.WriteString(s.category)
	b.WriteString("&status=")
	b.WriteString(s.status)
	b.WriteString("&min=")
	b.WriteString(boundKey(s.minSize))
	b.WriteString("&max=")
	b.WriteString(boundKey(s.maxSize))
	b.WriteString("&sort=")
	b.WriteString(string(s.sort))
	return b.String()
}

func boundKey(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'g', -1, 64)
}
