package domain

import (
	"strings"
	"time"
)

// Record is a single catalog entry: one stored file of a product variant.
type Record struct {
	ID           string // content hash, stable across renames
	ProductUID   string
	Name         string
	Variant      string
	Brand        string
	Type         string // file format facet (revit, sketchup, obj, ...)
	Category     string
	Status       string
	SizeBytes    int64
	Tags         []string
	ThumbnailURL string
	ProductURL   string
	CreatedAt    time.Time

	// Link health, maintained by the link scanner rather than ingest.
	LinkHealth    LinkStatus
	LinkError     string
	LinkCheckedAt time.Time
}

// GroupKey derives the sibling-grouping key: all variants of the same
// logical product share it. Built from normalized name and brand, not the
// unique ID.
func (r Record) GroupKey() string {
	return normalizeKeyPart(r.Name) + "|" + normalizeKeyPart(r.Brand)
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ScoredRecord pairs a record with its relevance score. Score is zero for
// predicate-only (non-ranked) results.
type ScoredRecord struct {
	Record
	Score float64
}
