package domain

// PageSize is the fixed result page size of the browsing engine.
const PageSize = 20

// SearchPage is one page of search results plus pagination metadata.
//
// Invariants: TotalPages == ceil(TotalCount/PageSize),
// HasNext == Page < TotalPages.
type SearchPage struct {
	Items      []ScoredRecord
	Page       int
	TotalCount int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// NewSearchPage assembles a SearchPage, deriving pagination metadata from
// the page number and total match count.
func NewSearchPage(items []ScoredRecord, page, totalCount int) SearchPage {
	if page < 1 {
		page = 1
	}
	if totalCount < 0 {
		totalCount = 0
	}
	totalPages := (totalCount + PageSize - 1) / PageSize
	return SearchPage{
		Items:      items,
		Page:       page,
		TotalCount: totalCount,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
