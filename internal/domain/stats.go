package domain

// Stats aggregates catalog counters for the stats endpoint.
type Stats struct {
	TotalRecords int
	ByType       map[string]int
	ByStatus     map[string]int
	ByLinkHealth map[string]int
}

// Facets lists the distinct values seen for each filterable facet.
type Facets struct {
	Types      []string
	Brands     []string
	Categories []string
	Statuses   []string
}
