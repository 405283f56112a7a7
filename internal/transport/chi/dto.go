package chi

import (
	"time"

	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
	"github.com/atelier-cloud/shelfdex/internal/usecase/linkcheck"
)

// recordResponse is the wire form of a catalog record.
type recordResponse struct {
	ID            string     `json:"id"`
	ProductUID    string     `json:"productUid,omitempty"`
	Name          string     `json:"name"`
	Variant       string     `json:"variant,omitempty"`
	Brand         string     `json:"brand,omitempty"`
	Type          string     `json:"type,omitempty"`
	Category      string     `json:"category,omitempty"`
	Status        string     `json:"status,omitempty"`
	SizeBytes     int64      `json:"sizeBytes,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	ThumbnailURL  string     `json:"thumbnailUrl,omitempty"`
	ProductURL    string     `json:"productUrl,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LinkHealth    string     `json:"linkHealth"`
	LinkError     string     `json:"linkError,omitempty"`
	LinkCheckedAt *time.Time `json:"linkCheckedAt,omitempty"`
}

func recordToAPI(rec domain.Record) recordResponse {
	resp := recordResponse{
		ID:           rec.ID,
		ProductUID:   rec.ProductUID,
		Name:         rec.Name,
		Variant:      rec.Variant,
		Brand:        rec.Brand,
		Type:         rec.Type,
		Category:     rec.Category,
		Status:       rec.Status,
		SizeBytes:    rec.SizeBytes,
		Tags:         rec.Tags,
		ThumbnailURL: rec.ThumbnailURL,
		ProductURL:   rec.ProductURL,
		CreatedAt:    rec.CreatedAt,
		LinkHealth:   string(rec.LinkHealth),
		LinkError:    rec.LinkError,
	}
	if !rec.LinkCheckedAt.IsZero() {
		t := rec.LinkCheckedAt
		resp.LinkCheckedAt = &t
	}
	return resp
}

// upsertRecordRequest is the wire form of an ingested record. Link health
// fields are owned by the scanner and never accepted from clients.
type upsertRecordRequest struct {
	ProductUID   string    `json:"productUid"`
	Name         string    `json:"name"`
	Variant      string    `json:"variant"`
	Brand        string    `json:"brand"`
	Type         string    `json:"type"`
	Category     string    `json:"category"`
	Status       string    `json:"status"`
	SizeBytes    int64     `json:"sizeBytes"`
	Tags         []string  `json:"tags"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	ProductURL   string    `json:"productUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (req upsertRecordRequest) toDomain(id string) domain.Record {
	return domain.Record{
		ID:           id,
		ProductUID:   req.ProductUID,
		Name:         req.Name,
		Variant:      req.Variant,
		Brand:        req.Brand,
		Type:         req.Type,
		Category:     req.Category,
		Status:       req.Status,
		SizeBytes:    req.SizeBytes,
		Tags:         req.Tags,
		ThumbnailURL: req.ThumbnailURL,
		ProductURL:   req.ProductURL,
		CreatedAt:    req.CreatedAt,
	}
}

// searchItem is one search hit. Score is present only for ranked results.
type searchItem struct {
	recordResponse
	Score float64 `json:"score,omitempty"`
}

type searchResponse struct {
	Items      []searchItem `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalCount int          `json:"totalCount"`
	TotalPages int          `json:"totalPages"`
	HasNext    bool         `json:"hasNext"`
	HasPrev    bool         `json:"hasPrev"`
}

func searchPageToAPI(page domain.SearchPage) searchResponse {
	items := make([]searchItem, len(page.Items))
	for i, it := range page.Items {
		items[i] = searchItem{recordResponse: recordToAPI(it.Record), Score: it.Score}
	}
	return searchResponse{
		Items:      items,
		Page:       page.Page,
		PageSize:   domain.PageSize,
		TotalCount: page.TotalCount,
		TotalPages: page.TotalPages,
		HasNext:    page.HasNext,
		HasPrev:    page.HasPrev,
	}
}

type facetsResponse struct {
	Types      []string `json:"types"`
	Brands     []string `json:"brands"`
	Categories []string `json:"categories"`
	Statuses   []string `json:"statuses"`
}

type statsResponse struct {
	TotalRecords int            `json:"totalRecords"`
	ByType       map[string]int `json:"byType"`
	ByStatus     map[string]int `json:"byStatus"`
	ByLinkHealth map[string]int `json:"byLinkHealth"`
	Prefetch     prefetchStats  `json:"prefetch"`
}

type prefetchStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// filterDoc is the wire form of a filter state, shared by the search params
// parser and the snapshot endpoints.
type filterDoc struct {
	Query    string   `json:"query"`
	Type     string   `json:"type"`
	Brand    string   `json:"brand"`
	Category string   `json:"category"`
	Status   string   `json:"status"`
	MinSize  *float64 `json:"minSize,omitempty"`
	MaxSize  *float64 `json:"maxSize,omitempty"`
	Sort     string   `json:"sort"`
}

func filterToAPI(f filter.Set) filterDoc {
	return filterDoc{
		Query:    f.Query(),
		Type:     f.Type(),
		Brand:    f.Brand(),
		Category: f.Category(),
		Status:   f.Status(),
		MinSize:  f.MinSize(),
		MaxSize:  f.MaxSize(),
		Sort:     string(f.SortKey()),
	}
}

func (d filterDoc) toDomain() (filter.Set, error) {
	return filter.New(d.Query, d.Type, d.Brand, d.Category, d.Status,
		d.MinSize, d.MaxSize, filter.Sort(d.Sort))
}

type snapshotResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Filters   filterDoc `json:"filters"`
	CreatedAt time.Time `json:"createdAt"`
}

func snapshotToAPI(snap domain.FilterSnapshot) snapshotResponse {
	return snapshotResponse{
		ID:        snap.ID,
		Name:      snap.Name,
		Filters:   filterToAPI(snap.Filters),
		CreatedAt: snap.CreatedAt,
	}
}

type createSnapshotRequest struct {
	Name    string    `json:"name"`
	Filters filterDoc `json:"filters"`
}

type linkCheckRequest struct {
	Limit  int  `json:"limit"`
	DryRun bool `json:"dryRun"`
}

type linkResult struct {
	RecordID  string    `json:"recordId"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

type linkCheckResponse struct {
	Checked int          `json:"checked"`
	Updated int          `json:"updated"`
	OK      int          `json:"ok"`
	Broken  int          `json:"broken"`
	Errors  int          `json:"errors"`
	DryRun  bool         `json:"dryRun"`
	Results []linkResult `json:"results,omitempty"`
}

// linkReportToAPI maps a run report. Per-URL results are exposed only for
// dry runs; real runs persist them instead.
func linkReportToAPI(report linkcheck.Report) linkCheckResponse {
	resp := linkCheckResponse{
		Checked: report.Checked,
		Updated: report.Updated,
		OK:      report.OK,
		Broken:  report.Broken,
		Errors:  report.Errors,
		DryRun:  report.DryRun,
	}
	if !report.DryRun {
		return resp
	}
	resp.Results = make([]linkResult, len(report.Results))
	for i, l := range report.Results {
		resp.Results[i] = linkResult{
			RecordID:  l.ID,
			URL:       l.URL,
			Status:    string(l.Status),
			Error:     l.Error,
			CheckedAt: l.CheckedAt,
		}
	}
	return resp
}
