// Package chi exposes the browsing engine over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
	browseuc "github.com/atelier-cloud/shelfdex/internal/usecase/browse"
	healthuc "github.com/atelier-cloud/shelfdex/internal/usecase/health"
	linkcheckuc "github.com/atelier-cloud/shelfdex/internal/usecase/linkcheck"
	prefetchuc "github.com/atelier-cloud/shelfdex/internal/usecase/prefetch"
	snapshotuc "github.com/atelier-cloud/shelfdex/internal/usecase/snapshot"
)

// Error response codes.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeRecordNotFound   = "record_not_found"
	codeSnapshotNotFound = "snapshot_not_found"
	codeStoreUnavailable = "store_unavailable"
	codeInternalError    = "internal_error"
)

// Catalog is the record access the transport needs beyond the search path.
type Catalog interface {
	Upsert(ctx context.Context, rec domain.Record) error
	Get(ctx context.Context, id string) (domain.Record, error)
	Facets(ctx context.Context) (domain.Facets, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server hosts the catalog HTTP API.
type Server struct {
	catalog       Catalog
	browse        *browseuc.Service
	prefetch      *prefetchuc.Cache
	links         *linkcheckuc.Service
	snapshots     *snapshotuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	catalog Catalog,
	browse *browseuc.Service,
	prefetch *prefetchuc.Cache,
	links *linkcheckuc.Service,
	snapshots *snapshotuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		catalog:   catalog,
		browse:    browse,
		prefetch:  prefetch,
		links:     links,
		snapshots: snapshots,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrRecordNotFound, http.StatusNotFound, codeRecordNotFound),
		sentinelHandler(domain.ErrSnapshotNotFound, http.StatusNotFound, codeSnapshotNotFound),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusBadGateway, codeStoreUnavailable),
	}
	return s
}

// Register mounts all API routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.Search)
		r.Get("/facets", s.GetFacets)
		r.Get("/stats", s.GetStats)

		r.Route("/records/{id}", func(r chi.Router) {
			r.Put("/", s.UpsertRecord)
			r.Get("/", s.GetRecord)
			r.Get("/siblings", s.GetSiblings)
			r.Post("/prefetch", s.PrefetchRecord)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Post("/", s.CreateSnapshot)
			r.Get("/", s.ListSnapshots)
			r.Get("/{id}", s.GetSnapshot)
			r.Delete("/{id}", s.DeleteSnapshot)
		})

		r.Post("/linkhealth/runs", s.RunLinkCheck)
	})
}

// Search handles GET /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	page, err := pageParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	result, err := s.browse.Execute(r.Context(), f, page)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchPageToAPI(result))
}

// UpsertRecord handles PUT /api/v1/records/{id}.
func (s *Server) UpsertRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req upsertRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	rec := req.toDomain(id)
	if err := s.catalog.Upsert(r.Context(), rec); err != nil {
		s.handleDomainError(w, err)
		return
	}

	// Stored siblings for this product may now be stale.
	s.prefetch.Invalidate(rec.GroupKey())

	writeJSON(w, http.StatusOK, recordToAPI(rec))
}

// GetRecord handles GET /api/v1/records/{id}.
func (s *Server) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordToAPI(rec))
}

// GetSiblings handles GET /api/v1/records/{id}/siblings. Results come
// through the prefetch cache, so a hover-primed lookup is served from
// memory.
func (s *Server) GetSiblings(w http.ResponseWriter, r *http.Request) {
	rec, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	siblings, err := s.prefetch.GetOrFetch(r.Context(), rec.GroupKey())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]recordResponse, 0, len(siblings))
	for _, sib := range siblings {
		if sib.ID == rec.ID {
			continue
		}
		items = append(items, recordToAPI(sib))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// PrefetchRecord handles POST /api/v1/records/{id}/prefetch. The trigger
// parameter distinguishes an immediate hover hint from a debounced focus
// hint.
func (s *Server) PrefetchRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	switch trigger := r.URL.Query().Get("trigger"); trigger {
	case "", "hover":
		s.prefetch.Prefetch(rec.GroupKey())
	case "focus":
		s.prefetch.Focus(rec.GroupKey())
	default:
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"trigger must be hover or focus, got "+strconv.Quote(trigger))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// GetFacets handles GET /api/v1/facets.
func (s *Server) GetFacets(w http.ResponseWriter, r *http.Request) {
	facets, err := s.catalog.Facets(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, facetsResponse{
		Types:      facets.Types,
		Brands:     facets.Brands,
		Categories: facets.Categories,
		Statuses:   facets.Statuses,
	})
}

// GetStats handles GET /api/v1/stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	hits, misses := s.prefetch.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		TotalRecords: stats.TotalRecords,
		ByType:       stats.ByType,
		ByStatus:     stats.ByStatus,
		ByLinkHealth: stats.ByLinkHealth,
		Prefetch:     prefetchStats{Hits: hits, Misses: misses},
	})
}

// CreateSnapshot handles POST /api/v1/snapshots.
func (s *Server) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req createSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	f, err := req.Filters.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	snap, err := s.snapshots.Create(r.Context(), req.Name, f)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshotToAPI(snap))
}

// ListSnapshots handles GET /api/v1/snapshots.
func (s *Server) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.snapshots.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	items := make([]snapshotResponse, len(snaps))
	for i, snap := range snaps {
		items[i] = snapshotToAPI(snap)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetSnapshot handles GET /api/v1/snapshots/{id}.
func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotToAPI(snap))
}

// DeleteSnapshot handles DELETE /api/v1/snapshots/{id}.
func (s *Server) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.snapshots.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunLinkCheck handles POST /api/v1/linkhealth/runs.
func (s *Server) RunLinkCheck(w http.ResponseWriter, r *http.Request) {
	var req linkCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	report, err := s.links.Run(r.Context(), linkcheckuc.Params{
		Limit:  req.Limit,
		DryRun: req.DryRun,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, linkReportToAPI(report))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// filterFromQuery parses filter state from search query parameters.
func filterFromQuery(r *http.Request) (filter.Set, error) {
	q := r.URL.Query()

	minSize, err := sizeParam(q.Get("minSize"), "minSize")
	if err != nil {
		return filter.Set{}, err
	}
	maxSize, err := sizeParam(q.Get("maxSize"), "maxSize")
	if err != nil {
		return filter.Set{}, err
	}

	return filter.New(
		q.Get("q"),
		q.Get("type"),
		q.Get("brand"),
		q.Get("category"),
		q.Get("status"),
		minSize,
		maxSize,
		filter.Sort(q.Get("sort")),
	)
}

func sizeParam(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New(name + " must be a number")
	}
	return &v, nil
}

func pageParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("page must be an integer")
	}
	return page, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrRecordNotFound,
		domain.ErrSnapshotNotFound,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel
// error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
