// Package linkcheck probes the external links of catalog records and
// records which ones have gone dead. Probes run sequentially with a fixed
// pacing delay so the upstream host never sees a request burst.
package linkcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/atelier-cloud/shelfdex/internal/clock"
	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/metrics"
)

// Defaults.
const (
	DefaultDelay          = 500 * time.Millisecond
	DefaultTimeout        = 10 * time.Second
	DefaultRecheckAfter   = 7 * 24 * time.Hour
	DefaultMaxLimit       = 100
	DefaultWriteBatchSize = 20
)

// Config tunes a checker run.
type Config struct {
	Delay          time.Duration // pause between consecutive probes
	Timeout        time.Duration // per-probe deadline
	RecheckAfter   time.Duration // links checked more recently are skipped
	MaxLimit       int
	WriteBatchSize int
}

func (c Config) withDefaults() Config {
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RecheckAfter <= 0 {
		c.RecheckAfter = DefaultRecheckAfter
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = DefaultMaxLimit
	}
	if c.WriteBatchSize <= 0 {
		c.WriteBatchSize = DefaultWriteBatchSize
	}
	return c
}

// Params select the scope of one run.
type Params struct {
	Limit  int
	DryRun bool
}

// Report summarizes one run. Errors counts transport-level probe failures,
// a subset of Broken; Updated counts persisted outcomes and stays zero for
// dry runs.
type Report struct {
	Checked int           `json:"checked"`
	Updated int           `json:"updated"`
	OK      int           `json:"ok"`
	Broken  int           `json:"broken"`
	Errors  int           `json:"errors"`
	DryRun  bool          `json:"dryRun"`
	Results []domain.Link `json:"results"`
}

// Service runs link health scans.
type Service struct {
	source LinkSource
	writer LinkWriter
	client Doer
	clk    clock.Clock
	log    *zap.Logger
	cfg    Config
}

// New creates a link check service.
func New(source LinkSource, writer LinkWriter, client Doer, clk clock.Clock, log *zap.Logger, cfg Config) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		source: source,
		writer: writer,
		client: client,
		clk:    clk,
		log:    log,
		cfg:    cfg.withDefaults(),
	}
}

// Run probes up to p.Limit eligible links sequentially and persists the
// outcomes in sub-batches, so a cancelled run keeps the results gathered
// before the cancellation. DryRun probes without writing.
func (s *Service) Run(ctx context.Context, p Params) (Report, error) {
	if p.Limit < 1 || p.Limit > s.cfg.MaxLimit {
		return Report{}, fmt.Errorf("%w: limit must be between 1 and %d, got %d",
			domain.ErrInvalidInput, s.cfg.MaxLimit, p.Limit)
	}

	cutoff := s.clk.Now().Add(-s.cfg.RecheckAfter)
	records, err := s.source.Eligible(ctx, cutoff, p.Limit)
	if err != nil {
		return Report{}, fmt.Errorf("list eligible links: %w", err)
	}

	report := Report{DryRun: p.DryRun}
	var pending []domain.Link

	for i, rec := range records {
		if i > 0 {
			if err := clock.Sleep(ctx, s.clk, s.cfg.Delay); err != nil {
				return report, err
			}
		}

		url := probeURL(rec)
		if url == "" {
			continue
		}

		link, transportErr := s.probe(ctx, rec.ID, url)
		report.Checked++
		report.Results = append(report.Results, link)
		if link.Status == domain.LinkOK {
			report.OK++
		} else {
			report.Broken++
			if transportErr {
				report.Errors++
			}
		}
		metrics.LinkChecksTotal.WithLabelValues(string(link.Status)).Inc()

		s.log.Debug("link probed",
			zap.String("record", rec.ID),
			zap.String("url", url),
			zap.String("status", string(link.Status)))

		if p.DryRun {
			continue
		}
		pending = append(pending, link)
		if len(pending) >= s.cfg.WriteBatchSize {
			if err := s.writer.UpsertHealth(ctx, pending); err != nil {
				return report, fmt.Errorf("persist link health: %w", err)
			}
			report.Updated += len(pending)
			pending = nil
		}
	}

	if len(pending) > 0 {
		if err := s.writer.UpsertHealth(ctx, pending); err != nil {
			return report, fmt.Errorf("persist link health: %w", err)
		}
		report.Updated += len(pending)
	}

	s.log.Info("link check run finished",
		zap.Int("checked", report.Checked),
		zap.Int("updated", report.Updated),
		zap.Int("ok", report.OK),
		zap.Int("broken", report.Broken),
		zap.Int("errors", report.Errors),
		zap.Bool("dry_run", p.DryRun))

	return report, nil
}

// probeURL picks the URL worth probing: the product page when present,
// otherwise the thumbnail.
func probeURL(rec domain.Record) string {
	if rec.ProductURL != "" {
		return rec.ProductURL
	}
	return rec.ThumbnailURL
}

// probe issues one HEAD request. Any 2xx or 3xx status counts as alive;
// everything else, including transport failures, marks the link broken.
// The second return value reports a transport-level failure as opposed to
// an unexpected status code.
func (s *Service) probe(ctx context.Context, recordID, url string) (domain.Link, bool) {
	start := time.Now()
	link := domain.Link{ID: recordID, URL: url, CheckedAt: s.clk.Now()}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, url, nil)
	if err != nil {
		link.Status = domain.LinkBroken
		link.Error = err.Error()
		return link, true
	}

	resp, err := s.client.Do(req)
	metrics.LinkCheckDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		link.Status = domain.LinkBroken
		link.Error = err.Error()
		return link, true
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		link.Status = domain.LinkOK
		return link, false
	}
	link.Status = domain.LinkBroken
	link.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	return link, false
}
