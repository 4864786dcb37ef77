package fetch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	ingestdomain "github.com/basketlabs/shelfscout/internal/ingest/domain"
	"github.com/basketlabs/shelfscout/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config bounds one orchestrated run. Timeout caps every individual fetch
// attempt; exceeding it counts as a transient failure.
type Config struct {
	SearchTerm   string
	Workers      int
	PageSize     int
	MaxPages     int
	FetchDetails bool
	PageDelay    time.Duration
	DetailDelay  time.Duration
	Timeout      time.Duration
	MaxAttempts  int
}

// Counts are the per-run counters returned to the caller. Upserts are
// counted downstream by the emit callback's owner.
type Counts struct {
	Pages   int
	Queued  int
	Fetched int
	Failed  int
	Skipped int
}

type counters struct {
	pages   atomic.Int64
	queued  atomic.Int64
	fetched atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

func (c *counters) snapshot() Counts {
	return Counts{
		Pages:   int(c.pages.Load()),
		Queued:  int(c.queued.Load()),
		Fetched: int(c.fetched.Load()),
		Failed:  int(c.failed.Load()),
		Skipped: int(c.skipped.Load()),
	}
}

// Orchestrator paginates a source sequentially and fans detail fetches out
// to a bounded worker pool. Item-level failures are counted, never raised.
type Orchestrator struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.IngestMetrics
}

func NewOrchestrator(cfg Config, log *zap.Logger, m *metrics.IngestMetrics) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 24
	}
	return &Orchestrator{
		cfg:     cfg,
		log:     log.Named("ingest.fetch"),
		metrics: m,
	}
}

// Run drives the full pagination loop and returns once every queued item
// has drained. Only cancellation surfaces as an error; everything else is
// reflected in the counters.
func (o *Orchestrator) Run(ctx context.Context, src Source, emit EmitFunc) (Counts, error) {
	meta := src.Meta()
	log := o.log.With(zap.String("source", meta.Code))

	var cnt counters
	tasks := make(chan Listing)

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// The inter-detail delay applies per worker, bounding the
			// aggregate detail rate to workers/delay.
			var limiter *rate.Limiter
			if o.cfg.DetailDelay > 0 {
				limiter = rate.NewLimiter(rate.Every(o.cfg.DetailDelay), 1)
			}
			for listing := range tasks {
				o.processItem(ctx, src, meta.Code, listing, limiter, emit, &cnt, log)
			}
		}()
	}

	var pageLimiter *rate.Limiter
	if o.cfg.PageDelay > 0 {
		pageLimiter = rate.NewLimiter(rate.Every(o.cfg.PageDelay), 1)
	}

	var runErr error
	offset := 0
pagination:
	for page := 0; ; page++ {
		if o.cfg.MaxPages > 0 && page >= o.cfg.MaxPages {
			log.Info("page ceiling reached", zap.Int("max_pages", o.cfg.MaxPages))
			break
		}
		if pageLimiter != nil {
			if err := pageLimiter.Wait(ctx); err != nil {
				runErr = err
				break
			}
		}

		var pg Page
		err := o.withRetry(ctx, src, meta.Code, log, func(ctx context.Context) error {
			var err error
			pg, err = src.SearchPage(ctx, o.cfg.SearchTerm, offset, o.cfg.PageSize)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
			} else {
				log.Error("page fetch failed, stopping pagination",
					zap.Int("offset", offset),
					zap.Error(err),
				)
			}
			break
		}

		cnt.pages.Add(1)
		o.metrics.IncPage(meta.Code)
		log.Info("page received",
			zap.Int("offset", offset),
			zap.Int("items", len(pg.Listings)),
			zap.Int("total", pg.Total),
		)

		for _, listing := range pg.Listings {
			select {
			case tasks <- listing:
				cnt.queued.Add(1)
			case <-ctx.Done():
				runErr = ctx.Err()
				break pagination
			}
		}

		if !pg.HasMore || len(pg.Listings) == 0 {
			break
		}
		offset += len(pg.Listings)
	}

	close(tasks)
	wg.Wait()
	return cnt.snapshot(), runErr
}

func (o *Orchestrator) processItem(ctx context.Context, src Source, sourceCode string, listing Listing, limiter *rate.Limiter, emit EmitFunc, cnt *counters, log *zap.Logger) {
	var detail *Detail
	if o.cfg.FetchDetails {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				cnt.failed.Add(1)
				return
			}
		}
		var d Detail
		err := o.metrics.Timed(metrics.StageFetchDetail, func() error {
			return o.withRetry(ctx, src, sourceCode, log, func(ctx context.Context) error {
				var err error
				d, err = src.FetchDetail(ctx, listing)
				return err
			})
		})
		switch {
		case err == nil:
			detail = &d
		case IsNotFound(err):
			cnt.skipped.Add(1)
			o.metrics.IncItem(sourceCode, metrics.ItemOutcomeSkipped)
			log.Info("detail not found, skipping item",
				zap.String("product_id", listing.ProductID),
				zap.String("title", listing.Title),
			)
			return
		default:
			cnt.failed.Add(1)
			o.metrics.IncItem(sourceCode, metrics.ItemOutcomeFailed)
			log.Warn("detail fetch failed",
				zap.String("product_id", listing.ProductID),
				zap.Error(err),
			)
			return
		}
		log.Debug("detail fetched",
			zap.String("product_id", listing.ProductID),
			zap.String("title", listing.Title),
		)
	}

	candidate, err := src.ToCandidate(listing, detail)
	if err != nil {
		cnt.failed.Add(1)
		o.metrics.IncItem(sourceCode, metrics.ItemOutcomeFailed)
		log.Warn("candidate mapping failed",
			zap.String("product_id", listing.ProductID),
			zap.Error(err),
		)
		return
	}
	cnt.fetched.Add(1)
	o.metrics.IncItem(sourceCode, metrics.ItemOutcomeFetched)

	if err := emit(ctx, candidate); err != nil {
		cnt.failed.Add(1)
		o.metrics.IncItem(sourceCode, metrics.ItemOutcomeFailed)
		log.Warn("emit failed",
			zap.String("product_id", listing.ProductID),
			zap.String("failure", classifyItemFailure(err)),
			zap.Error(err),
		)
	}
}

func classifyItemFailure(err error) string {
	switch {
	case ingestdomain.IsMappingError(err):
		return "mapping"
	case IsNotFound(err):
		return "not_found"
	case IsRateLimited(err):
		return "rate_limited"
	default:
		return "other"
	}
}
