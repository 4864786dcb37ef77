package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	catalogdomain "github.com/basketlabs/shelfscout/internal/catalog/domain"
	"github.com/basketlabs/shelfscout/internal/config"
	ingestdomain "github.com/basketlabs/shelfscout/internal/ingest/domain"
	"github.com/basketlabs/shelfscout/internal/ingest/fetch"
	"github.com/basketlabs/shelfscout/internal/ingest/normalize"
	"github.com/basketlabs/shelfscout/internal/ingest/sanitize"
	"github.com/basketlabs/shelfscout/internal/observability/metrics"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Sources config.SourcesConfig
	Catalog catalogdomain.Service
	Metrics *metrics.IngestMetrics

	Adapters []fetch.Source `group:"sources"`
}

// Service runs one full ingestion cycle per source: orchestrated fetch,
// normalization, sanitization and idempotent persistence.
type Service struct {
	log        *zap.Logger
	sources    config.SourcesConfig
	catalog    catalogdomain.Service
	metrics    *metrics.IngestMetrics
	adapters   map[string]fetch.Source
	normalizer *normalize.Normalizer
}

func New(p Params) *Service {
	adapters := make(map[string]fetch.Source, len(p.Adapters))
	for _, a := range p.Adapters {
		if a == nil {
			continue
		}
		adapters[a.Meta().Code] = a
	}
	mapper := normalize.NewCategoryMapper(p.Sources.CategoryRules(), p.Log)
	return &Service{
		log:        p.Log.Named("ingest.service"),
		sources:    p.Sources,
		catalog:    p.Catalog,
		metrics:    p.Metrics,
		adapters:   adapters,
		normalizer: normalize.New(mapper),
	}
}

// SourceCodes lists the adapters this service can run, in no fixed order.
func (s *Service) SourceCodes() []string {
	codes := make([]string, 0, len(s.adapters))
	for code := range s.adapters {
		codes = append(codes, code)
	}
	return codes
}

// Run ingests one source end to end and always returns a summary unless the
// run itself cannot start (unknown source, cancelled context).
func (s *Service) Run(ctx context.Context, sourceCode string) (ingestdomain.RunSummary, error) {
	started := time.Now().UTC()
	runID := uuid.NewString()
	log := s.log.With(
		zap.String("source", sourceCode),
		zap.String("run_id", runID),
	)

	adapter, ok := s.adapters[strings.TrimSpace(sourceCode)]
	if !ok {
		err := fmt.Errorf("%w: no adapter registered for %q", ingestdomain.ErrConfiguration, sourceCode)
		s.metrics.IncRun(sourceCode, metrics.RunStatusFailure)
		s.metrics.IncRunError(sourceCode, err)
		return ingestdomain.RunSummary{}, err
	}

	if _, err := s.catalog.BeginRun(ctx, sourceCode); err != nil {
		err = fmt.Errorf("%w: %v", ingestdomain.ErrConfiguration, err)
		s.metrics.IncRun(sourceCode, metrics.RunStatusFailure)
		s.metrics.IncRunError(sourceCode, err)
		return ingestdomain.RunSummary{}, err
	}

	srcCfg := s.sources.Get(sourceCode)
	orch := fetch.NewOrchestrator(fetch.Config{
		SearchTerm:   srcCfg.SearchTerm,
		Workers:      srcCfg.Workers,
		PageSize:     srcCfg.PageSize,
		MaxPages:     srcCfg.MaxPages,
		FetchDetails: srcCfg.DetailsEnabled(),
		PageDelay:    srcCfg.PageDelay,
		DetailDelay:  srcCfg.DetailDelay,
		Timeout:      srcCfg.Timeout,
		MaxAttempts:  srcCfg.MaxAttempts,
	}, s.log, s.metrics)

	var upserted atomic.Int64
	emit := func(ctx context.Context, c ingestdomain.Candidate) error {
		var rec catalogdomain.FlatRecord
		err := s.metrics.Timed(metrics.StageNormalize, func() error {
			var err error
			rec, err = s.normalizer.Normalize(c)
			return err
		})
		if err != nil {
			return err
		}

		_ = s.metrics.Timed(metrics.StageSanitize, func() error {
			rec, _ = sanitize.Clean(rec)
			return nil
		})
		if !srcCfg.CaptureRaw {
			rec.Raw = nil
		}

		var res catalogdomain.UpsertResult
		err = s.metrics.Timed(metrics.StageUpsert, func() error {
			var err error
			res, err = s.catalog.UpsertFlat(ctx, sourceCode, rec)
			return err
		})
		if err != nil {
			return err
		}

		upserted.Add(1)
		outcome := metrics.ItemOutcomeUpdated
		if res.Created {
			outcome = metrics.ItemOutcomeCreated
		}
		s.metrics.IncItem(sourceCode, outcome)
		if len(rec.Raw) > 0 {
			s.metrics.IncItem(sourceCode, metrics.ItemOutcomeRawSaved)
		}
		log.Info("item upserted",
			zap.String("product_id", rec.ProductID),
			zap.String("title", rec.Name),
			zap.String("category", rec.InternalCategoryName),
			zap.String("product_type", rec.ProductType),
			zap.Bool("created", res.Created),
			zap.Bool("price_changed", res.PriceChanged),
		)
		return nil
	}

	counts, runErr := orch.Run(ctx, adapter, emit)
	finished := time.Now().UTC()

	summary := ingestdomain.RunSummary{
		Source:   sourceCode,
		RunID:    runID,
		Pages:    counts.Pages,
		Queued:   counts.Queued,
		Fetched:  counts.Fetched,
		Upserted: int(upserted.Load()),
		Failed:   counts.Failed,
		Skipped:  counts.Skipped,
		Started:  started,
		Finished: finished,
	}

	status := metrics.RunStatusSuccess
	if runErr != nil {
		status = metrics.RunStatusFailure
		s.metrics.IncRunError(sourceCode, runErr)
	}
	s.metrics.IncRun(sourceCode, status)
	s.metrics.ObserveRunDuration(sourceCode, finished.Sub(started))

	log.Info("run finished",
		zap.Int("pages", summary.Pages),
		zap.Int("queued", summary.Queued),
		zap.Int("fetched", summary.Fetched),
		zap.Int("upserted", summary.Upserted),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("elapsed", finished.Sub(started)),
		zap.Error(runErr),
	)
	return summary, runErr
}
