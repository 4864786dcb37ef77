package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/basketlabs/shelfscout/internal/config"
	ingestservice "github.com/basketlabs/shelfscout/internal/ingest/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log     *zap.Logger
	Ingest  *ingestservice.Service
	Sources config.SourcesConfig
	Config  Config `optional:"true"`
}

// Scheduler runs every registered source on its configured interval, one
// loop per source. Sources never block each other.
type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	ingest  *ingestservice.Service
	sources config.SourcesConfig
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Ingest == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler"),
		cfg:     p.Config.withDefaults(),
		ingest:  p.Ingest,
		sources: p.Sources,
	}, nil
}

// RunForever blocks until ctx is cancelled, ingesting each source on its
// interval. The first run per source starts after a small jitter so process
// restarts do not hammer every upstream at once.
func (s *Scheduler) RunForever(ctx context.Context) {
	codes := s.ingest.SourceCodes()
	if len(codes) == 0 {
		s.log.Warn("no sources registered, scheduler idle")
		<-ctx.Done()
		return
	}

	var wg sync.WaitGroup
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			s.runLoop(ctx, code)
		}(code)
	}
	wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, code string) {
	interval := s.sources.Get(code).RunInterval
	log := s.log.With(zap.String("source", code), zap.Duration("interval", interval))

	if s.cfg.StartJitter > 0 {
		jitter := time.Duration(rand.Int63n(int64(s.cfg.StartJitter)))
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return
		}
	}

	log.Info("scheduling source")
	s.runOnce(ctx, code, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, code, log)
		case <-ctx.Done():
			log.Info("scheduler loop stopped")
			return
		}
	}
}

func (s *Scheduler) runOnce(parent context.Context, code string, log *zap.Logger) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	summary, err := s.ingest.Run(ctx, code)
	if err != nil {
		log.Error("scheduled run failed", zap.Error(err))
		return
	}
	log.Info("scheduled run finished",
		zap.Int("pages", summary.Pages),
		zap.Int("upserted", summary.Upserted),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
}
