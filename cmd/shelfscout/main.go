package main

import (
	"context"

	"github.com/basketlabs/shelfscout/internal/catalog"
	"github.com/basketlabs/shelfscout/internal/config"
	"github.com/basketlabs/shelfscout/internal/ingest"
	"github.com/basketlabs/shelfscout/internal/ingest/fetch"
	ingestservice "github.com/basketlabs/shelfscout/internal/ingest/service"
	"github.com/basketlabs/shelfscout/internal/logger"
	"github.com/basketlabs/shelfscout/internal/observability/metrics"
	"github.com/basketlabs/shelfscout/internal/scheduler"
	"github.com/basketlabs/shelfscout/internal/seed"
	"github.com/basketlabs/shelfscout/internal/sources/catalogfake"
	"github.com/basketlabs/shelfscout/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,

		catalog.Module,
		ingest.Module,
		scheduler.Module,

		fx.Provide(fx.Annotate(RegisterDemoSource, fx.ResultTags(`group:"sources"`))),

		fx.Invoke(Bootstrap),
		fx.Invoke(Start),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// RegisterDemoSource wires the offline demo catalog outside production so a
// fresh checkout has something to ingest before real adapters are deployed.
func RegisterDemoSource(cfg config.Config) fetch.Source {
	if cfg.Environment == "production" {
		return nil
	}
	return catalogfake.New("demo", "Demo Market", demoItems())
}

// Bootstrap seeds the source dimension rows before anything runs.
func Bootstrap(gdb *gorm.DB, sources config.SourcesConfig, log *zap.Logger) error {
	if err := seed.EnsureSources(gdb, sources); err != nil {
		return err
	}
	log.Info("sources seeded", zap.Int("configured", len(sources.Sources)))
	return nil
}

// Start either hands control to the scheduler or performs a single pass over
// every registered source and exits.
func Start(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, sched *scheduler.Scheduler, svc *ingestservice.Service, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.SchedulerEnabled {
				go sched.RunForever(context.Background())
				return nil
			}
			go func() {
				g, ctx := errgroup.WithContext(context.Background())
				for _, code := range svc.SourceCodes() {
					code := code
					g.Go(func() error {
						if _, err := svc.Run(ctx, code); err != nil {
							log.Error("run failed", zap.String("source", code), zap.Error(err))
						}
						return nil
					})
				}
				_ = g.Wait()
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
	})
}

func demoItems() []catalogfake.Item {
	return []catalogfake.Item{
		{
			ID:       "demo-1001",
			Title:    "Halfvolle Melk 1L",
			Brand:    "Boerenland",
			UnitSize: "1 l",
			Price:    "1,29",
			Category: "Zuivel, eieren",
			Keywords: []string{"melk", "zuivel"},
		},
		{
			ID:        "demo-1002",
			Title:     "Pindakaas Naturel",
			Brand:     "NootNoot",
			UnitSize:  "350 g",
			Price:     "2,49",
			WasPrice:  "3,19",
			PromoText: "Nu in de bonus",
			Category:  "Broodbeleg",
			Keywords:  []string{"pindakaas", "broodbeleg"},
		},
		{
			ID:       "demo-1003",
			Title:    "Komkommer",
			UnitSize: "per stuk",
			Price:    "0,99",
			Category: "Groente",
			Keywords: []string{"groente", "vers"},
		},
	}
}
