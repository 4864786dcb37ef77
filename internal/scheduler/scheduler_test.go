package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	catalogdomain "github.com/basketlabs/shelfscout/internal/catalog/domain"
	"github.com/basketlabs/shelfscout/internal/catalog/repository"
	catalogservice "github.com/basketlabs/shelfscout/internal/catalog/service"
	"github.com/basketlabs/shelfscout/internal/config"
	"github.com/basketlabs/shelfscout/internal/ingest/fetch"
	ingestservice "github.com/basketlabs/shelfscout/internal/ingest/service"
	"github.com/basketlabs/shelfscout/internal/observability/metrics"
	"github.com/basketlabs/shelfscout/internal/sources/catalogfake"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestIngest(t *testing.T, sources config.SourcesConfig, adapters ...fetch.Source) *ingestservice.Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Source{},
		&catalogdomain.InternalCategory{},
		&catalogdomain.StoreCategory{},
		&catalogdomain.Product{},
		&catalogdomain.ProductRaw{},
		&catalogdomain.PriceHistory{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide(node)
	catalog := catalogservice.New(catalogservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repo,
	})

	for _, a := range adapters {
		_, err := repo.EnsureSource(context.Background(), db, &catalogdomain.Source{
			Code: a.Meta().Code,
			Name: a.Meta().Name,
		})
		require.NoError(t, err)
	}

	return ingestservice.New(ingestservice.Params{
		Log:      zap.NewNop(),
		Sources:  sources,
		Catalog:  catalog,
		Metrics:  metrics.Ingest(),
		Adapters: adapters,
	})
}

func demoScheduleSources() config.SourcesConfig {
	return config.SourcesConfig{Sources: []config.SourceConfig{{
		Code:        "demo",
		Name:        "Demo Market",
		SearchTerm:  "melk",
		Workers:     1,
		PageSize:    10,
		MaxAttempts: 2,
		RunInterval: time.Hour,
	}}}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunForeverIdleStopsOnCancel(t *testing.T) {
	ing := newTestIngest(t, config.SourcesConfig{})
	sched, err := New(Params{Log: zap.NewNop(), Ingest: ing})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sched.RunForever(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("idle scheduler did not stop on cancellation")
	}
}

func TestRunForeverStopsBetweenRuns(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo Market", nil)
	sources := demoScheduleSources()
	ing := newTestIngest(t, sources, adapter)
	sched, err := New(Params{
		Log:     zap.NewNop(),
		Ingest:  ing,
		Sources: sources,
		Config:  Config{RunTimeout: time.Minute, StartJitter: 0},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.RunForever(ctx)
		close(done)
	}()

	// The first run fires immediately with zero jitter; wait for it, then
	// cancel while the loop sits on its hour-long interval.
	deadline := time.After(2 * time.Second)
	for adapter.LastTerm() != "melk" {
		select {
		case <-deadline:
			t.Fatal("scheduled run never reached the source")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop between runs")
	}
}

func TestRunForeverCancelDuringJitter(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo Market", nil)
	sources := demoScheduleSources()
	ing := newTestIngest(t, sources, adapter)
	sched, err := New(Params{
		Log:     zap.NewNop(),
		Ingest:  ing,
		Sources: sources,
		Config:  Config{StartJitter: time.Hour},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sched.RunForever(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop during start jitter")
	}
	assert.Empty(t, adapter.LastTerm(), "no run starts once the context is gone")
}
