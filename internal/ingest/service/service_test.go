package service

import (
	"context"
	"fmt"
	"testing"

	catalogdomain "github.com/basketlabs/shelfscout/internal/catalog/domain"
	"github.com/basketlabs/shelfscout/internal/catalog/repository"
	catalogservice "github.com/basketlabs/shelfscout/internal/catalog/service"
	"github.com/basketlabs/shelfscout/internal/config"
	ingestdomain "github.com/basketlabs/shelfscout/internal/ingest/domain"
	"github.com/basketlabs/shelfscout/internal/ingest/fetch"
	"github.com/basketlabs/shelfscout/internal/observability/metrics"
	"github.com/basketlabs/shelfscout/internal/sources/catalogfake"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestPipeline(t *testing.T, sources config.SourcesConfig, adapters ...fetch.Source) (*Service, *gorm.DB) {
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

	svc := New(Params{
		Log:      zap.NewNop(),
		Sources:  sources,
		Catalog:  catalog,
		Metrics:  metrics.Ingest(),
		Adapters: adapters,
	})
	return svc, db
}

func demoSources(overrides func(*config.SourceConfig)) config.SourcesConfig {
	sc := config.SourceConfig{
		Code:        "demo",
		Name:        "Demo Market",
		Workers:     2,
		PageSize:    2,
		MaxAttempts: 2,
		CaptureRaw:  true,
	}
	if overrides != nil {
		overrides(&sc)
	}
	return config.SourcesConfig{Sources: []config.SourceConfig{sc}}
}

func demoItems() []catalogfake.Item {
	return []catalogfake.Item{
		{ID: "p-1", Title: "Halfvolle Melk 1L", Price: "1,29", Category: "Zuivel, eieren", CategoryCode: "cat-12"},
		{ID: "p-2", Title: "Pindakaas 350g", Price: "2,49", WasPrice: "3,19", PromoText: "2e halve prijs"},
		{ID: "p-3", Title: "Bananen per kilo", Price: "€ 1,89", Category: "Groente"},
	}
}

func TestRunEndToEnd(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo Market", demoItems(),
		catalogfake.WithDetailFailure(func(id string, attempt int) error {
			if id == "p-2" {
				return &fetch.StatusError{Code: 404}
			}
			return nil
		}),
	)
	svc, db := newTestPipeline(t, demoSources(nil), adapter)

	summary, err := svc.Run(context.Background(), "demo")
	require.NoError(t, err)

	assert.Equal(t, "demo", summary.Source)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 3, summary.Queued)
	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.Upserted)
	assert.False(t, summary.Finished.Before(summary.Started))

	var products []catalogdomain.Product
	require.NoError(t, db.Order("product_id").Find(&products).Error)
	require.Len(t, products, 2)
	assert.Equal(t, "p-1", products[0].ProductID)
	assert.True(t, products[0].Price.Equal(decimal.NewFromFloat(1.29)))
	assert.Equal(t, "p-3", products[1].ProductID)
	assert.True(t, products[1].Price.Equal(decimal.NewFromFloat(1.89)))

	var raws int64
	require.NoError(t, db.Model(&catalogdomain.ProductRaw{}).Count(&raws).Error)
	assert.EqualValues(t, 2, raws)
}

func TestRunSecondPassUpdatesInPlace(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo Market", demoItems())
	svc, db := newTestPipeline(t, demoSources(nil), adapter)

	first, err := svc.Run(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, 3, first.Upserted)

	second, err := svc.Run(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, 3, second.Upserted)

	var products int64
	require.NoError(t, db.Model(&catalogdomain.Product{}).Count(&products).Error)
	assert.EqualValues(t, 3, products, "re-running a source never duplicates rows")
}

func TestRunCategoryRules(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo Market", demoItems())
	sources := demoSources(func(sc *config.SourceConfig) {
		sc.CategoryRules = map[string]string{
			"cat-12":  "Zuivel",
			"Groente": "Groente & Fruit",
		}
	})
	svc, db := newTestPipeline(t, sources, adapter)

	_, err := svc.Run(context.Background(), "demo")
	require.NoError(t, err)

	wantCategory := func(productID, name string) {
		var product catalogdomain.Product
		require.NoError(t, db.Where("product_id = ?", productID).First(&product).Error)
		require.NotNil(t, product.InternalCategoryID)
		var cat catalogdomain.InternalCategory
		require.NoError(t, db.First(&cat, *product.InternalCategoryID).Error)
		assert.Equal(t, name, cat.Name, "product %s", productID)
	}
	wantCategory("p-1", "Zuivel")
	wantCategory("p-3", "Groente & Fruit")
	wantCategory("p-2", "Overig")
}

func TestRunRawCaptureDisabled(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo Market", demoItems())
	sources := demoSources(func(sc *config.SourceConfig) { sc.CaptureRaw = false })
	svc, db := newTestPipeline(t, sources, adapter)

	_, err := svc.Run(context.Background(), "demo")
	require.NoError(t, err)

	var raws int64
	require.NoError(t, db.Model(&catalogdomain.ProductRaw{}).Count(&raws).Error)
	assert.Zero(t, raws)
}

func TestRunUnknownAdapter(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo Market", demoItems())
	svc, _ := newTestPipeline(t, demoSources(nil), adapter)

	_, err := svc.Run(context.Background(), "ghost")
	assert.ErrorIs(t, err, ingestdomain.ErrConfiguration)
}

func TestRunUnseededSource(t *testing.T) {
	adapter := catalogfake.New("demo", "Demo Market", demoItems())
	svc, db := newTestPipeline(t, demoSources(nil), adapter)

	require.NoError(t, db.Where("code = ?", "demo").Delete(&catalogdomain.Source{}).Error)

	_, err := svc.Run(context.Background(), "demo")
	assert.ErrorIs(t, err, ingestdomain.ErrConfiguration)
}

func TestSourceCodes(t *testing.T) {
	a := catalogfake.New("a", "A", nil)
	b := catalogfake.New("b", "B", nil)
	svc, _ := newTestPipeline(t, config.SourcesConfig{}, a, b)

	assert.ElementsMatch(t, []string{"a", "b"}, svc.SourceCodes())
}
