package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FlatRecord is the normalized, sanitized shape handed to the repository.
// Dimension fields are resolved to foreign keys during the upsert.
type FlatRecord struct {
	ProductID          string
	Name               string
	Brand              string
	Description        string
	ImageURL           string
	ProductURL         string
	UnitSize           string
	Price              decimal.Decimal
	OriginalPrice      decimal.Decimal
	DiscountPercentage decimal.Decimal
	ProductType        string
	PromoText          string
	PromoStart         *time.Time
	PromoEnd           *time.Time
	Keywords           []string
	Warnings           []string

	InternalCategoryName string
	InternalCategorySlug string
	StoreCategory        StoreCategoryRef

	Raw       json.RawMessage
	FetchedAt time.Time
}

// StoreCategoryRef identifies a source-local taxonomy node. Code is unique
// within a source; when the source supplies none it is derived from the name.
type StoreCategoryRef struct {
	Code        string
	Name        string
	Slug        string
	Description string
	LogoURL     string
}

// UpsertResult reports what a single upsert did.
type UpsertResult struct {
	ProductID    int64
	Created      bool
	PriceChanged bool
}

type Repository interface {
	FindSourceByCode(ctx context.Context, db *gorm.DB, code string) (*Source, error)
	EnsureSource(ctx context.Context, db *gorm.DB, source *Source) (*Source, error)
	ResolveInternalCategory(ctx context.Context, db *gorm.DB, name, slug string) (*InternalCategory, error)
	ResolveStoreCategory(ctx context.Context, db *gorm.DB, sourceID int64, ref StoreCategoryRef) (*StoreCategory, error)
	UpsertProduct(ctx context.Context, db *gorm.DB, product *Product) (UpsertResult, error)
	SaveRaw(ctx context.Context, db *gorm.DB, raw *ProductRaw) error
	ResetRunCache()
}

type Service interface {
	UpsertFlat(ctx context.Context, sourceCode string, rec FlatRecord) (UpsertResult, error)
	BeginRun(ctx context.Context, sourceCode string) (*Source, error)
}
