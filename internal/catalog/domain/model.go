package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	ProductTypeBonus        = "BONUS"
	ProductTypeNotInBonus   = "NOT_IN_BONUS"
	ProductTypeExpiredBonus = "EXPIRED_BONUS"
)

type Source struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	Code         string    `json:"code" gorm:"type:text;not null;uniqueIndex:uq_sources_code"`
	Name         string    `json:"name" gorm:"type:text;not null"`
	Abbreviation string    `json:"abbreviation" gorm:"type:text;not null;default:''"`
	LogoURL      string    `json:"logo_url" gorm:"type:text;not null;default:''"`
	BrandColor   string    `json:"brand_color" gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Source) TableName() string { return "sources" }

type InternalCategory struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:text;not null;uniqueIndex:uq_internal_categories_name"`
	Slug      string    `json:"slug" gorm:"type:text;not null;index:idx_internal_categories_slug"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InternalCategory) TableName() string { return "internal_categories" }

type StoreCategory struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	SourceID    int64     `json:"source_id" gorm:"not null;uniqueIndex:uq_store_categories_source_code,priority:1"`
	Code        string    `json:"code" gorm:"type:text;not null;uniqueIndex:uq_store_categories_source_code,priority:2"`
	Name        string    `json:"name" gorm:"type:text;not null;index:idx_store_categories_name"`
	Slug        string    `json:"slug" gorm:"type:text;not null;default:''"`
	Description string    `json:"description" gorm:"type:text;not null;default:''"`
	LogoURL     string    `json:"logo_url" gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (StoreCategory) TableName() string { return "store_categories" }

type Product struct {
	ID                 int64                       `json:"id" gorm:"primaryKey"`
	ProductID          string                      `json:"product_id" gorm:"type:text;not null;uniqueIndex:uq_products_product_source,priority:1"`
	SourceID           int64                       `json:"source_id" gorm:"not null;uniqueIndex:uq_products_product_source,priority:2;index:idx_products_source"`
	Name               string                      `json:"name" gorm:"type:text;not null"`
	Brand              string                      `json:"brand" gorm:"type:text;not null;default:''"`
	Description        string                      `json:"description" gorm:"type:text;not null;default:''"`
	ImageURL           string                      `json:"image_url" gorm:"type:text;not null;default:''"`
	ProductURL         string                      `json:"product_url" gorm:"type:text;not null;default:''"`
	UnitSize           string                      `json:"unit_size" gorm:"type:text;not null;default:''"`
	Price              decimal.Decimal             `json:"price" gorm:"type:numeric(12,2);not null;default:0"`
	OriginalPrice      decimal.Decimal             `json:"original_price" gorm:"type:numeric(12,2);not null;default:0"`
	DiscountPercentage decimal.Decimal             `json:"discount_percentage" gorm:"type:numeric(5,2);not null;default:0"`
	ProductType        string                      `json:"product_type" gorm:"type:text;not null;default:''"`
	PromoText          string                      `json:"promo_text" gorm:"type:text;not null;default:''"`
	PromoStart         *time.Time                  `json:"promo_start,omitempty"`
	PromoEnd           *time.Time                  `json:"promo_end,omitempty"`
	Keywords           datatypes.JSONSlice[string] `json:"keywords,omitempty" gorm:"type:jsonb"`
	Warnings           datatypes.JSONSlice[string] `json:"warnings,omitempty" gorm:"type:jsonb"`
	InternalCategoryID *int64                      `json:"internal_category_id,omitempty" gorm:"index:idx_products_internal_category"`
	StoreCategoryID    *int64                      `json:"store_category_id,omitempty"`
	LastSeenAt         time.Time                   `json:"last_seen_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CreatedAt          time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }

// ProductRaw is an append-only capture of upstream payloads.
type ProductRaw struct {
	ID        int64          `json:"id" gorm:"primaryKey"`
	ProductID string         `json:"product_id" gorm:"type:text;not null;index:idx_product_raws_product,priority:2"`
	SourceID  int64          `json:"source_id" gorm:"not null;index:idx_product_raws_product,priority:1"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	FetchedAt time.Time      `json:"fetched_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ProductRaw) TableName() string { return "product_raws" }

// PriceHistory is appended whenever a product's price snapshot changes.
type PriceHistory struct {
	ID                 int64           `json:"id" gorm:"primaryKey"`
	ProductRef         int64           `json:"product_ref" gorm:"column:product_ref;not null;index:idx_price_histories_product"`
	Price              decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null;default:0"`
	OriginalPrice      decimal.Decimal `json:"original_price" gorm:"type:numeric(12,2);not null;default:0"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage" gorm:"type:numeric(5,2);not null;default:0"`
	ProductType        string          `json:"product_type" gorm:"type:text;not null;default:''"`
	RecordedAt         time.Time       `json:"recorded_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PriceHistory) TableName() string { return "price_histories" }
