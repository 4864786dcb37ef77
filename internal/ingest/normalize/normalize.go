// Package normalize turns source-specific candidates into the canonical
// record shape: price and promo arithmetic, category slugs, stable keys.
package normalize

import (
	"fmt"
	"strings"
	"time"

	catalogdomain "github.com/basketlabs/shelfscout/internal/catalog/domain"
	ingestdomain "github.com/basketlabs/shelfscout/internal/ingest/domain"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

// DefaultStoreCategory names the source-side bucket for uncategorized items.
const DefaultStoreCategory = "Uncategorized"

// FallbackSlug is used when a category name slugs down to nothing.
const FallbackSlug = "uncategorized"

type Normalizer struct {
	mapper *CategoryMapper
	now    func() time.Time
}

func New(mapper *CategoryMapper) *Normalizer {
	return &Normalizer{
		mapper: mapper,
		now:    time.Now,
	}
}

// Key builds the stable identity of an item across runs.
func Key(sourceCode, productID string) string {
	return fmt.Sprintf("%s:%s", sourceCode, productID)
}

// CategorySlug derives a URL-safe slug from a raw category name.
func CategorySlug(name string) string {
	s := slug.Make(name)
	if s == "" {
		return FallbackSlug
	}
	return s
}

// Normalize maps a candidate into the canonical flat record. Only a missing
// product identifier is an error; every other defect is degraded or
// defaulted and left for the sanitizer to flag.
func (n *Normalizer) Normalize(c ingestdomain.Candidate) (catalogdomain.FlatRecord, error) {
	productID := strings.TrimSpace(c.ProductID)
	if productID == "" {
		return catalogdomain.FlatRecord{}, &ingestdomain.MappingError{Field: "product_id", Reason: "missing"}
	}

	price := ParsePrice(c.Price)
	original := ParsePrice(c.OriginalPrice)
	if original.IsZero() {
		original = price
	}

	var discount decimal.Decimal
	if c.DiscountPercentage != nil {
		discount = decimal.NewFromFloat(*c.DiscountPercentage).Round(2)
	} else {
		discount = DeriveDiscount(price, original)
	}

	internalName := n.mapper.Map(c)
	storeName := strings.TrimSpace(c.StoreCategoryName)
	if storeName == "" {
		storeName = DefaultStoreCategory
	}

	fetchedAt := c.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = n.now().UTC()
	}

	rec := catalogdomain.FlatRecord{
		ProductID:          productID,
		Name:               c.Name,
		Brand:              c.Brand,
		Description:        c.Description,
		ImageURL:           c.ImageURL,
		ProductURL:         c.ProductURL,
		UnitSize:           c.UnitSize,
		Price:              price,
		OriginalPrice:      original,
		DiscountPercentage: discount,
		ProductType:        n.deriveProductType(c, discount),
		PromoText:          c.PromoText,
		PromoStart:         c.PromoStart,
		PromoEnd:           c.PromoEnd,
		Keywords:           c.Keywords,

		InternalCategoryName: internalName,
		InternalCategorySlug: CategorySlug(internalName),
		StoreCategory: catalogdomain.StoreCategoryRef{
			Code:        strings.TrimSpace(c.StoreCategoryCode),
			Name:        storeName,
			Slug:        CategorySlug(storeName),
			Description: c.StoreCategoryDescription,
			LogoURL:     c.StoreCategoryLogoURL,
		},

		Raw:       c.Raw,
		FetchedAt: fetchedAt,
	}
	return rec, nil
}

// deriveProductType classifies the promo state from the validity window and
// the effective discount.
func (n *Normalizer) deriveProductType(c ingestdomain.Candidate, discount decimal.Decimal) string {
	now := n.now().UTC()
	if c.PromoEnd != nil && now.After(*c.PromoEnd) {
		return catalogdomain.ProductTypeExpiredBonus
	}
	if c.PromoStart != nil && now.Before(*c.PromoStart) {
		return catalogdomain.ProductTypeNotInBonus
	}
	if c.PromoText != "" || c.PromoStart != nil || discount.IsPositive() {
		return catalogdomain.ProductTypeBonus
	}
	return catalogdomain.ProductTypeNotInBonus
}
