package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/basketlabs/shelfscout/internal/catalog/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// productMutableColumns are the columns refreshed on every re-observation of a
// product. id, product_id, source_id and created_at never change.
var productMutableColumns = []string{
	"name",
	"brand",
	"description",
	"image_url",
	"product_url",
	"unit_size",
	"price",
	"original_price",
	"discount_percentage",
	"product_type",
	"promo_text",
	"promo_start",
	"promo_end",
	"keywords",
	"warnings",
	"internal_category_id",
	"store_category_id",
	"last_seen_at",
	"updated_at",
}

type repo struct {
	genID *snowflake.Node

	mu           sync.RWMutex
	sources      map[string]*domain.Source
	internalCats map[string]*domain.InternalCategory
	storeCats    map[string]*domain.StoreCategory
}

func Provide(genID *snowflake.Node) domain.Repository {
	return &repo{
		genID:        genID,
		sources:      make(map[string]*domain.Source),
		internalCats: make(map[string]*domain.InternalCategory),
		storeCats:    make(map[string]*domain.StoreCategory),
	}
}

// ResetRunCache drops the per-run dimension caches. Call between runs so a
// row deleted out of band does not leave a stale foreign key behind.
func (r *repo) ResetRunCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = make(map[string]*domain.Source)
	r.internalCats = make(map[string]*domain.InternalCategory)
	r.storeCats = make(map[string]*domain.StoreCategory)
}

func (r *repo) FindSourceByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Source, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrUnknownSource
	}

	r.mu.RLock()
	cached, ok := r.sources[code]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var src domain.Source
	err := db.WithContext(ctx).Where("code = ?", code).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUnknownSource
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sources[code] = &src
	r.mu.Unlock()
	return &src, nil
}

func (r *repo) EnsureSource(ctx context.Context, db *gorm.DB, source *domain.Source) (*domain.Source, error) {
	if source == nil || strings.TrimSpace(source.Code) == "" {
		return nil, domain.ErrUnknownSource
	}

	now := time.Now().UTC()
	row := *source
	if row.ID == 0 {
		row.ID = r.genID.Generate().Int64()
	}
	row.CreatedAt = now
	row.UpdatedAt = now

	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var existing domain.Source
		if err := db.WithContext(ctx).Where("code = ?", row.Code).First(&existing).Error; err != nil {
			return nil, err
		}
		row = existing
	}

	r.mu.Lock()
	r.sources[row.Code] = &row
	r.mu.Unlock()
	return &row, nil
}

func (r *repo) ResolveInternalCategory(ctx context.Context, db *gorm.DB, name, slug string) (*domain.InternalCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	r.mu.RLock()
	cached, ok := r.internalCats[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var cat domain.InternalCategory
	err := db.WithContext(ctx).Where("name = ?", name).First(&cat).Error
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		now := time.Now().UTC()
		cat = domain.InternalCategory{
			ID:        r.genID.Generate().Int64(),
			Name:      name,
			Slug:      slug,
			CreatedAt: now,
			UpdatedAt: now,
		}
		res := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&cat)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			if err := db.WithContext(ctx).Where("name = ?", name).First(&cat).Error; err != nil {
				return nil, err
			}
		}
	default:
		return nil, err
	}

	r.mu.Lock()
	r.internalCats[name] = &cat
	r.mu.Unlock()
	return &cat, nil
}

func (r *repo) ResolveStoreCategory(ctx context.Context, db *gorm.DB, sourceID int64, ref domain.StoreCategoryRef) (*domain.StoreCategory, error) {
	code := strings.TrimSpace(ref.Code)
	name := strings.TrimSpace(ref.Name)
	if name == "" && code == "" {
		return nil, nil
	}
	if code == "" {
		code = ref.Slug
	}
	if code == "" {
		code = name
	}

	key := fmt.Sprintf("%d|%s", sourceID, code)
	r.mu.RLock()
	cached, ok := r.storeCats[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var cat domain.StoreCategory
	found := false
	err := db.WithContext(ctx).Where("source_id = ? AND code = ?", sourceID, code).First(&cat).Error
	switch {
	case err == nil:
		found = true
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	if !found && name != "" {
		err := db.WithContext(ctx).Where("source_id = ? AND name = ?", sourceID, name).First(&cat).Error
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}

	if !found {
		now := time.Now().UTC()
		cat = domain.StoreCategory{
			ID:          r.genID.Generate().Int64(),
			SourceID:    sourceID,
			Code:        code,
			Name:        name,
			Slug:        ref.Slug,
			Description: ref.Description,
			LogoURL:     ref.LogoURL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		res := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}, {Name: "code"}},
			DoNothing: true,
		}).Create(&cat)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			if err := db.WithContext(ctx).Where("source_id = ? AND code = ?", sourceID, code).First(&cat).Error; err != nil {
				return nil, err
			}
		}
	}

	r.mu.Lock()
	r.storeCats[key] = &cat
	r.mu.Unlock()
	return &cat, nil
}

func (r *repo) UpsertProduct(ctx context.Context, db *gorm.DB, product *domain.Product) (domain.UpsertResult, error) {
	if product == nil {
		return domain.UpsertResult{}, gorm.ErrInvalidData
	}

	now := time.Now().UTC()
	product.LastSeenAt = now
	product.UpdatedAt = now

	var existing domain.Product
	err := db.WithContext(ctx).
		Where("product_id = ? AND source_id = ?", product.ProductID, product.SourceID).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.insertProduct(ctx, db, product, now)
	case err != nil:
		return domain.UpsertResult{}, err
	}

	priceChanged := !existing.Price.Equal(product.Price) ||
		!existing.OriginalPrice.Equal(product.OriginalPrice) ||
		!existing.DiscountPercentage.Equal(product.DiscountPercentage) ||
		existing.ProductType != product.ProductType

	product.ID = existing.ID
	product.CreatedAt = existing.CreatedAt
	if err := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ?", existing.ID).
		Select(productMutableColumns).
		Updates(product).Error; err != nil {
		return domain.UpsertResult{}, err
	}

	if priceChanged {
		if err := r.appendPriceHistory(ctx, db, product, now); err != nil {
			return domain.UpsertResult{}, err
		}
	}

	return domain.UpsertResult{ProductID: existing.ID, Created: false, PriceChanged: priceChanged}, nil
}

// insertProduct writes a first sighting. The conflict clause makes the write
// converge on a row a competing writer inserted after our miss, with this
// snapshot's values winning.
func (r *repo) insertProduct(ctx context.Context, db *gorm.DB, product *domain.Product, now time.Time) (domain.UpsertResult, error) {
	if product.ID == 0 {
		product.ID = r.genID.Generate().Int64()
	}
	product.CreatedAt = now

	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns(productMutableColumns),
	}).Create(product).Error
	if err != nil {
		return domain.UpsertResult{}, err
	}

	var stored domain.Product
	if err := db.WithContext(ctx).
		Where("product_id = ? AND source_id = ?", product.ProductID, product.SourceID).
		First(&stored).Error; err != nil {
		return domain.UpsertResult{}, err
	}
	created := stored.ID == product.ID
	product.ID = stored.ID
	product.CreatedAt = stored.CreatedAt

	if err := r.appendPriceHistory(ctx, db, product, now); err != nil {
		return domain.UpsertResult{}, err
	}
	return domain.UpsertResult{ProductID: stored.ID, Created: created, PriceChanged: true}, nil
}

func (r *repo) appendPriceHistory(ctx context.Context, db *gorm.DB, product *domain.Product, at time.Time) error {
	history := domain.PriceHistory{
		ID:                 r.genID.Generate().Int64(),
		ProductRef:         product.ID,
		Price:              product.Price,
		OriginalPrice:      product.OriginalPrice,
		DiscountPercentage: product.DiscountPercentage,
		ProductType:        product.ProductType,
		RecordedAt:         at,
	}
	return db.WithContext(ctx).Create(&history).Error
}

func (r *repo) SaveRaw(ctx context.Context, db *gorm.DB, raw *domain.ProductRaw) error {
	if raw == nil {
		return gorm.ErrInvalidData
	}
	if raw.ID == 0 {
		raw.ID = r.genID.Generate().Int64()
	}
	if raw.FetchedAt.IsZero() {
		raw.FetchedAt = time.Now().UTC()
	}
	raw.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(raw).Error
}
