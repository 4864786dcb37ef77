package service

import (
	"context"
	"strings"

	"github.com/basketlabs/shelfscout/internal/catalog/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

// BeginRun resets the dimension caches and resolves the source for a new
// ingestion run. An unknown source code is fatal for the whole run.
func (s *Service) BeginRun(ctx context.Context, sourceCode string) (*domain.Source, error) {
	s.repo.ResetRunCache()
	return s.repo.FindSourceByCode(ctx, s.db, sourceCode)
}

// UpsertFlat persists one normalized record: dimension rows are resolved to
// foreign keys first, then the product row, price history and raw payload
// commit together in one transaction.
func (s *Service) UpsertFlat(ctx context.Context, sourceCode string, rec domain.FlatRecord) (domain.UpsertResult, error) {
	if strings.TrimSpace(rec.ProductID) == "" {
		return domain.UpsertResult{}, domain.ErrMissingProductID
	}
	if strings.TrimSpace(rec.Name) == "" {
		rec.Name = ""
		rec.Warnings = append(rec.Warnings, "name: missing")
	}

	src, err := s.repo.FindSourceByCode(ctx, s.db, sourceCode)
	if err != nil {
		return domain.UpsertResult{}, err
	}

	// Dimensions are resolved on the root handle so their rows commit
	// independently of the item transaction; the run cache never holds a
	// row a rolled-back item would take with it.
	internalCat, err := s.repo.ResolveInternalCategory(ctx, s.db, rec.InternalCategoryName, rec.InternalCategorySlug)
	if err != nil {
		return domain.UpsertResult{}, err
	}
	storeCat, err := s.repo.ResolveStoreCategory(ctx, s.db, src.ID, rec.StoreCategory)
	if err != nil {
		return domain.UpsertResult{}, err
	}

	var result domain.UpsertResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product := domain.Product{
			ProductID:          rec.ProductID,
			SourceID:           src.ID,
			Name:               rec.Name,
			Brand:              rec.Brand,
			Description:        rec.Description,
			ImageURL:           rec.ImageURL,
			ProductURL:         rec.ProductURL,
			UnitSize:           rec.UnitSize,
			Price:              rec.Price,
			OriginalPrice:      rec.OriginalPrice,
			DiscountPercentage: rec.DiscountPercentage,
			ProductType:        rec.ProductType,
			PromoText:          rec.PromoText,
			PromoStart:         rec.PromoStart,
			PromoEnd:           rec.PromoEnd,
		}
		if len(rec.Keywords) > 0 {
			product.Keywords = datatypes.NewJSONSlice(rec.Keywords)
		}
		if len(rec.Warnings) > 0 {
			product.Warnings = datatypes.NewJSONSlice(rec.Warnings)
		}
		if internalCat != nil {
			product.InternalCategoryID = &internalCat.ID
		}
		if storeCat != nil {
			product.StoreCategoryID = &storeCat.ID
		}

		result, err = s.repo.UpsertProduct(ctx, tx, &product)
		if err != nil {
			return err
		}

		if len(rec.Raw) > 0 {
			raw := domain.ProductRaw{
				ProductID: rec.ProductID,
				SourceID:  src.ID,
				Payload:   datatypes.JSON(rec.Raw),
				FetchedAt: rec.FetchedAt,
			}
			if err := s.repo.SaveRaw(ctx, tx, &raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.UpsertResult{}, err
	}

	s.log.Debug("product upserted",
		zap.String("source", sourceCode),
		zap.String("product_id", rec.ProductID),
		zap.Bool("created", result.Created),
		zap.Bool("price_changed", result.PriceChanged),
	)
	return result, nil
}
