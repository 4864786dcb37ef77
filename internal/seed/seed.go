package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/basketlabs/shelfscout/internal/catalog/domain"
	"github.com/basketlabs/shelfscout/internal/config"
	"github.com/basketlabs/shelfscout/internal/ingest/sanitize"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureSources seeds one sources row per configured retailer at startup.
// Existing rows keep their identity; only display fields are refreshed.
func EnsureSources(db *gorm.DB, sources config.SourcesConfig) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sc := range sources.Sources {
			if err := ensureSourceTx(ctx, tx, node, sc); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureSourceTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, sc config.SourceConfig) error {
	code := strings.TrimSpace(sc.Code)
	if code == "" {
		return nil
	}

	name := strings.TrimSpace(sc.Name)
	if name == "" {
		name = code
	}

	now := time.Now().UTC()
	src := domain.Source{
		ID:           node.Generate().Int64(),
		Code:         code,
		Name:         sanitize.Text(name),
		Abbreviation: sanitize.Text(sc.Abbreviation),
		LogoURL:      sanitize.URL(sc.LogoURL),
		BrandColor:   sanitize.HexColor(sc.BrandColor),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	res := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&src)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return tx.WithContext(ctx).
			Model(&domain.Source{}).
			Where("code = ?", code).
			Updates(map[string]any{
				"name":         src.Name,
				"abbreviation": src.Abbreviation,
				"logo_url":     src.LogoURL,
				"brand_color":  src.BrandColor,
				"updated_at":   now,
			}).Error
	}
	return nil
}
