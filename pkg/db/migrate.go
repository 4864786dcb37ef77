package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/basketlabs/shelfscout/migrations"
)

// Migrate applies the embedded SQL migrations against the postgres backend.
// Other backends rely on AutoMigrate and never reach this path.
func Migrate(gdb *gorm.DB, log *zap.Logger) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("schema up to date")
			return nil
		}
		return fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	log.Info("schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
