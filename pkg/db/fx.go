package db

import (
	"github.com/basketlabs/shelfscout/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("db",
	fx.Provide(func(cfg config.Config) Config {
		return Config{
			Type:            cfg.DBType,
			Host:            cfg.DBHost,
			Port:            cfg.DBPort,
			Name:            cfg.DBName,
			User:            cfg.DBUser,
			Password:        cfg.DBPassword,
			SSLMode:         cfg.DBSSLMode,
			MaxIdleConn:     cfg.DBMaxIdleConn,
			MaxOpenConn:     cfg.DBMaxOpenConn,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		}
	}),
	fx.Provide(func(cfg Config, log *zap.Logger) (*gorm.DB, error) {
		gdb, err := Open(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Type == "postgres" {
			if err := Migrate(gdb, log.Named("db.migrate")); err != nil {
				return nil, err
			}
		}
		return gdb, nil
	}),
)
