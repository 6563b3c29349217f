package migration

import (
	"github.com/smallbiznis/chatlink/internal/config"
	"github.com/smallbiznis/chatlink/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Non-postgres deployments (sqlite for local hacking) fall back
			// to gorm's schema sync; the SQL files are authored for postgres.
			if err := seed.AutoMigrate(conn); err != nil {
				return err
			}
			return seed.EnsureDefaultChannels(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		return seed.EnsureDefaultChannels(conn)
	}),
)
