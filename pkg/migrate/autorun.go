package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/foodrescue-backend/pkg/config"
	"github.com/angelmondragon/foodrescue-backend/pkg/db"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
)

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled. SQLite databases are built from the models instead of the
// Postgres migration files.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	meta := map[string]any{"env": cfg.App.Env, "dir": DefaultDir, "driver": cfg.DB.Driver}
	ctx = logg.WithFields(ctx, meta)

	if strings.EqualFold(cfg.DB.Driver, db.DriverSQLite) {
		logg.Info(ctx, "auto-migrating sqlite schema from models")
		if err := AutoMigrateModels(client); err != nil {
			return err
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "running Goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}

// AutoMigrateModels creates the schema straight from the GORM models.
func AutoMigrateModels(client *db.Client) error {
	if err := client.DB().AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}
	return nil
}
