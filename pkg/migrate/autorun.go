package migrate

import (
	"context"
	"fmt"

	"github.com/artisanalley/marketplace-backend/pkg/config"
	"github.com/artisanalley/marketplace-backend/pkg/db"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations when the app runs in dev with
// auto-migrate switched on. Non-postgres drivers are skipped.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if name := client.DB().Dialector.Name(); name != db.DriverPostgres {
		logg.Warn(logg.WithField(ctx, "db_driver", name), "auto-migrate skipped for non-postgres driver")
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	runner, err := NewRunner(sqlDB, Embedded())
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	applied, err := runner.Up(ctx)
	LogApplied(ctx, logg, applied)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "auto-migrate finished")
	return nil
}

// LogApplied writes one info line per applied migration.
func LogApplied(ctx context.Context, logg *logger.Logger, applied []Applied) {
	if logg == nil {
		return
	}
	for _, a := range applied {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     a.Version,
			"path":        a.Path,
			"direction":   a.Direction,
			"duration_ms": a.Duration.Milliseconds(),
			"empty":       a.Empty,
		}), "migration applied")
	}
}
