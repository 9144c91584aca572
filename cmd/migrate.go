package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/config"
)

// newMigrateCmd creates the 'migrate' subcommand, which creates the catalog
// tables without scraping anything.
func newMigrateCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates the catalog tables in PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(v, *cfgFile)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cfg)
		},
	}
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	if !cfg.DB.Enabled {
		return &catalog.ConfigError{Field: "db.enabled", Reason: "must be true to migrate"}
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg.DB.EnsureSchema = true
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer store.Close()
	logger.Info("catalog schema ready")
	return nil
}
