package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/database"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the index and analytics tables",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if cfg.Database.Driver == config.DriverMemory {
		return errors.New("the memory driver has no schema to migrate")
	}
	ctx := cmd.Context()
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := storage.NewSQLStore(db).Migrate(ctx); err != nil {
		return err
	}
	if err := analytics.NewSnapshotStore(db).Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Database.Driver)
	return nil
}
