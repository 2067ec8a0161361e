package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fitlife/fitlife-sync/internal/infrastructure/repositories"
	"github.com/fitlife/fitlife-sync/pkg/db"
)

var migrateEnvFile string

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the server database schema",
	RunE:  runMigrate,
}

func init() {
	MigrateCmd.Flags().StringVarP(&migrateEnvFile, "env-file", "e", ".env", "Optional .env file to load")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(migrateEnvFile)
	if err != nil {
		return err
	}
	logg := newLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Migrate(ctx, repositories.Models()...); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s database\n", client.Driver())
	return err
}
