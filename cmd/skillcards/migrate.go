package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conorfennell/skillcards/internal/config"
	"github.com/conorfennell/skillcards/internal/logging"
	"github.com/conorfennell/skillcards/internal/migrations"
)

// sqlDrivers maps storage drivers to their database/sql driver names.
var sqlDrivers = map[string]string{
	"sqlite":   "sqlite",
	"postgres": "pgx",
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			conn, err := sql.Open(sqlDrivers[cfg.Storage.Driver], cfg.Storage.DSN)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer conn.Close()

			ctx := cmd.Context()
			if err := migrations.Up(ctx, conn, cfg.Storage.Driver, log); err != nil {
				return err
			}
			version, err := migrations.Version(ctx, conn, cfg.Storage.Driver)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}
