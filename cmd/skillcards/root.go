package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conorfennell/skillcards/internal/config"
	"github.com/conorfennell/skillcards/internal/gitsource"
	"github.com/conorfennell/skillcards/internal/importer"
	"github.com/conorfennell/skillcards/internal/library"
	"github.com/conorfennell/skillcards/internal/logging"
	"github.com/conorfennell/skillcards/internal/storage"
	"github.com/conorfennell/skillcards/internal/storage/postgres"
	"github.com/conorfennell/skillcards/internal/study"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "skillcards",
		Short:         "Spaced-repetition flash cards with prioritised study sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "skillcards.yaml", "Path to the YAML config file")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-mode", "production", "Log format (development, production)")
	pf.String("driver", "sqlite", "Storage driver (sqlite, postgres)")
	pf.String("dsn", "skillcards.db", "SQLite file or PostgreSQL DSN")
	pf.String("tenant", "default", "Tenant ID")
	pf.String("user", "local", "User ID")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSyncCmd(),
		newSourceCmd(),
		newNextCmd(),
		newReviewCmd(),
		newFingerprintCmd(),
		newVersionCmd(),
	)
	return root
}

// store is everything the services need from a storage backend.
type store interface {
	study.CardStore
	study.ProgressStore
	study.PriorityStore
	library.Store
	importer.SourceStore
	Ping(ctx context.Context) error
	Close() error
}

// app is the wired application for one command run.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	db       store
	study    *study.Service
	library  *library.Library
	importer *importer.Importer
}

// setup loads the config, opens the store and builds the services.
func setup(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Mode)
	if err != nil {
		return nil, err
	}

	db, err := openStore(cmd.Context(), cfg.Storage, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	lib := library.New(db, library.Options{}, log.Named("library"))
	return &app{
		cfg: cfg,
		log: log,
		db:  db,
		study: study.NewService(db, db, db, study.Options{
			BatchSize:     cfg.Study.BatchSize,
			MaxBatchSize:  cfg.Study.MaxBatchSize,
			MaxNew:        cfg.Study.MaxNew,
			MasteryWindow: cfg.Study.MasteryWindow,
		}, log.Named("study")),
		library: lib,
		importer: importer.New(db, lib,
			gitsource.New(cfg.Importer.ReposDir, log.Named("git")),
			importer.Options{Workers: cfg.Importer.Workers},
			log.Named("importer")),
	}, nil
}

func openStore(ctx context.Context, cfg config.Storage, log *zap.Logger) (store, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := storage.Open(ctx, cfg.DSN, log.Named("sqlite"))
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		db, err := postgres.New(ctx, cfg.DSN, log.Named("postgres"))
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close store", zap.Error(err))
	}
	_ = a.log.Sync()
}

// identity returns the --tenant and --user flags.
func identity(cmd *cobra.Command) (tenant, user string) {
	tenant, _ = cmd.Flags().GetString("tenant")
	user, _ = cmd.Flags().GetString("user")
	return tenant, user
}
