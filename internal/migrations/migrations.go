// Package migrations applies the embedded SQL migrations of both storage
// drivers.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Dialects understood by Up, keyed by storage driver name.
var dialects = map[string]string{
	"sqlite":   "sqlite3",
	"postgres": "postgres",
}

// goose keeps its base FS and dialect in package state.
var mu sync.Mutex

// Up runs all pending migrations of the driver ("sqlite" or "postgres").
func Up(ctx context.Context, db *sql.DB, driver string, log *zap.Logger) error {
	dialect, ok := dialects[driver]
	if !ok {
		return fmt.Errorf("no migrations for driver %q", driver)
	}
	sub, err := fs.Sub(files, driver)
	if err != nil {
		return err
	}
	if log == nil {
		log = zap.NewNop()
	}

	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(sub)
	goose.SetLogger(gooseLogger{log.Sugar()})
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate %s: %w", driver, err)
	}
	return nil
}

// Version returns the applied schema version.
func Version(ctx context.Context, db *sql.DB, driver string) (int64, error) {
	dialect, ok := dialects[driver]
	if !ok {
		return 0, fmt.Errorf("no migrations for driver %q", driver)
	}

	mu.Lock()
	defer mu.Unlock()

	if err := goose.SetDialect(dialect); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) { l.s.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.s.Fatalf(format, v...) }
