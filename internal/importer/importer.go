// Package importer reconciles markdown card sources with the card library.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/errs"
	"github.com/conorfennell/skillcards/internal/fingerprint"
	"github.com/conorfennell/skillcards/internal/library"
	"github.com/conorfennell/skillcards/internal/parser"
)

// DefaultCategory holds imported cards that name no category when the
// source has none either.
const DefaultCategory = "Imported"

// DefaultWorkers bounds how many sources sync at once.
const DefaultWorkers = 4

// SourceStore persists sources and finds the cards they produced.
type SourceStore interface {
	InsertSource(ctx context.Context, src domain.Source) (int64, error)
	GetSource(ctx context.Context, tenantID string, id int64) (*domain.Source, error)

	// ListSources returns the tenant's sources, or every source when
	// tenantID is empty.
	ListSources(ctx context.Context, tenantID string) ([]domain.Source, error)
	DeleteSource(ctx context.Context, tenantID string, id int64) error
	MarkScanned(ctx context.Context, id int64, at time.Time) error
	CardsBySource(ctx context.Context, sourceID int64) ([]domain.Card, error)
}

// Cards is the part of the library the importer writes through.
type Cards interface {
	Import(ctx context.Context, in library.NewCard) (domain.Card, bool, error)
	EnsureCategory(ctx context.Context, tenantID, name string) (domain.Category, error)
	DeleteCard(ctx context.Context, tenantID, userID, cardID string) error
}

// GitSyncer fetches a git source and returns its checkout directory.
type GitSyncer interface {
	Sync(ctx context.Context, repoURL string) (string, error)
}

// Options configures an Importer.
type Options struct {
	Workers int
	Now     func() time.Time
}

// Importer syncs sources into the library.
type Importer struct {
	sources SourceStore
	cards   Cards
	git     GitSyncer
	workers int
	now     func() time.Time
	log     *zap.Logger
}

// New creates an Importer.
func New(sources SourceStore, cards Cards, git GitSyncer, opts Options, log *zap.Logger) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{
		sources: sources,
		cards:   cards,
		git:     git,
		workers: opts.Workers,
		now:     opts.Now,
		log:     log,
	}
}

// Result is the outcome of reconciling one source.
type Result struct {
	SourceID int64  `json:"source_id"`
	Path     string `json:"path"`
	Parsed   int    `json:"parsed"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
	Errors   int    `json:"errors"`
	Err      string `json:"error,omitempty"`
}

// AddSource registers a local directory or git repository. The source
// type is derived from the path.
func (im *Importer) AddSource(ctx context.Context, src domain.Source) (domain.Source, error) {
	src.Path = strings.TrimSpace(src.Path)
	if src.TenantID == "" || src.OwnerID == "" || src.Path == "" {
		return domain.Source{}, fmt.Errorf("%w: tenant, owner and path are required", errs.ErrInvalidInput)
	}
	src.Type = domain.SourceTypeFor(src.Path)
	if src.Type == domain.SourceLocal {
		abs, err := filepath.Abs(src.Path)
		if err != nil {
			return domain.Source{}, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
		}
		src.Path = abs
	}

	id, err := im.sources.InsertSource(ctx, src)
	if err != nil {
		return domain.Source{}, fmt.Errorf("insert source: %w", err)
	}
	src.ID = id
	im.log.Info("source added",
		zap.Int64("source_id", id),
		zap.String("path", src.Path),
		zap.String("type", string(src.Type)),
	)
	return src, nil
}

// ListSources returns the tenant's sources.
func (im *Importer) ListSources(ctx context.Context, tenantID string) ([]domain.Source, error) {
	list, err := im.sources.ListSources(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return list, nil
}

// Caller is the user asking to change a source.
type Caller struct {
	TenantID string
	UserID   string
	Admin    bool
}

// RemoveSource deletes a source and the cards it produced. Only the
// source's owner or a tenant admin may remove it.
func (im *Importer) RemoveSource(ctx context.Context, by Caller, id int64) error {
	tenantID := by.TenantID
	src, err := im.sources.GetSource(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("get source %d: %w", id, err)
	}
	if src.OwnerID != by.UserID && !by.Admin {
		return fmt.Errorf("source %d: %w", id, errs.ErrForbidden)
	}
	cards, err := im.sources.CardsBySource(ctx, id)
	if err != nil {
		return fmt.Errorf("cards of source %d: %w", id, err)
	}
	for _, c := range cards {
		if err := im.cards.DeleteCard(ctx, c.TenantID, src.OwnerID, c.ID); err != nil && !errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("delete card %s: %w", c.ID, err)
		}
	}
	if err := im.sources.DeleteSource(ctx, tenantID, id); err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	return nil
}

// Sync reconciles every source of the tenant, or of all tenants when
// tenantID is empty. A failing source does not stop the others; their
// errors are joined into the returned error.
func (im *Importer) Sync(ctx context.Context, tenantID string) ([]Result, error) {
	sources, err := im.sources.ListSources(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	if len(sources) == 0 {
		im.log.Info("no sources configured")
		return nil, nil
	}
	im.log.Info("sync started", zap.Int("sources", len(sources)), zap.Int("workers", im.workers))

	results := make([]Result, len(sources))
	var (
		mu       sync.Mutex
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, src := range sources {
		g.Go(func() error {
			res, err := im.syncSource(gctx, src)
			if err != nil {
				res.Err = err.Error()
				im.log.Error("source sync failed", zap.Int64("source_id", src.ID), zap.Error(err))
				mu.Lock()
				failures = append(failures, fmt.Errorf("source %d (%s): %w", src.ID, src.Path, err))
				mu.Unlock()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	im.log.Info("sync complete", zap.Int("sources", len(sources)), zap.Int("failed", len(failures)))
	return results, errors.Join(failures...)
}

func (im *Importer) syncSource(ctx context.Context, src domain.Source) (Result, error) {
	res := Result{SourceID: src.ID, Path: src.Path}
	dir := src.Path
	if src.Type == domain.SourceGit {
		if im.git == nil {
			return res, errors.New("git sources are not enabled")
		}
		checkout, err := im.git.Sync(ctx, src.Path)
		if err != nil {
			return res, err
		}
		dir = checkout
	}
	if err := im.reconcile(ctx, src, dir, &res); err != nil {
		return res, err
	}
	if err := im.sources.MarkScanned(ctx, src.ID, im.now()); err != nil {
		im.log.Warn("failed to update last scanned", zap.Int64("source_id", src.ID), zap.Error(err))
	}
	return res, nil
}

// reconcile inserts cards found under dir that the owner does not have yet
// and removes cards of this source that are no longer in the files.
func (im *Importer) reconcile(ctx context.Context, src domain.Source, dir string, res *Result) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	found := make(map[string]bool)
	categories := make(map[string]string)
	sourceID := src.ID

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		parsed, err := parser.ParseFile(path)
		if err != nil {
			res.Errors++
			im.log.Warn("failed to parse file", zap.String("file", path), zap.Error(err))
			return nil
		}
		for _, pc := range parsed {
			res.Parsed++
			found[fingerprint.Compute(pc.Question, pc.Answer)] = true

			categoryID, err := im.categoryFor(ctx, src, pc.Category, categories)
			if err != nil {
				return err
			}
			_, created, err := im.cards.Import(ctx, library.NewCard{
				TenantID:   src.TenantID,
				OwnerID:    src.OwnerID,
				CategoryID: categoryID,
				Question:   pc.Question,
				Answer:     pc.Answer,
				Tags:       pc.Tags,
				SourceID:   &sourceID,
			})
			if err != nil {
				res.Errors++
				im.log.Warn("failed to import card",
					zap.String("file", path), zap.Int("line", pc.Line), zap.Error(err))
				continue
			}
			if created {
				res.Added++
			}
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("walk %s: %w", dir, walkErr)
	}

	stored, err := im.sources.CardsBySource(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("cards of source %d: %w", src.ID, err)
	}
	for _, c := range stored {
		if found[c.Fingerprint] {
			continue
		}
		if err := im.cards.DeleteCard(ctx, c.TenantID, c.OwnerID, c.ID); err != nil {
			res.Errors++
			im.log.Warn("failed to delete orphaned card", zap.String("card_id", c.ID), zap.Error(err))
			continue
		}
		res.Removed++
	}

	im.log.Info("source reconciled",
		zap.Int64("source_id", src.ID),
		zap.String("path", dir),
		zap.Int("parsed", res.Parsed),
		zap.Int("added", res.Added),
		zap.Int("removed", res.Removed),
		zap.Int("errors", res.Errors),
	)
	return nil
}

// categoryFor resolves the category of a parsed card: the one it names,
// else the source's category, else DefaultCategory.
func (im *Importer) categoryFor(ctx context.Context, src domain.Source, name string, cache map[string]string) (string, error) {
	if name == "" {
		if src.CategoryID != "" {
			return src.CategoryID, nil
		}
		name = DefaultCategory
	}
	if id, ok := cache[name]; ok {
		return id, nil
	}
	cat, err := im.cards.EnsureCategory(ctx, src.TenantID, name)
	if err != nil {
		return "", err
	}
	cache[name] = cat.ID
	return cat.ID, nil
}
