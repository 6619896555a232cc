package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"trapcat/internal/catalog"
	"trapcat/internal/config"
	"trapcat/internal/consistency"
	"trapcat/internal/findings"
	"trapcat/internal/index"
	"trapcat/internal/logging"
	"trapcat/internal/metadata"
	"trapcat/internal/preflight"
	"trapcat/internal/schema"
	"trapcat/internal/store"
	"trapcat/internal/workpool"
)

var (
	// ErrLocked reports another run holding the output lock.
	ErrLocked = errors.New("another ingestion run holds the output lock")
	// ErrStoreNotEmpty reports a store that already holds a dataset.
	ErrStoreNotEmpty = errors.New("store already holds a dataset")
)

// Pipeline runs ingestion for one configuration.
type Pipeline struct {
	Config *config.Config
	Logger *slog.Logger
	// Store receives the catalog. When nil, Run opens the configured
	// backend and closes it afterwards.
	Store store.Store
	// SkipStore writes only the catalog file.
	SkipStore bool
	Clock     func() time.Time
	// Progress receives per-phase counts in addition to the sampled
	// progress log lines.
	Progress workpool.ProgressFunc
}

// CheckResult is the outcome of the index and consistency stages.
type CheckResult struct {
	RunID     string
	Rows      int
	Filenames int
	Index     *index.Index
	Report    *findings.Report
	rows      []metadata.Row
}

// Result is the outcome of a full run.
type Result struct {
	CheckResult
	Catalog     *catalog.Catalog
	Counts      catalog.Counts
	CatalogPath string
	Stored      bool
	Duration    time.Duration
}

// Columns maps the configured header names onto metadata columns.
func Columns(cfg *config.Config) metadata.Columns {
	return metadata.Columns{
		Filename:     cfg.Metadata.FilenameColumn,
		Date:         cfg.Metadata.DateColumn,
		Station:      cfg.Metadata.StationColumn,
		Species:      cfg.Metadata.SpeciesColumn,
		PhotoType:    cfg.Metadata.PhotoTypeColumn,
		SeqID:        cfg.Metadata.SequenceColumn,
		FrameNum:     cfg.Metadata.FrameColumn,
		SeqNumFrames: cfg.Metadata.FrameCountColumn,
	}
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

func (p *Pipeline) logger() *slog.Logger {
	return logging.NewComponentLogger(p.Logger, "ingest")
}

// progress fans counts out to the sampled log and the caller's callback.
// Trackers serialize calls, so the sampler needs no lock.
func (p *Pipeline) progress(ctx context.Context) workpool.ProgressFunc {
	sampler := logging.NewProgressSampler(10)
	logger := logging.WithContext(ctx, p.logger())
	return func(phase string, done, total int) {
		if total > 0 && sampler.ShouldLog(phase, done, total) {
			logger.Info("progress",
				logging.String("phase", phase),
				logging.Int("done", done),
				logging.Int("total", total),
			)
		}
		if p.Progress != nil {
			p.Progress(phase, done, total)
		}
	}
}

func (p *Pipeline) prepare(ctx context.Context) (context.Context, string, error) {
	if p.Config == nil {
		return ctx, "", errors.New("ingest: config is required")
	}
	if err := p.Config.RequireInputs(); err != nil {
		return ctx, "", err
	}
	if err := p.Config.EnsureDirectories(); err != nil {
		return ctx, "", err
	}
	if err := preflight.Err(preflight.RunAll(p.Config)); err != nil {
		return ctx, "", err
	}
	runID := uuid.NewString()
	return logging.WithRunID(ctx, runID), runID, nil
}

// Check reads the metadata and reconciles it with the image root without
// building a catalog.
func (p *Pipeline) Check(ctx context.Context) (*CheckResult, error) {
	ctx, runID, err := p.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return p.check(ctx, runID)
}

func (p *Pipeline) check(ctx context.Context, runID string) (*CheckResult, error) {
	cfg := p.Config
	logger := logging.WithContext(ctx, p.logger())

	rows, err := metadata.ReadFile(cfg.Paths.MetadataFile, metadata.ReadOptions{
		Columns:  Columns(cfg),
		SkipRows: cfg.Metadata.SkipRows,
		Comma:    cfg.DelimiterRune(),
	})
	if err != nil {
		return nil, err
	}
	idx := index.Build(rows)
	logger.Info("metadata indexed",
		logging.String("metadata_file", cfg.Paths.MetadataFile),
		logging.Int("rows", len(rows)),
		logging.Int("filenames", idx.Len()),
		logging.Int("duplicate_filenames", len(idx.Duplicates())),
	)

	checker := &consistency.Checker{
		Root:       cfg.Paths.ImageRoot,
		Extensions: cfg.Ingest.ImageExtensions,
		Workers:    cfg.Ingest.Workers,
		Timeout:    cfg.CheckTimeout(),
		Logger:     p.Logger,
		Progress:   p.progress(ctx),
	}
	report, err := checker.Check(ctx, idx)
	if err != nil {
		return nil, err
	}
	return &CheckResult{
		RunID:     runID,
		Rows:      len(rows),
		Filenames: idx.Len(),
		Index:     idx,
		Report:    report,
		rows:      rows,
	}, nil
}

// Run executes the full pipeline. On error nothing is written: the catalog
// file is replaced atomically and the store import is one transaction.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx, runID, err := p.prepare(ctx)
	if err != nil {
		return nil, err
	}
	cfg := p.Config
	logger := logging.WithContext(ctx, p.logger())

	lock := flock.New(cfg.Paths.CatalogPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lock.Path())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	st, closeStore, err := p.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	logger.Info("ingestion started",
		logging.String("image_root", cfg.Paths.ImageRoot),
		logging.String("catalog_path", cfg.Paths.CatalogPath),
		logging.String("storage", storageLabel(cfg, st)),
	)

	checked, err := p.check(ctx, runID)
	if err != nil {
		return nil, err
	}

	builder := &catalog.Builder{
		Root:         cfg.Paths.ImageRoot,
		Workers:      cfg.Ingest.Workers,
		Timeout:      cfg.DecodeTimeout(),
		Dataset:      p.datasetInfo(),
		Clock:        p.Clock,
		DateLayouts:  cfg.Metadata.DateLayouts,
		ChannelStats: cfg.Ingest.ChannelStats,
		AbortOn:      cfg.AbortKinds(),
		Logger:       p.Logger,
		Progress:     p.progress(ctx),
	}
	cat, err := builder.Build(ctx, checked.rows, checked.Index, checked.Report)
	if err != nil {
		return nil, err
	}

	if err := catalog.WriteFile(cfg.Paths.CatalogPath, cat); err != nil {
		return nil, err
	}
	stored := false
	if st != nil {
		if err := st.Import(ctx, cat.Snapshot()); err != nil {
			logging.ErrorWithContext(logger, "store import failed", "store_import_failed",
				logging.String("catalog_path", cfg.Paths.CatalogPath),
				logging.String(logging.FieldErrorHint, "the catalog file was written; load it into an empty store or re-run with --no-db"),
				logging.Error(err),
			)
			return nil, fmt.Errorf("import catalog into store: %w", err)
		}
		stored = true
	}

	result := &Result{
		CheckResult: *checked,
		Catalog:     cat,
		Counts:      cat.Counts(),
		CatalogPath: cfg.Paths.CatalogPath,
		Stored:      stored,
		Duration:    time.Since(start),
	}
	logger.Info("ingestion complete",
		logging.Int("images", result.Counts.Images),
		logging.Int("annotations", result.Counts.Annotations),
		logging.Int("categories", result.Counts.Categories),
		logging.Int("findings", checked.Report.Len()),
		logging.Bool("stored", stored),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

// openStore returns the target store, refusing one that already holds a
// dataset before any work is done.
func (p *Pipeline) openStore(ctx context.Context) (store.Store, func(), error) {
	if p.SkipStore {
		return nil, func() {}, nil
	}
	st := p.Store
	closeFn := func() {}
	if st == nil {
		opened, err := store.Open(p.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		st = opened
		closeFn = func() { _ = opened.Close() }
	}
	_, err := st.Info(ctx)
	switch {
	case err == nil:
		closeFn()
		return nil, nil, fmt.Errorf("%w; remove %s or run with --no-db", ErrStoreNotEmpty, p.Config.Paths.DatabasePath)
	case !errors.Is(err, store.ErrNotFound):
		closeFn()
		return nil, nil, fmt.Errorf("inspect store: %w", err)
	}
	return st, closeFn, nil
}

func (p *Pipeline) datasetInfo() schema.Info {
	ds := p.Config.Dataset
	year := ds.Year
	if year == 0 {
		year = p.now().Year()
	}
	return schema.Info{
		Name:                 ds.Name,
		Description:          ds.Description,
		Contributor:          ds.Contributor,
		SecondaryContributor: ds.SecondaryContributor,
		Version:              ds.Version,
		Year:                 year,
	}
}

func storageLabel(cfg *config.Config, st store.Store) string {
	if st == nil {
		return "disabled"
	}
	backend := strings.TrimSpace(cfg.Storage.Backend)
	if backend == "" {
		backend = config.StorageSQLite
	}
	return backend
}
