package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"trapcat/internal/catalog"
	"trapcat/internal/config"
	"trapcat/internal/consistency"
	"trapcat/internal/findings"
	"trapcat/internal/ingest"
	"trapcat/internal/preflight"
	"trapcat/internal/testsupport"
)

var fixedNow = time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)

func surveyConfig(t *testing.T, opts ...testsupport.ConfigOption) *config.Config {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithMetadataRows(
		[2]string{"img001.JPG", "Elephant"},
		[2]string{"img002.JPG", ""},
		[2]string{"img003.JPG", "Elephant"},
	)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	for _, name := range []string{"img001.JPG", "img002.JPG", "img004.JPG"} {
		testsupport.WriteJPEG(t, filepath.Join(cfg.Paths.ImageRoot, name), 40, 30)
	}
	return cfg
}

func TestRunWritesCatalogAndStore(t *testing.T) {
	cfg := surveyConfig(t)
	pipeline := &ingest.Pipeline{Config: cfg, Clock: func() time.Time { return fixedNow }}

	result, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Counts != (catalog.Counts{Images: 2, Annotations: 2, Categories: 2}) {
		t.Fatalf("unexpected counts: %+v", result.Counts)
	}
	if result.Rows != 3 || result.Filenames != 3 {
		t.Fatalf("unexpected row counts: rows=%d filenames=%d", result.Rows, result.Filenames)
	}
	if n := result.Report.Count(findings.MissingImageFile); n != 1 {
		t.Fatalf("expected 1 missing file, got %d", n)
	}
	if n := result.Report.Count(findings.OrphanImageFile); n != 1 {
		t.Fatalf("expected 1 orphan file, got %d", n)
	}
	if result.RunID == "" || !result.Stored {
		t.Fatalf("unexpected result: %+v", result)
	}

	written, err := catalog.ReadFile(cfg.Paths.CatalogPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if written.Counts() != result.Counts {
		t.Fatalf("written catalog counts %+v differ from result %+v", written.Counts(), result.Counts)
	}
	if written.Info.Year != 2014 || written.Info.Name != "camera-trap-survey" {
		t.Fatalf("unexpected info: %+v", written.Info)
	}

	st := testsupport.MustOpenStore(t, cfg)
	images, err := st.Images(context.Background())
	if err != nil {
		t.Fatalf("Images failed: %v", err)
	}
	if len(images) != 2 || images[0].ID != "img001" || images[1].ID != "img002" {
		t.Fatalf("unexpected stored images: %+v", images)
	}
}

func TestRunRefusesPopulatedStore(t *testing.T) {
	cfg := surveyConfig(t)
	pipeline := &ingest.Pipeline{Config: cfg, Clock: func() time.Time { return fixedNow }}
	if _, err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	first, err := os.ReadFile(cfg.Paths.CatalogPath)
	if err != nil {
		t.Fatalf("read catalog: %v", err)
	}

	if _, err := pipeline.Run(context.Background()); !errors.Is(err, ingest.ErrStoreNotEmpty) {
		t.Fatalf("expected ErrStoreNotEmpty, got %v", err)
	}

	pipeline.SkipStore = true
	result, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("catalog-only Run failed: %v", err)
	}
	if result.Stored {
		t.Fatal("catalog-only run must not touch the store")
	}
	second, err := os.ReadFile(cfg.Paths.CatalogPath)
	if err != nil {
		t.Fatalf("read catalog: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("re-running ingestion changed the catalog:\n%s\n---\n%s", first, second)
	}
}

func TestRunHonoursLock(t *testing.T) {
	cfg := surveyConfig(t, testsupport.WithStorage(config.StorageMemory))
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.CatalogPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	held := flock.New(cfg.Paths.CatalogPath + ".lock")
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer held.Unlock()

	_, err = (&ingest.Pipeline{Config: cfg}).Run(context.Background())
	if !errors.Is(err, ingest.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Paths.CatalogPath); !os.IsNotExist(statErr) {
		t.Fatalf("catalog must not be written while locked: %v", statErr)
	}
}

func TestRunAbortsByPolicyWithoutWriting(t *testing.T) {
	cfg := surveyConfig(t)
	cfg.Ingest.AbortOn = []string{"missing_image_file"}

	_, err := (&ingest.Pipeline{Config: cfg}).Run(context.Background())
	if !errors.Is(err, catalog.ErrAbortedByPolicy) {
		t.Fatalf("expected ErrAbortedByPolicy, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Paths.CatalogPath); !os.IsNotExist(statErr) {
		t.Fatalf("catalog must not be written on abort: %v", statErr)
	}
	st := testsupport.MustOpenStore(t, cfg)
	snap, err := st.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !snap.Empty() {
		t.Fatalf("store must stay empty on abort: %+v", snap)
	}
}

func TestRunFailsPreflight(t *testing.T) {
	cfg := surveyConfig(t)
	cfg.Paths.ImageRoot = filepath.Join(t.TempDir(), "absent")

	_, err := (&ingest.Pipeline{Config: cfg}).Run(context.Background())
	if !errors.Is(err, preflight.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestCheckReportsWithoutWriting(t *testing.T) {
	cfg := surveyConfig(t)
	var (
		mu     sync.Mutex
		phases = map[string]int{}
	)
	pipeline := &ingest.Pipeline{
		Config: cfg,
		Progress: func(phase string, done, total int) {
			mu.Lock()
			defer mu.Unlock()
			phases[phase]++
		},
	}

	result, err := pipeline.Check(context.Background())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Report.Count(findings.MissingImageFile) != 1 || result.Report.Count(findings.OrphanImageFile) != 1 {
		t.Fatalf("unexpected findings: %+v", result.Report.All())
	}
	if phases[consistency.PhaseStat] == 0 || phases[consistency.PhaseWalk] == 0 {
		t.Fatalf("expected progress for stat and walk, got %v", phases)
	}
	if _, statErr := os.Stat(cfg.Paths.CatalogPath); !os.IsNotExist(statErr) {
		t.Fatalf("check must not write a catalog: %v", statErr)
	}
}

func TestRunDropsOnlyRowsWithUnparseableCells(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStorage(config.StorageMemory))
	cfg.Metadata.FrameColumn = "Frame"
	header := append(testsupport.DefaultHeader(), "Frame")
	testsupport.WriteCSV(t, cfg.Paths.MetadataFile, header, [][]string{
		{"img001.JPG", "2014-03-01", "CT01", "Elephant", "Trigger", "1"},
		{"img002.JPG", "2014-03-01", "CT01", "Lion", "Trigger", "n/a"},
	})
	for _, name := range []string{"img001.JPG", "img002.JPG"} {
		testsupport.WriteJPEG(t, filepath.Join(cfg.Paths.ImageRoot, name), 40, 30)
	}

	result, err := (&ingest.Pipeline{Config: cfg, Clock: func() time.Time { return fixedNow }}).Run(context.Background())
	if err != nil {
		t.Fatalf("a bad cell must not fail the run: %v", err)
	}
	if result.Counts.Images != 1 {
		t.Fatalf("expected 1 image, got %+v", result.Counts)
	}
	violations := result.Report.ByKind(findings.SchemaViolation)
	if len(violations) != 1 || violations[0].Filename != "img002.JPG" {
		t.Fatalf("expected one schema violation for img002.JPG, got %+v", violations)
	}
}

func TestRunKeepsNonCanonicalNamesOutOfCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStorage(config.StorageMemory),
		testsupport.WithMetadataRows(
			[2]string{"./img001.JPG", "Elephant"},
			[2]string{"img002.JPG", "Elephant"},
		),
	)
	for _, name := range []string{"img001.JPG", "img002.JPG"} {
		testsupport.WriteJPEG(t, filepath.Join(cfg.Paths.ImageRoot, name), 40, 30)
	}

	result, err := (&ingest.Pipeline{Config: cfg, Clock: func() time.Time { return fixedNow }}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	missing := result.Report.ByKind(findings.MissingImageFile)
	if len(missing) != 1 || missing[0].Filename != "./img001.JPG" {
		t.Fatalf("expected ./img001.JPG to be missing, got %+v", missing)
	}
	orphans := result.Report.ByKind(findings.OrphanImageFile)
	if len(orphans) != 1 || orphans[0].Filename != "img001.JPG" {
		t.Fatalf("expected img001.JPG to be an orphan, got %+v", orphans)
	}
	written, err := catalog.ReadFile(cfg.Paths.CatalogPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(written.Images) != 1 || written.Images[0].ID != "img002" {
		t.Fatalf("unexpected catalog images: %+v", written.Images)
	}
}

func TestCheckReportsBlankFilenameRows(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMetadataRows(
		[2]string{"img001.JPG", "Elephant"},
		[2]string{"", "Lion"},
	))
	testsupport.WriteJPEG(t, filepath.Join(cfg.Paths.ImageRoot, "img001.JPG"), 40, 30)

	result, err := (&ingest.Pipeline{Config: cfg}).Check(context.Background())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	violations := result.Report.ByKind(findings.SchemaViolation)
	if len(violations) != 1 || len(violations[0].Rows) != 1 || violations[0].Rows[0] != 1 {
		t.Fatalf("expected one blank-row violation at row 1, got %+v", violations)
	}
}

func TestColumnsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Metadata.SequenceColumn = "Sequence"
	cols := ingest.Columns(&cfg)
	if cols.Filename != "Image Name" || cols.SeqID != "Sequence" || cols.FrameNum != "" {
		t.Fatalf("unexpected columns: %+v", cols)
	}
}
