package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"trapcat/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ImageRoot = filepath.Join(base, "images")
	cfgVal.Paths.MetadataFile = filepath.Join(base, "metadata.csv")
	cfgVal.Paths.CatalogPath = filepath.Join(base, "out", "catalog.json")
	cfgVal.Paths.DatabasePath = filepath.Join(base, "out", "trapcat.db")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Ingest.Workers = 4
	cfgVal.Dataset.Year = 2014

	if err := os.MkdirAll(cfgVal.Paths.ImageRoot, 0o755); err != nil {
		t.Fatalf("mkdir image root: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStorage selects the store backend on the test config.
func WithStorage(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Backend = backend
		if backend == config.StorageJSON {
			b.cfg.Paths.DatabasePath = filepath.Join(b.baseDir, "out", "trapcat.json")
		}
	}
}

// WithMetadataRows writes a metadata CSV in the default column layout and
// points the config at it. Each row is filename, species.
func WithMetadataRows(rows ...[2]string) ConfigOption {
	return func(b *configBuilder) {
		records := make([][]string, 0, len(rows))
		for _, row := range rows {
			records = append(records, []string{row[0], "2014-03-01", "CT01", row[1], "Trigger"})
		}
		WriteCSV(b.t, b.cfg.Paths.MetadataFile, DefaultHeader(), records)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ImageRoot)
}
