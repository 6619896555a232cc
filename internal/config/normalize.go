package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMetadata()
	c.normalizeIngest()
	c.normalizeDataset()
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageSQLite
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv(envImageRoot); ok && strings.TrimSpace(value) != "" {
		c.Paths.ImageRoot = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envMetadataFile); ok && strings.TrimSpace(value) != "" {
		c.Paths.MetadataFile = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.CatalogPath) == "" {
		c.Paths.CatalogPath = defaultCatalogPath
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		c.Paths.DatabasePath = defaultDatabasePath
	}

	var err error
	if c.Paths.ImageRoot, err = expandPath(strings.TrimSpace(c.Paths.ImageRoot)); err != nil {
		return fmt.Errorf("paths.image_root: %w", err)
	}
	if c.Paths.MetadataFile, err = expandPath(strings.TrimSpace(c.Paths.MetadataFile)); err != nil {
		return fmt.Errorf("paths.metadata_file: %w", err)
	}
	if c.Paths.CatalogPath, err = expandPath(c.Paths.CatalogPath); err != nil {
		return fmt.Errorf("paths.catalog_path: %w", err)
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMetadata() {
	m := &c.Metadata
	m.FilenameColumn = strings.TrimSpace(m.FilenameColumn)
	m.DateColumn = strings.TrimSpace(m.DateColumn)
	m.StationColumn = strings.TrimSpace(m.StationColumn)
	m.SpeciesColumn = strings.TrimSpace(m.SpeciesColumn)
	m.PhotoTypeColumn = strings.TrimSpace(m.PhotoTypeColumn)
	m.SequenceColumn = strings.TrimSpace(m.SequenceColumn)
	m.FrameColumn = strings.TrimSpace(m.FrameColumn)
	m.FrameCountColumn = strings.TrimSpace(m.FrameCountColumn)
	if m.Delimiter == `\t` {
		m.Delimiter = "\t"
	}
	if m.SkipRows < 0 {
		m.SkipRows = 0
	}
	layouts := make([]string, 0, len(m.DateLayouts))
	for _, layout := range m.DateLayouts {
		if trimmed := strings.TrimSpace(layout); trimmed != "" {
			layouts = append(layouts, trimmed)
		}
	}
	if len(layouts) == 0 {
		layouts = append(layouts, defaultDateLayouts...)
	}
	m.DateLayouts = layouts
}

func (c *Config) normalizeIngest() {
	if c.Ingest.Workers < 0 {
		c.Ingest.Workers = 0
	}
	if c.Ingest.CheckTimeoutSeconds <= 0 {
		c.Ingest.CheckTimeoutSeconds = defaultCheckTimeoutSeconds
	}
	if c.Ingest.DecodeTimeoutSeconds <= 0 {
		c.Ingest.DecodeTimeoutSeconds = defaultDecodeTimeoutSeconds
	}

	exts := make([]string, 0, len(c.Ingest.ImageExtensions))
	seen := make(map[string]struct{}, len(c.Ingest.ImageExtensions))
	for _, ext := range c.Ingest.ImageExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultImageExtensions...)
	}
	c.Ingest.ImageExtensions = exts

	abort := make([]string, 0, len(c.Ingest.AbortOn))
	for _, kind := range c.Ingest.AbortOn {
		normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(kind)), "-", "_")
		if normalized != "" {
			abort = append(abort, normalized)
		}
	}
	c.Ingest.AbortOn = abort
}

func (c *Config) normalizeDataset() {
	c.Dataset.Name = strings.TrimSpace(c.Dataset.Name)
	if c.Dataset.Name == "" {
		c.Dataset.Name = defaultDatasetName
	}
	c.Dataset.Description = strings.TrimSpace(c.Dataset.Description)
	c.Dataset.Contributor = strings.TrimSpace(c.Dataset.Contributor)
	c.Dataset.SecondaryContributor = strings.TrimSpace(c.Dataset.SecondaryContributor)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
