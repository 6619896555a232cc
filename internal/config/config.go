package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains input and output locations.
type Paths struct {
	ImageRoot    string `toml:"image_root"`
	MetadataFile string `toml:"metadata_file"`
	CatalogPath  string `toml:"catalog_path"`
	DatabasePath string `toml:"database_path"`
	LogDir       string `toml:"log_dir"`
}

// Metadata describes the layout of the survey metadata export.
type Metadata struct {
	FilenameColumn   string   `toml:"filename_column"`
	DateColumn       string   `toml:"date_column"`
	StationColumn    string   `toml:"station_column"`
	SpeciesColumn    string   `toml:"species_column"`
	PhotoTypeColumn  string   `toml:"photo_type_column"`
	SequenceColumn   string   `toml:"sequence_column"`
	FrameColumn      string   `toml:"frame_column"`
	FrameCountColumn string   `toml:"frame_count_column"`
	Delimiter        string   `toml:"delimiter"`
	SkipRows         int      `toml:"skip_rows"`
	DateLayouts      []string `toml:"date_layouts"`
}

// Ingest controls the consistency check and catalog build.
type Ingest struct {
	Workers              int      `toml:"workers"`
	CheckTimeoutSeconds  int      `toml:"check_timeout_seconds"`
	DecodeTimeoutSeconds int      `toml:"decode_timeout_seconds"`
	ImageExtensions      []string `toml:"image_extensions"`
	ChannelStats         bool     `toml:"channel_stats"`
	// AbortOn lists finding kinds that stop the run before a catalog is built.
	AbortOn []string `toml:"abort_on"`
}

// Dataset carries the descriptive fields written into the catalog info block.
type Dataset struct {
	Name                 string `toml:"name"`
	Description          string `toml:"description"`
	Contributor          string `toml:"contributor"`
	SecondaryContributor string `toml:"secondary_contributor"`
	Version              int    `toml:"version"`
	Year                 int    `toml:"year"`
}

// Storage selects the relational store backend.
type Storage struct {
	Backend string `toml:"backend"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for trapcat.
//
// Configuration sections by subsystem:
//   - Paths: survey inputs and catalog/database outputs
//   - Metadata: column names and row handling for the metadata export
//   - Ingest: worker pool sizing, timeouts, accepted image extensions
//   - Dataset: catalog info block
//   - Storage: store backend selection
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Metadata Metadata `toml:"metadata"`
	Ingest   Ingest   `toml:"ingest"`
	Dataset  Dataset  `toml:"dataset"`
	Storage  Storage  `toml:"storage"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("trapcat.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories that will receive output.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir, filepath.Dir(c.Paths.CatalogPath)}
	if c.Storage.Backend != StorageMemory {
		dirs = append(dirs, filepath.Dir(c.Paths.DatabasePath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CheckTimeout returns the per-file existence check deadline.
func (c *Config) CheckTimeout() time.Duration {
	return time.Duration(c.Ingest.CheckTimeoutSeconds) * time.Second
}

// DecodeTimeout returns the per-image header decode deadline.
func (c *Config) DecodeTimeout() time.Duration {
	return time.Duration(c.Ingest.DecodeTimeoutSeconds) * time.Second
}

// DelimiterRune returns the metadata field separator, or zero for the
// reader's default.
func (c *Config) DelimiterRune() rune {
	if c.Metadata.Delimiter == "" {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(c.Metadata.Delimiter)
	return r
}

// RequireInputs reports whether the survey inputs needed by ingest and check
// are configured.
func (c *Config) RequireInputs() error {
	if strings.TrimSpace(c.Paths.ImageRoot) == "" {
		return fmt.Errorf("paths.image_root is required. Set %s or pass --images", envImageRoot)
	}
	if strings.TrimSpace(c.Paths.MetadataFile) == "" {
		return fmt.Errorf("paths.metadata_file is required. Set %s or pass --metadata", envMetadataFile)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
