package config

const (
	defaultConfigPath           = "~/.config/trapcat/config.toml"
	defaultCatalogPath          = "~/.local/share/trapcat/catalog.json"
	defaultDatabasePath         = "~/.local/share/trapcat/trapcat.db"
	defaultLogDir               = "~/.local/share/trapcat/logs"
	defaultCheckTimeoutSeconds  = 10
	defaultDecodeTimeoutSeconds = 30
	defaultDatasetName          = "camera-trap-survey"
	defaultDatasetDescription   = "COCO style database"
	defaultDatasetVersion       = 1
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"

	envImageRoot    = "TRAPCAT_IMAGE_ROOT"
	envMetadataFile = "TRAPCAT_METADATA_FILE"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageJSON   = "json"
	StorageMemory = "memory"
)

var defaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff", ".bmp", ".gif", ".webp"}

// Layouts tried in order when parsing the metadata date column.
var defaultDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
	"02.01.2006",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CatalogPath:  defaultCatalogPath,
			DatabasePath: defaultDatabasePath,
			LogDir:       defaultLogDir,
		},
		Metadata: Metadata{
			FilenameColumn:  "Image Name",
			DateColumn:      "Date",
			StationColumn:   "Camera Trap Station Label",
			SpeciesColumn:   "Species",
			PhotoTypeColumn: "Photo Type",
			DateLayouts:     append([]string(nil), defaultDateLayouts...),
		},
		Ingest: Ingest{
			CheckTimeoutSeconds:  defaultCheckTimeoutSeconds,
			DecodeTimeoutSeconds: defaultDecodeTimeoutSeconds,
			ImageExtensions:      append([]string(nil), defaultImageExtensions...),
		},
		Dataset: Dataset{
			Name:        defaultDatasetName,
			Description: defaultDatasetDescription,
			Version:     defaultDatasetVersion,
		},
		Storage: Storage{
			Backend: StorageSQLite,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
