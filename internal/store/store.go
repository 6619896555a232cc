package store

import (
	"context"
	"errors"
	"fmt"

	"trapcat/internal/config"
	"trapcat/internal/schema"
)

var (
	// ErrNotFound reports a lookup or reference to an entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate reports an identifier or category name that already exists.
	ErrDuplicate = errors.New("already exists")
	// ErrInfoExists reports a second PutInfo; Info is immutable once written.
	ErrInfoExists = errors.New("dataset info already recorded")
	// ErrNotEmpty reports an Import into a store that already holds data.
	ErrNotEmpty = errors.New("store is not empty")
	// ErrClosed reports use of a store after Close.
	ErrClosed = errors.New("store is closed")
)

// Store is the persistence boundary for the canonical dataset.
type Store interface {
	PutInfo(ctx context.Context, info schema.Info) error
	Info(ctx context.Context) (schema.Info, error)

	PutImage(ctx context.Context, img schema.Image) error
	Image(ctx context.Context, id string) (schema.Image, error)
	Images(ctx context.Context) ([]schema.Image, error)

	PutCategory(ctx context.Context, cat schema.Category) error
	Category(ctx context.Context, id int) (schema.Category, error)
	CategoryByName(ctx context.Context, name string) (schema.Category, error)
	// Categories returns every category ordered by ID.
	Categories(ctx context.Context) ([]schema.Category, error)

	PutDetection(ctx context.Context, det schema.Detection) error
	// UpdateDetection replaces kind, category and confidence of an existing
	// detection. The image reference is immutable.
	UpdateDetection(ctx context.Context, det schema.Detection) error
	Detection(ctx context.Context, id string) (schema.Detection, error)
	DetectionsByImage(ctx context.Context, imageID string) ([]schema.Detection, error)
	DetectionsByKind(ctx context.Context, kind schema.DetectionKind) ([]schema.Detection, error)

	// PutOracle inserts or replaces the oracle of a detection.
	PutOracle(ctx context.Context, oracle schema.Oracle) error
	OracleByDetection(ctx context.Context, detectionID string) (schema.Oracle, error)
	// Apply commits a group of writes atomically: either every change lands
	// or none does.
	Apply(ctx context.Context, changes Changes) error

	// Import loads snap into an empty store atomically.
	Import(ctx context.Context, snap Snapshot) error
	Snapshot(ctx context.Context) (Snapshot, error)
	Close() error
}

// Snapshot is the full contents of a store. Images and detections keep
// insertion order; categories are ordered by ID.
type Snapshot struct {
	Info       *schema.Info       `json:"info,omitempty"`
	Images     []schema.Image     `json:"images"`
	Categories []schema.Category  `json:"categories"`
	Detections []schema.Detection `json:"detections"`
	Oracles    []schema.Oracle    `json:"oracles"`
}

// Changes is one atomic batch for Apply. Writes are applied in field order:
// new categories, new detections, detection updates (UpdateDetection rules),
// then oracle upserts, so later groups may reference earlier ones.
type Changes struct {
	Categories []schema.Category
	Detections []schema.Detection
	Updates    []schema.Detection
	Oracles    []schema.Oracle
}

// Len returns the number of writes in the batch.
func (c Changes) Len() int {
	return len(c.Categories) + len(c.Detections) + len(c.Updates) + len(c.Oracles)
}

func (c Changes) validate() error {
	for _, cat := range c.Categories {
		if err := cat.Validate(); err != nil {
			return err
		}
	}
	for _, det := range c.Detections {
		if err := det.Validate(); err != nil {
			return err
		}
	}
	for _, det := range c.Updates {
		if err := det.Validate(); err != nil {
			return err
		}
	}
	for _, oracle := range c.Oracles {
		if err := oracle.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Empty reports whether the snapshot holds no entities.
func (s Snapshot) Empty() bool {
	return s.Info == nil && len(s.Images) == 0 && len(s.Categories) == 0 &&
		len(s.Detections) == 0 && len(s.Oracles) == 0
}

// Validate checks every entity and the references between them.
func (s Snapshot) Validate() error {
	_, err := stateFromSnapshot(s)
	return err
}

// Open returns the backend selected by cfg.Storage.Backend.
func Open(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("store: nil config")
	}
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		return NewMemory(), nil
	case config.StorageJSON:
		st, err := OpenJSON(cfg.Paths.DatabasePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StorageSQLite, "":
		st, err := OpenSQLite(cfg.Paths.DatabasePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", cfg.Storage.Backend)
	}
}
