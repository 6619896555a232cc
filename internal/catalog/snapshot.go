package catalog

import (
	"errors"
	"fmt"

	"trapcat/internal/schema"
	"trapcat/internal/store"
)

// Snapshot converts the catalog into a store snapshot for Import.
func (c *Catalog) Snapshot() store.Snapshot {
	info := c.Info
	return store.Snapshot{
		Info:       &info,
		Images:     append([]schema.Image(nil), c.Images...),
		Categories: append([]schema.Category(nil), c.Categories...),
		Detections: append([]schema.Detection(nil), c.Annotations...),
	}
}

// FromSnapshot rebuilds a catalog from store contents. Oracle records have no
// place in the interchange format; their effect is already carried by the
// detection kind and category.
func FromSnapshot(snap store.Snapshot) (*Catalog, error) {
	if snap.Info == nil {
		return nil, errors.New("catalog: snapshot has no dataset info")
	}
	cat := &Catalog{
		Info:        *snap.Info,
		Images:      append([]schema.Image{}, snap.Images...),
		Annotations: append([]schema.Detection{}, snap.Detections...),
		Categories:  append([]schema.Category{}, snap.Categories...),
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalog from snapshot: %w", err)
	}
	return cat, nil
}
