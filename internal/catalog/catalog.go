package catalog

import (
	"errors"
	"fmt"
	"sort"

	"trapcat/internal/schema"
)

var (
	// ErrIdentifierCollision reports two distinct entities resolving to one
	// identifier. It aborts the build.
	ErrIdentifierCollision = errors.New("identifier collision")
	// ErrAbortedByPolicy reports a build stopped because the findings report
	// contained a kind configured to abort.
	ErrAbortedByPolicy = errors.New("aborted by policy")
	// ErrInvalidCatalog reports a catalog document that breaks referential
	// closure or category numbering.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// Catalog is the interchange document. Member names follow the camera-trap
// community convention and must stay stable.
type Catalog struct {
	Info        schema.Info        `json:"info"`
	Images      []schema.Image     `json:"images"`
	Annotations []schema.Detection `json:"annotations"`
	Categories  []schema.Category  `json:"categories"`
}

// Counts summarises a catalog.
type Counts struct {
	Images      int `json:"images"`
	Annotations int `json:"annotations"`
	Categories  int `json:"categories"`
}

// CategoryCount is the number of annotations carrying one category.
type CategoryCount struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Counts returns the entity totals.
func (c *Catalog) Counts() Counts {
	if c == nil {
		return Counts{}
	}
	return Counts{
		Images:      len(c.Images),
		Annotations: len(c.Annotations),
		Categories:  len(c.Categories),
	}
}

// CategoryCounts returns annotation counts per category ordered by ID.
// Categories without annotations are included with a zero count.
func (c *Catalog) CategoryCounts() []CategoryCount {
	if c == nil {
		return nil
	}
	byID := make(map[int]int, len(c.Categories))
	for _, ann := range c.Annotations {
		byID[ann.CategoryID]++
	}
	out := make([]CategoryCount, 0, len(c.Categories))
	for _, cat := range c.Categories {
		out = append(out, CategoryCount{ID: cat.ID, Name: cat.Name, Count: byID[cat.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks every entity, identifier uniqueness, referential closure
// and that category IDs form the range 0..n-1 with unique names.
func (c *Catalog) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil catalog", ErrInvalidCatalog)
	}
	if err := c.Info.Validate(); err != nil {
		return err
	}

	categoryIDs := make(map[int]struct{}, len(c.Categories))
	names := make(map[string]int, len(c.Categories))
	for _, cat := range c.Categories {
		if err := cat.Validate(); err != nil {
			return err
		}
		if _, dup := categoryIDs[cat.ID]; dup {
			return fmt.Errorf("%w: category id %d: %w", ErrInvalidCatalog, cat.ID, ErrIdentifierCollision)
		}
		if other, dup := names[cat.Name]; dup {
			return fmt.Errorf("%w: category name %q used by ids %d and %d", ErrInvalidCatalog, cat.Name, other, cat.ID)
		}
		categoryIDs[cat.ID] = struct{}{}
		names[cat.Name] = cat.ID
	}
	for id := range len(c.Categories) {
		if _, ok := categoryIDs[id]; !ok {
			return fmt.Errorf("%w: category ids are not contiguous from 0 (missing %d)", ErrInvalidCatalog, id)
		}
	}

	imageIDs := make(map[string]struct{}, len(c.Images))
	for _, img := range c.Images {
		if err := img.Validate(); err != nil {
			return err
		}
		if _, dup := imageIDs[img.ID]; dup {
			return fmt.Errorf("%w: image id %q: %w", ErrInvalidCatalog, img.ID, ErrIdentifierCollision)
		}
		imageIDs[img.ID] = struct{}{}
	}

	annotationIDs := make(map[string]struct{}, len(c.Annotations))
	for _, ann := range c.Annotations {
		if err := ann.Validate(); err != nil {
			return err
		}
		if _, dup := annotationIDs[ann.ID]; dup {
			return fmt.Errorf("%w: annotation id %q: %w", ErrInvalidCatalog, ann.ID, ErrIdentifierCollision)
		}
		annotationIDs[ann.ID] = struct{}{}
		if _, ok := imageIDs[ann.ImageID]; !ok {
			return fmt.Errorf("%w: annotation %s references unknown image %q", ErrInvalidCatalog, ann.ID, ann.ImageID)
		}
		if _, ok := categoryIDs[ann.CategoryID]; !ok {
			return fmt.Errorf("%w: annotation %s references unknown category %d", ErrInvalidCatalog, ann.ID, ann.CategoryID)
		}
	}
	return nil
}
