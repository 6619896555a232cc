package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"trapcat/internal/fileutil"
	"trapcat/internal/schema"
)

// Write encodes cat as indented JSON followed by a newline.
func Write(w io.Writer, cat *Catalog) error {
	data, err := marshal(cat)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

// WriteFile writes cat to path atomically: the document is written to a
// temporary file in the same directory and renamed over path.
func WriteFile(path string, cat *Catalog) error {
	data, err := marshal(cat)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog %s: %w", path, err)
	}
	return nil
}

// Read decodes and validates a catalog.
func Read(r io.Reader) (*Catalog, error) {
	var cat Catalog
	if err := json.NewDecoder(r).Decode(&cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if cat.Images == nil {
		cat.Images = []schema.Image{}
	}
	if cat.Annotations == nil {
		cat.Annotations = []schema.Detection{}
	}
	if cat.Categories == nil {
		cat.Categories = []schema.Category{}
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// ReadFile opens path and decodes it with Read.
func ReadFile(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()
	cat, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return cat, nil
}

func marshal(cat *Catalog) ([]byte, error) {
	if cat == nil {
		return nil, fmt.Errorf("%w: nil catalog", ErrInvalidCatalog)
	}
	out := *cat
	// Empty collections encode as [] so consumers never see null members.
	if out.Images == nil {
		out.Images = []schema.Image{}
	}
	if out.Annotations == nil {
		out.Annotations = []schema.Detection{}
	}
	if out.Categories == nil {
		out.Categories = []schema.Category{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}
	return append(data, '\n'), nil
}
