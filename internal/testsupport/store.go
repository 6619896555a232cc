package testsupport

import (
	"context"
	"testing"

	"trapcat/internal/config"
	"trapcat/internal/schema"
	"trapcat/internal/store"
)

// MustOpenStore opens the configured store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedImage stores an image with one detection of the given kind and category.
// The category must already exist.
func SeedImage(t testing.TB, st store.Store, imageID, detectionID string, kind schema.DetectionKind, categoryID int) schema.Detection {
	t.Helper()

	ctx := context.Background()
	img, err := schema.NewImage(schema.Image{ID: imageID, FileName: imageID + ".JPG", Width: 64, Height: 48})
	if err != nil {
		t.Fatalf("schema.NewImage: %v", err)
	}
	if err := st.PutImage(ctx, img); err != nil {
		t.Fatalf("store.PutImage: %v", err)
	}
	det, err := schema.NewDetection(schema.Detection{ID: detectionID, ImageID: imageID, Kind: kind, CategoryID: categoryID})
	if err != nil {
		t.Fatalf("schema.NewDetection: %v", err)
	}
	if err := st.PutDetection(ctx, det); err != nil {
		t.Fatalf("store.PutDetection: %v", err)
	}
	return det
}
