package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trapcat/internal/config"
	"trapcat/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryReadable_ReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	if result := CheckDirectoryReadable("images", dir); !result.Passed {
		t.Fatalf("read-only dir should be readable: %s", result.Detail)
	}
	if result := CheckDirectoryAccess("output", dir); result.Passed {
		t.Fatal("read-only dir must fail the write check")
	}
}

func TestCheckFileReadable(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "metadata.csv")
	if err := os.WriteFile(f, []byte("Image Name\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckFileReadable("metadata", f); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckFileReadable("metadata", dir); result.Passed {
		t.Fatal("expected failure for a directory")
	}
	if result := CheckFileReadable("metadata", ""); result.Passed || result.Detail != "not configured" {
		t.Fatalf("unexpected result for empty path: %+v", result)
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMetadataRows([2]string{"img001.JPG", "Elephant"}))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if err := Err(results); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}

	cfg.Storage.Backend = config.StorageMemory
	if got := len(RunAll(cfg)); got != 4 {
		t.Fatalf("memory backend should skip the database check, got %d results", got)
	}

	cfg.Paths.ImageRoot = filepath.Join(t.TempDir(), "gone")
	err := Err(RunAll(cfg))
	if !errors.Is(err, ErrNotReady) || !strings.Contains(err.Error(), "Image root") {
		t.Fatalf("expected an image root failure, got %v", err)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}
