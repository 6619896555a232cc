package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"trapcat/internal/catalog"
	"trapcat/internal/config"
	"trapcat/internal/ingest"
	"trapcat/internal/preflight"
	"trapcat/internal/schema"
	"trapcat/internal/testsupport"
)

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeTestConfig lays out a small survey and writes a config file for it.
func writeTestConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRAPCAT_IMAGE_ROOT", "")
	t.Setenv("TRAPCAT_METADATA_FILE", "")

	cfg := testsupport.NewConfig(t, testsupport.WithMetadataRows(
		[2]string{"img001.JPG", "Elephant"},
		[2]string{"img002.JPG", ""},
		[2]string{"img003.JPG", "Elephant"},
	))
	for _, name := range []string{"img001.JPG", "img002.JPG", "img004.JPG"} {
		testsupport.WriteJPEG(t, filepath.Join(cfg.Paths.ImageRoot, name), 40, 30)
	}
	cfg.Logging.Level = "error"

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "trapcat.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, cfg
}

func TestIngestThenLabelFlow(t *testing.T) {
	configPath, cfg := writeTestConfig(t)

	out, _, err := runCLI(t, configPath, "ingest")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	for _, want := range []string{"Ingestion complete", "Elephant", "missing_image_file", "img003.JPG", "img004.JPG"} {
		if !strings.Contains(out, want) {
			t.Fatalf("ingest output missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, "", "catalog", "stats", "--json", cfg.Paths.CatalogPath)
	if err != nil {
		t.Fatalf("catalog stats: %v", err)
	}
	var stats struct {
		Counts     catalog.Counts          `json:"counts"`
		Categories []catalog.CategoryCount `json:"categories"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if stats.Counts != (catalog.Counts{Images: 2, Annotations: 2, Categories: 2}) {
		t.Fatalf("unexpected counts %+v", stats.Counts)
	}

	target := catalog.DetectionID("img001")
	if _, _, err := runCLI(t, configPath, "label", "promote", target); err != nil {
		t.Fatalf("promote: %v", err)
	}

	out, _, err = runCLI(t, configPath, "label", "pending", "--json")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	var pending []pendingDetection
	if err := json.Unmarshal([]byte(out), &pending); err != nil {
		t.Fatalf("decode pending: %v\n%s", err, out)
	}
	if len(pending) != 1 || pending[0].ID != target || pending[0].FileName != "img001.JPG" || pending[0].Category != "Elephant" {
		t.Fatalf("unexpected pending %+v", pending)
	}

	out, _, err = runCLI(t, configPath, "label", "submit", target, "Lion")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(out, "user") {
		t.Fatalf("submit output %q", out)
	}

	out, _, err = runCLI(t, configPath, "label", "pending")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !strings.Contains(out, "No detections awaiting review") {
		t.Fatalf("expected empty queue, got:\n%s", out)
	}

	exported := filepath.Join(t.TempDir(), "export.json")
	if _, _, err := runCLI(t, configPath, "label", "export", exported); err != nil {
		t.Fatalf("export: %v", err)
	}
	cat, err := catalog.ReadFile(exported)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(cat.Categories) != 3 || cat.Categories[2].Name != "Lion" {
		t.Fatalf("expected Lion appended as category 2, got %+v", cat.Categories)
	}
	for _, det := range cat.Annotations {
		if det.ID == target && (det.Kind != schema.UserDetection || det.CategoryID != 2) {
			t.Fatalf("unexpected exported detection %+v", det)
		}
	}
}

func TestIngestRefusesPopulatedStore(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	if _, _, err := runCLI(t, configPath, "ingest"); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	_, _, err := runCLI(t, configPath, "ingest")
	if !errors.Is(err, ingest.ErrStoreNotEmpty) {
		t.Fatalf("expected ErrStoreNotEmpty, got %v", err)
	}
	if _, _, err := runCLI(t, configPath, "ingest", "--no-db"); err != nil {
		t.Fatalf("ingest --no-db: %v", err)
	}
}

func TestIngestJSONWithOverrides(t *testing.T) {
	configPath, cfg := writeTestConfig(t)
	out := filepath.Join(t.TempDir(), "nested", "survey.json")

	stdout, _, err := runCLI(t, configPath, "ingest", "--json", "--no-db", "--out", out, "--workers", "2")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var summary ingestSummary
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, stdout)
	}
	if summary.CatalogPath != out || summary.Stored {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Rows != 3 || summary.Counts.Images != 2 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if summary.Findings["missing_image_file"] != 1 || summary.Findings["orphan_image_file"] != 1 {
		t.Fatalf("unexpected finding counts %+v", summary.Findings)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected catalog at override path: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.DatabasePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no database with --no-db, stat err=%v", err)
	}
}

func TestCheckCommand(t *testing.T) {
	configPath, cfg := writeTestConfig(t)

	stdout, _, err := runCLI(t, configPath, "check", "--json")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	var payload struct {
		Rows     int            `json:"rows"`
		Counts   map[string]int `json:"finding_counts"`
		Findings []struct {
			Kind     string `json:"kind"`
			Filename string `json:"filename"`
		} `json:"findings"`
	}
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if payload.Rows != 3 || len(payload.Findings) != 2 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if _, err := os.Stat(cfg.Paths.CatalogPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("check must not write a catalog, stat err=%v", err)
	}

	if _, _, err := runCLI(t, configPath, "check", "--strict"); err == nil {
		t.Fatal("expected --strict to fail when findings exist")
	}
}

func TestConfigInit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "conf", "trapcat.toml")

	out, _, err := runCLI(t, "", "config", "init", "--path", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("expected path in output, got %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file: %v", err)
	}

	if _, _, err := runCLI(t, "", "config", "init", "--path", path); err == nil {
		t.Fatal("expected error when config exists without --overwrite")
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", path, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	configPath, cfg := writeTestConfig(t)

	out, _, err := runCLI(t, configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration: "+configPath) || strings.Contains(out, "FAIL") {
		t.Fatalf("unexpected validate output:\n%s", out)
	}

	if err := os.Remove(cfg.Paths.MetadataFile); err != nil {
		t.Fatalf("remove metadata: %v", err)
	}
	out, _, err = runCLI(t, configPath, "config", "validate")
	if !errors.Is(err, preflight.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if !strings.Contains(out, "FAIL") {
		t.Fatalf("expected failing check in output:\n%s", out)
	}
}

func TestFormatRows(t *testing.T) {
	if got := formatRows([]int{0, 2, 3}); got != "1,3,4" {
		t.Fatalf("formatRows = %q", got)
	}
	if got := formatRows(nil); got != "" {
		t.Fatalf("formatRows(nil) = %q", got)
	}
}
