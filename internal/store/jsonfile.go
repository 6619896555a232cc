package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"trapcat/internal/fileutil"
)

// OpenJSON loads the JSON document at path, or starts empty when it does not
// exist yet. The file is created on the first committed change.
func OpenJSON(path string) (*Memory, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: json path is required")
	}
	st, err := readSnapshotFile(path)
	if err != nil {
		return nil, err
	}
	return &Memory{st: st, path: path}, nil
}

func readSnapshotFile(path string) (*state, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newState(), nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}
	if len(data) == 0 {
		return newState(), nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse store file %s: %w", path, err)
	}
	st, err := stateFromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("load store file %s: %w", path, err)
	}
	return st, nil
}

// writeSnapshotFile writes snap atomically via a temp file and rename.
func writeSnapshotFile(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	return nil
}
