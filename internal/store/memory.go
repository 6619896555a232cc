package store

import (
	"context"
	"fmt"
	"sync"

	"trapcat/internal/schema"
)

// Memory is a Store held in process memory. When created by OpenJSON it also
// writes every committed change to a JSON document.
type Memory struct {
	mu     sync.RWMutex
	st     *state
	path   string
	closed bool
}

// NewMemory returns an empty, non-persistent store.
func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func (m *Memory) read(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn(m.st)
}

// mutate applies fn, which must leave the state unchanged when it fails.
func (m *Memory) mutate(ctx context.Context, fn func(*state) error) error {
	return m.commit(ctx, false, fn)
}

// commit applies fn. Staged changes, and every change to a persistent
// store, run on a copy that replaces the live state only after fn succeeds
// and the file is written.
func (m *Memory) commit(ctx context.Context, staged bool, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.path == "" && !staged {
		return fn(m.st)
	}
	next := m.st.clone()
	if err := fn(next); err != nil {
		return err
	}
	if m.path != "" {
		if err := writeSnapshotFile(m.path, next.snapshot()); err != nil {
			return err
		}
	}
	m.st = next
	return nil
}

func (m *Memory) PutInfo(ctx context.Context, info schema.Info) error {
	return m.mutate(ctx, func(st *state) error { return st.putInfo(info) })
}

func (m *Memory) Info(ctx context.Context) (schema.Info, error) {
	var info schema.Info
	err := m.read(ctx, func(st *state) error {
		if st.info == nil {
			return fmt.Errorf("info: %w", ErrNotFound)
		}
		info = *st.info
		return nil
	})
	return info, err
}

func (m *Memory) PutImage(ctx context.Context, img schema.Image) error {
	return m.mutate(ctx, func(st *state) error { return st.putImage(img) })
}

func (m *Memory) Image(ctx context.Context, id string) (schema.Image, error) {
	var img schema.Image
	err := m.read(ctx, func(st *state) error {
		found, ok := st.images[id]
		if !ok {
			return fmt.Errorf("image %s: %w", id, ErrNotFound)
		}
		img = found
		return nil
	})
	return img, err
}

func (m *Memory) Images(ctx context.Context) ([]schema.Image, error) {
	var images []schema.Image
	err := m.read(ctx, func(st *state) error {
		images = make([]schema.Image, 0, len(st.imageOrder))
		for _, id := range st.imageOrder {
			images = append(images, st.images[id])
		}
		return nil
	})
	return images, err
}

func (m *Memory) PutCategory(ctx context.Context, cat schema.Category) error {
	return m.mutate(ctx, func(st *state) error { return st.putCategory(cat) })
}

func (m *Memory) Category(ctx context.Context, id int) (schema.Category, error) {
	var cat schema.Category
	err := m.read(ctx, func(st *state) error {
		found, ok := st.categories[id]
		if !ok {
			return fmt.Errorf("category %d: %w", id, ErrNotFound)
		}
		cat = found
		return nil
	})
	return cat, err
}

func (m *Memory) CategoryByName(ctx context.Context, name string) (schema.Category, error) {
	var cat schema.Category
	err := m.read(ctx, func(st *state) error {
		id, ok := st.categoryNames[name]
		if !ok {
			return fmt.Errorf("category %q: %w", name, ErrNotFound)
		}
		cat = st.categories[id]
		return nil
	})
	return cat, err
}

func (m *Memory) Categories(ctx context.Context) ([]schema.Category, error) {
	var cats []schema.Category
	err := m.read(ctx, func(st *state) error {
		cats = st.sortedCategories()
		return nil
	})
	return cats, err
}

func (m *Memory) PutDetection(ctx context.Context, det schema.Detection) error {
	return m.mutate(ctx, func(st *state) error { return st.putDetection(det) })
}

func (m *Memory) UpdateDetection(ctx context.Context, det schema.Detection) error {
	return m.mutate(ctx, func(st *state) error { return st.updateDetection(det) })
}

func (m *Memory) Detection(ctx context.Context, id string) (schema.Detection, error) {
	var det schema.Detection
	err := m.read(ctx, func(st *state) error {
		found, ok := st.detections[id]
		if !ok {
			return fmt.Errorf("detection %s: %w", id, ErrNotFound)
		}
		det = found
		return nil
	})
	return det, err
}

func (m *Memory) DetectionsByImage(ctx context.Context, imageID string) ([]schema.Detection, error) {
	var dets []schema.Detection
	err := m.read(ctx, func(st *state) error {
		dets = st.detectionsWhere(func(d schema.Detection) bool { return d.ImageID == imageID })
		return nil
	})
	return dets, err
}

func (m *Memory) DetectionsByKind(ctx context.Context, kind schema.DetectionKind) ([]schema.Detection, error) {
	var dets []schema.Detection
	err := m.read(ctx, func(st *state) error {
		dets = st.detectionsWhere(func(d schema.Detection) bool { return d.Kind == kind })
		return nil
	})
	return dets, err
}

func (m *Memory) PutOracle(ctx context.Context, oracle schema.Oracle) error {
	return m.mutate(ctx, func(st *state) error { return st.putOracle(oracle) })
}

func (m *Memory) OracleByDetection(ctx context.Context, detectionID string) (schema.Oracle, error) {
	var oracle schema.Oracle
	err := m.read(ctx, func(st *state) error {
		found, ok := st.oracles[detectionID]
		if !ok {
			return fmt.Errorf("oracle for detection %s: %w", detectionID, ErrNotFound)
		}
		oracle = found
		return nil
	})
	return oracle, err
}

func (m *Memory) Apply(ctx context.Context, changes Changes) error {
	if changes.Len() == 0 {
		return ctx.Err()
	}
	return m.commit(ctx, true, func(st *state) error { return st.apply(changes) })
}

func (m *Memory) Import(ctx context.Context, snap Snapshot) error {
	loaded, err := stateFromSnapshot(snap)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.st.empty() {
		return ErrNotEmpty
	}
	if m.path != "" {
		if err := writeSnapshotFile(m.path, loaded.snapshot()); err != nil {
			return err
		}
	}
	m.st = loaded
	return nil
}

func (m *Memory) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := m.read(ctx, func(st *state) error {
		snap = st.snapshot()
		return nil
	})
	return snap, err
}

// Close marks the store closed. Persistent stores have nothing left to flush.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*Memory)(nil)
