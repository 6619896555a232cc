package store

import (
	"fmt"
	"maps"
	"slices"

	"trapcat/internal/schema"
)

// state is the in-memory model shared by the memory and JSON backends. Every
// mutating method checks all preconditions before touching any field, so a
// returned error leaves the state unchanged.
type state struct {
	info           *schema.Info
	images         map[string]schema.Image
	imageOrder     []string
	categories     map[int]schema.Category
	categoryNames  map[string]int
	detections     map[string]schema.Detection
	detectionOrder []string
	oracles        map[string]schema.Oracle
	oracleOrder    []string
}

func newState() *state {
	return &state{
		images:        make(map[string]schema.Image),
		categories:    make(map[int]schema.Category),
		categoryNames: make(map[string]int),
		detections:    make(map[string]schema.Detection),
		oracles:       make(map[string]schema.Oracle),
	}
}

func stateFromSnapshot(snap Snapshot) (*state, error) {
	st := newState()
	if snap.Info != nil {
		if err := st.putInfo(*snap.Info); err != nil {
			return nil, err
		}
	}
	for _, img := range snap.Images {
		if err := st.putImage(img); err != nil {
			return nil, err
		}
	}
	for _, cat := range snap.Categories {
		if err := st.putCategory(cat); err != nil {
			return nil, err
		}
	}
	for _, det := range snap.Detections {
		if err := st.putDetection(det); err != nil {
			return nil, err
		}
	}
	seen := make(map[string]struct{}, len(snap.Oracles))
	for _, oracle := range snap.Oracles {
		if _, dup := seen[oracle.DetectionID]; dup {
			return nil, fmt.Errorf("oracle for detection %s: %w", oracle.DetectionID, ErrDuplicate)
		}
		seen[oracle.DetectionID] = struct{}{}
		if err := st.putOracle(oracle); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (st *state) empty() bool {
	return st.info == nil && len(st.images) == 0 && len(st.categories) == 0 && len(st.detections) == 0
}

func (st *state) snapshot() Snapshot {
	snap := Snapshot{
		Images:     make([]schema.Image, 0, len(st.imageOrder)),
		Categories: make([]schema.Category, 0, len(st.categories)),
		Detections: make([]schema.Detection, 0, len(st.detectionOrder)),
		Oracles:    make([]schema.Oracle, 0, len(st.oracleOrder)),
	}
	if st.info != nil {
		info := *st.info
		snap.Info = &info
	}
	for _, id := range st.imageOrder {
		snap.Images = append(snap.Images, st.images[id])
	}
	snap.Categories = st.sortedCategories()
	for _, id := range st.detectionOrder {
		snap.Detections = append(snap.Detections, st.detections[id])
	}
	for _, id := range st.oracleOrder {
		snap.Oracles = append(snap.Oracles, st.oracles[id])
	}
	return snap
}

func (st *state) clone() *state {
	next := &state{
		images:         maps.Clone(st.images),
		imageOrder:     slices.Clone(st.imageOrder),
		categories:     maps.Clone(st.categories),
		categoryNames:  maps.Clone(st.categoryNames),
		detections:     maps.Clone(st.detections),
		detectionOrder: slices.Clone(st.detectionOrder),
		oracles:        maps.Clone(st.oracles),
		oracleOrder:    slices.Clone(st.oracleOrder),
	}
	if st.info != nil {
		info := *st.info
		next.info = &info
	}
	return next
}

func (st *state) sortedCategories() []schema.Category {
	cats := make([]schema.Category, 0, len(st.categories))
	for _, cat := range st.categories {
		cats = append(cats, cat)
	}
	slices.SortFunc(cats, func(a, b schema.Category) int { return a.ID - b.ID })
	return cats
}

func (st *state) putInfo(info schema.Info) error {
	if st.info != nil {
		return ErrInfoExists
	}
	if err := info.Validate(); err != nil {
		return err
	}
	st.info = &info
	return nil
}

func (st *state) putImage(img schema.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if _, exists := st.images[img.ID]; exists {
		return fmt.Errorf("image %s: %w", img.ID, ErrDuplicate)
	}
	st.images[img.ID] = img
	st.imageOrder = append(st.imageOrder, img.ID)
	return nil
}

func (st *state) putCategory(cat schema.Category) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	if _, exists := st.categories[cat.ID]; exists {
		return fmt.Errorf("category %d: %w", cat.ID, ErrDuplicate)
	}
	if _, exists := st.categoryNames[cat.Name]; exists {
		return fmt.Errorf("category %q: %w", cat.Name, ErrDuplicate)
	}
	st.categories[cat.ID] = cat
	st.categoryNames[cat.Name] = cat.ID
	return nil
}

func (st *state) checkDetectionRefs(det schema.Detection) error {
	if err := det.Validate(); err != nil {
		return err
	}
	if _, ok := st.images[det.ImageID]; !ok {
		return fmt.Errorf("detection %s: image %s: %w", det.ID, det.ImageID, ErrNotFound)
	}
	if _, ok := st.categories[det.CategoryID]; !ok {
		return fmt.Errorf("detection %s: category %d: %w", det.ID, det.CategoryID, ErrNotFound)
	}
	return nil
}

func (st *state) putDetection(det schema.Detection) error {
	if err := st.checkDetectionRefs(det); err != nil {
		return err
	}
	if _, exists := st.detections[det.ID]; exists {
		return fmt.Errorf("detection %s: %w", det.ID, ErrDuplicate)
	}
	st.detections[det.ID] = det
	st.detectionOrder = append(st.detectionOrder, det.ID)
	return nil
}

func (st *state) checkUpdate(det schema.Detection) error {
	current, ok := st.detections[det.ID]
	if !ok {
		return fmt.Errorf("detection %s: %w", det.ID, ErrNotFound)
	}
	if current.ImageID != det.ImageID {
		return fmt.Errorf("detection %s: image reference is immutable (%s -> %s)", det.ID, current.ImageID, det.ImageID)
	}
	return st.checkDetectionRefs(det)
}

func (st *state) updateDetection(det schema.Detection) error {
	if err := st.checkUpdate(det); err != nil {
		return err
	}
	st.detections[det.ID] = det
	return nil
}

func (st *state) checkOracle(oracle schema.Oracle) error {
	if err := oracle.Validate(); err != nil {
		return err
	}
	if _, ok := st.detections[oracle.DetectionID]; !ok {
		return fmt.Errorf("oracle: detection %s: %w", oracle.DetectionID, ErrNotFound)
	}
	if oracle.Label != nil {
		if _, ok := st.categories[*oracle.Label]; !ok {
			return fmt.Errorf("oracle %s: category %d: %w", oracle.DetectionID, *oracle.Label, ErrNotFound)
		}
	}
	return nil
}

func (st *state) putOracle(oracle schema.Oracle) error {
	if err := st.checkOracle(oracle); err != nil {
		return err
	}
	if _, exists := st.oracles[oracle.DetectionID]; !exists {
		st.oracleOrder = append(st.oracleOrder, oracle.DetectionID)
	}
	st.oracles[oracle.DetectionID] = oracle
	return nil
}

// apply may stop part way; callers run it on a clone.
func (st *state) apply(c Changes) error {
	for _, cat := range c.Categories {
		if err := st.putCategory(cat); err != nil {
			return err
		}
	}
	for _, det := range c.Detections {
		if err := st.putDetection(det); err != nil {
			return err
		}
	}
	for _, det := range c.Updates {
		if err := st.updateDetection(det); err != nil {
			return err
		}
	}
	for _, oracle := range c.Oracles {
		if err := st.putOracle(oracle); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) detectionsWhere(keep func(schema.Detection) bool) []schema.Detection {
	var out []schema.Detection
	for _, id := range st.detectionOrder {
		if det := st.detections[id]; keep(det) {
			out = append(out, det)
		}
	}
	return out
}
