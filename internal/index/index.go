package index

import (
	"path"
	"strings"

	"trapcat/internal/metadata"
)

// Index is the filename to row-index mapping built from one metadata pass.
type Index struct {
	rows  map[string][]int
	order []string
	dups  []string
	blank []int
}

// Build indexes rows in iteration order. Rows with a blank filename are not
// indexed and are listed by Blank instead.
func Build(rows []metadata.Row) *Index {
	idx := &Index{rows: make(map[string][]int, len(rows))}
	for pos, row := range rows {
		fn := row.Filename
		if strings.TrimSpace(fn) == "" {
			idx.blank = append(idx.blank, pos)
			continue
		}
		existing, seen := idx.rows[fn]
		if !seen {
			idx.order = append(idx.order, fn)
		} else if len(existing) == 1 {
			idx.dups = append(idx.dups, fn)
		}
		idx.rows[fn] = append(existing, pos)
	}
	return idx
}

// Len returns the number of distinct filenames.
func (i *Index) Len() int {
	return len(i.order)
}

// Filenames returns distinct filenames in first-occurrence order.
func (i *Index) Filenames() []string {
	cp := make([]string, len(i.order))
	copy(cp, i.order)
	return cp
}

// Rows returns the row positions referencing filename, in row order.
func (i *Index) Rows(filename string) []int {
	rows := i.rows[filename]
	if len(rows) == 0 {
		return nil
	}
	cp := make([]int, len(rows))
	copy(cp, rows)
	return cp
}

// First returns the authoritative row position for filename.
func (i *Index) First(filename string) (int, bool) {
	rows := i.rows[filename]
	if len(rows) == 0 {
		return 0, false
	}
	return rows[0], true
}

// Contains reports whether filename appears in the metadata.
func (i *Index) Contains(filename string) bool {
	_, ok := i.rows[filename]
	return ok
}

// Duplicates returns filenames referenced by more than one row, in
// first-occurrence order.
func (i *Index) Duplicates() []string {
	cp := make([]string, len(i.dups))
	copy(cp, i.dups)
	return cp
}

// DuplicateRowCount returns the number of rows beyond the first for every
// duplicated filename.
func (i *Index) DuplicateRowCount() int {
	n := 0
	for _, fn := range i.dups {
		n += len(i.rows[fn]) - 1
	}
	return n
}

// Blank returns positions of rows whose filename was empty.
func (i *Index) Blank() []int {
	cp := make([]int, len(i.blank))
	copy(cp, i.blank)
	return cp
}

// ImageID derives the stable image identifier for a metadata filename: the
// slash-separated relative path with its final extension removed.
func ImageID(filename string) string {
	slashed := strings.ReplaceAll(filename, "\\", "/")
	ext := path.Ext(slashed)
	if ext == slashed || strings.HasSuffix(strings.TrimSuffix(slashed, ext), "/") {
		return slashed
	}
	return strings.TrimSuffix(slashed, ext)
}
