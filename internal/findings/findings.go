package findings

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind classifies a finding.
type Kind string

const (
	DuplicateFilename Kind = "duplicate_filename"
	MissingImageFile  Kind = "missing_image_file"
	OrphanImageFile   Kind = "orphan_image_file"
	UnreadableImage   Kind = "unreadable_image"
	SchemaViolation   Kind = "schema_violation"
)

var allKinds = []Kind{
	DuplicateFilename,
	MissingImageFile,
	OrphanImageFile,
	UnreadableImage,
	SchemaViolation,
}

// AllKinds returns the known kinds in report order.
func AllKinds() []Kind {
	cp := make([]Kind, len(allKinds))
	copy(cp, allKinds)
	return cp
}

// ParseKind converts a configuration value into a Kind. Hyphens and case are
// ignored ("Missing-Image-File" parses).
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_"))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}

// Finding is one recoverable problem tied to a filename.
type Finding struct {
	Kind     Kind   `json:"kind"`
	Filename string `json:"filename"`
	Rows     []int  `json:"rows,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

func (f Finding) String() string {
	var b strings.Builder
	b.WriteString(string(f.Kind))
	b.WriteString(": ")
	b.WriteString(f.Filename)
	if f.Detail != "" {
		b.WriteString(" (")
		b.WriteString(f.Detail)
		b.WriteByte(')')
	}
	if f.Hint != "" {
		b.WriteString("; ")
		b.WriteString(f.Hint)
	}
	return b.String()
}

// Report accumulates findings. It is safe for concurrent use so worker pools
// can record directly, though the pipeline appends in a deterministic order.
type Report struct {
	mu       sync.Mutex
	findings []Finding
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{}
}

// Add appends a finding.
func (r *Report) Add(f Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findings = append(r.findings, f)
}

// Addf appends a finding with a formatted detail.
func (r *Report) Addf(kind Kind, filename, format string, args ...any) {
	r.Add(Finding{Kind: kind, Filename: filename, Detail: fmt.Sprintf(format, args...)})
}

// All returns a copy of every finding in insertion order.
func (r *Report) All() []Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Finding, len(r.findings))
	copy(cp, r.findings)
	return cp
}

// ByKind returns the findings of one kind in insertion order.
func (r *Report) ByKind(kind Kind) []Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Finding
	for _, f := range r.findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Filenames returns the set of filenames carrying a finding of kind.
func (r *Report) Filenames(kind Kind) map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[string]struct{})
	for _, f := range r.findings {
		if f.Kind == kind {
			set[f.Filename] = struct{}{}
		}
	}
	return set
}

// Has reports whether any finding of kind exists.
func (r *Report) Has(kind Kind) bool {
	return r.Count(kind) > 0
}

// Count returns the number of findings of kind.
func (r *Report) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// Len returns the total number of findings.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.findings)
}

// Counts returns per-kind totals, including zero entries for every known kind.
func (r *Report) Counts() map[Kind]int {
	counts := make(map[Kind]int, len(allKinds))
	for _, kind := range allKinds {
		counts[kind] = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.findings {
		counts[f.Kind]++
	}
	return counts
}

// Sorted returns findings grouped by kind (in AllKinds order), keeping
// insertion order within a kind.
func (r *Report) Sorted() []Finding {
	items := r.All()
	rank := make(map[Kind]int, len(allKinds))
	for idx, kind := range allKinds {
		rank[kind] = idx
	}
	sort.SliceStable(items, func(i, j int) bool {
		return rank[items[i].Kind] < rank[items[j].Kind]
	})
	return items
}
