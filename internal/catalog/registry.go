package catalog

import "trapcat/internal/schema"

// Registry assigns category identifiers in first-seen order starting at 0.
// It is not safe for concurrent use; assignment order defines the IDs.
type Registry struct {
	ids   map[string]int
	order []schema.Category
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]int)}
}

// Assign returns the identifier for name, allocating the next one when the
// name has not been seen. Names are compared exactly.
func (r *Registry) Assign(name string) int {
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := len(r.order)
	r.ids[name] = id
	r.order = append(r.order, schema.Category{ID: id, Name: name})
	return id
}

// Categories returns the assigned categories ordered by ID.
func (r *Registry) Categories() []schema.Category {
	cp := make([]schema.Category, len(r.order))
	copy(cp, r.order)
	return cp
}
