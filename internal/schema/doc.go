// Package schema defines the canonical camera-trap dataset entities: Info,
// Category, Image, Detection and Oracle.
//
// The types are plain data contracts with JSON tags matching the COCO Camera
// Traps interchange convention. Constructors validate the invariants every
// entity must hold and report failures as *SchemaViolation, which callers can
// match with errors.Is(err, ErrSchemaViolation). DetectionKind models the
// labeling lifecycle as a closed set of states with one-directional
// transitions; storage backends and the labeling service rely on it rather
// than on raw integer codes.
//
// Nothing in this package performs I/O.
package schema
