// Package store persists the canonical dataset for the labeling workflow.
//
// Store is the narrow interface the rest of trapcat depends on. Three
// backends implement it: an in-memory store for tests and one-shot runs, a
// JSON-file store that rewrites a single document atomically after every
// committed change, and a SQLite store (modernc.org/sqlite, WAL mode, foreign
// keys enforced) for long-lived labeling sessions. Open selects one from
// configuration.
//
// Every backend enforces the same rules: Info is written once, identifiers
// are unique, detections reference existing images and categories, each
// detection has at most one oracle, and Import loads a whole Snapshot in one
// atomic step into an empty store.
package store
