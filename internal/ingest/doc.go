// Package ingest wires the pipeline stages into one run: read metadata,
// build the filename index, reconcile it with the image tree, build the
// catalog, then write the catalog file and import it into the store.
//
// A run holds an exclusive lock next to the catalog path so two runs never
// write the same outputs. Each run carries its own run_id in every log line.
package ingest
