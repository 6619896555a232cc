// Package preflight provides readiness checks for the filesystem paths an
// ingestion run depends on.
//
// These checks run in two contexts:
//   - The ingest pipeline calls RunAll before reading any metadata. If any
//     check fails, the run stops before doing work that cannot be written.
//   - The CLI "trapcat config validate" command prints every result.
//
// Output directories are checked for write access; inputs only for read.
package preflight
