// Package findings defines the recoverable per-record problems an ingestion
// run can surface and the Report that accumulates them.
//
// Findings never stop a run on their own; the catalog builder consults the
// report to decide which filenames to exclude and whether a configured policy
// asks it to abort.
package findings
