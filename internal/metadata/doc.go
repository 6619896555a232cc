// Package metadata models the raw rows of a camera-trap survey export and
// reads them from CSV.
//
// Survey spreadsheets are exported to CSV before ingestion; column names vary
// between surveys, so the reader maps configurable header names onto the
// fixed Row fields. Optional values (species, photo type) stay nil when the
// cell is blank so downstream mapping rules can treat "missing" explicitly.
package metadata
