// Package workpool runs independent per-item I/O over a bounded number of
// goroutines and bounds single calls with a deadline.
//
// Ingestion uses it for the two phases that are independent per filename:
// file existence checks and image header decoding. Callers write results
// into a slice slot per item so output order never depends on scheduling.
package workpool
