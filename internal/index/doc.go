// Package index maps metadata filenames to the rows that reference them.
//
// Filenames are compared exactly: no case folding, no Unicode normalisation,
// no path cleaning. Two spellings of the same file are two keys, which keeps
// encoding inconsistencies in the export visible instead of silently merged.
// The first row seen for a filename is authoritative for its catalog entry.
package index
