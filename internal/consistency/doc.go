// Package consistency cross-validates metadata rows against the image tree.
//
// Metadata to disk: every distinct filename in the index is looked up under
// the image root, on a bounded worker pool with a per-file deadline. Disk to
// metadata: the tree is walked and every image file no row references is an
// orphan. Duplicate metadata filenames are reported too. All of these are
// recoverable findings; only an unreadable root stops the check.
//
// Filename matching is exact and case-sensitive. When a missing filename and
// an orphan differ only by Unicode normalization, letter case, or path
// separator, both findings carry a hint naming the other.
package consistency
