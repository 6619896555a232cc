// Package catalog turns an indexed, checked metadata source into the
// interchange catalog: one Info record plus images, annotations and
// categories.
//
// The builder selects the first row for every filename that survived the
// consistency check, probes the image on a worker pool, and assigns category
// identifiers sequentially in first-seen order. Per-image problems become
// findings and drop the image; identifier collisions abort the build and no
// catalog is returned. Build either completes or produces nothing.
//
// The codec writes the catalog atomically (temp file and rename) so a failed
// run never leaves a partial document behind.
package catalog
