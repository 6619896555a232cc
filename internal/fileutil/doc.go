// Package fileutil holds filesystem helpers shared by the catalog codec and
// the JSON-file store.
package fileutil
