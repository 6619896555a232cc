// Package main hosts the trapcat CLI entrypoint and command graph.
//
// The Cobra-based command tree turns a camera-trap survey (a metadata export
// plus an image directory) into a catalog, reports consistency findings, and
// drives the labeling loop against the configured store. It centralizes
// configuration resolution, logger construction and store access so
// subcommands can focus on presentation.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
