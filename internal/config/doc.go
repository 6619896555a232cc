// Package config loads, normalizes, and validates trapcat configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TRAPCAT_IMAGE_ROOT. The Config type centralizes every knob the ingestion
// pipeline, the labeling workflow, and the CLI need: where the survey export
// lives, which metadata columns to read, how hard to work the disk, and where
// the catalog and database end up.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
