// Package config loads, normalizes, and validates cua-annotate configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the CUA_* environment fallbacks
// the annotation tool has always accepted (CUA_DATA_DIR, CUA_CSV_FILE,
// CUA_OUTPUT_DIR, CUA_STATE_DIR). The Config type centralizes every knob the
// extraction pipeline and CLI need, so the data folders, the ffmpeg binaries
// and the export layout are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
