// Package annotations persists annotator judgments in SQLite: coordinate
// overrides, task verdicts with scores, and per-step verdicts.
//
// The three kinds of state live in separate tables keyed by task (and step)
// and are only joined by readers such as the export assembler. Every write is
// serialized through the Store and committed before the call returns, so a
// crash never loses an acknowledged edit. A lock file next to the database
// keeps a second process from opening the same state directory.
//
// Snapshots reproduce the JSON files the browser tool kept on disk
// (annotations.json, step_annotations.json, coordinate_adjustments.json).
// They ship with every export for auditability and can be imported to
// rebuild the database from scratch.
//
// Schema changes bump schemaVersion in schema.go; rebuild the database from
// a snapshot to adopt the new schema.
package annotations
