// Package events reads a task's recorded trajectory from its data folder.
//
// A task folder holds metadata.json (the video-start reference),
// reduced_events_complete.jsonl (one action event per line), an optional
// reduced_events_vis.jsonl carrying display descriptions, and the screen
// recording. Loading is all-or-nothing: a single malformed line fails the
// task with the offending line number, because a truncated trajectory must
// never be presented as complete. Inputs are never modified.
package events
