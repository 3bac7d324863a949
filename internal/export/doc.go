// Package export assembles approved tasks into self-contained training
// records: one folder per task holding a PNG per step and the task JSON,
// plus a combined JSON, a run manifest, annotation snapshots and a zip
// archive bundling all of it.
//
// Per-task output is all-or-nothing. Steps are rendered into a hidden
// staging folder and the folder replaces task_<id>/ only when every step
// succeeded, so a failed or cancelled export never leaves a half-written
// task behind. Records carry no timestamps, so exporting unchanged state
// twice yields byte-identical task folders.
package export
