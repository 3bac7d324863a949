// Package frames extracts single still frames from task recordings.
//
// Source is the substitutable decode backend: FFmpegOpener shells out to
// ffprobe once per video and to ffmpeg once per seek, each bounded by a
// timeout so a corrupt recording surfaces as DecodeFailure instead of hanging
// the session. Extractor layers a bounded LRU cache keyed by (task, step) on
// top, collapses concurrent requests for the same step, and supports explicit
// invalidation when an annotator asks for a re-extract. The cache is an
// optimization only; every frame is regenerable from (video, offset).
package frames
