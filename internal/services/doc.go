// Package services defines shared utilities consumed by the extraction and
// export pipeline.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, step indices, and correlation
//     identifiers for logging.
//   - Structured error markers for the annotation failure taxonomy, plus
//     StepError, which pins every failure to a task, a step, and the
//     timestamp or offset that caused it.
//
// Use these helpers when wiring new pipeline code so failures stay locatable:
// an annotator must always be able to find the recording or log line to fix.
package services
