// Package logs reads the annotator's JSON log file for the CLI "logs"
// command.
//
// Tail returns the last N lines or everything after a byte offset, and can
// poll for new lines in follow mode. Parse and Filter narrow the JSON lines
// to one task or a minimum level, and Format renders them compactly.
package logs
