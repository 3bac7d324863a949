// Package preflight provides readiness checks for the filesystem paths and
// external binaries an annotation session depends on.
//
// The CLI "doctor" command runs RunAll and prints every result; the other
// commands only consult MissingRequired before touching video.
package preflight
