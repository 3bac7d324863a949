// Package main hosts the cua-annotate CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration, opens one annotator session
// per invocation, and renders results as tables or JSON. Review logic lives
// in internal/annotator; commands here only parse arguments and print.
package main
