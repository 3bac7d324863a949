// Package annotator is the call surface a front end drives: it wires the
// roster, event store, frame extractor, annotation store and export
// assembler from one config and exposes task loading, frame rendering,
// annotation edits and export.
//
// Every call takes an explicit task id (and step index where it applies);
// the Service keeps no notion of a current task.
package annotator
