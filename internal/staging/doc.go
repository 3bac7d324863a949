// Package staging recovers the export output directory after an interrupted
// run.
//
// Exports write each task into a hidden ".task_<id>.tmp" folder and swap it
// into place, keeping the previous folder as "task_<id>.old" until the swap
// completes. Atomic file writes and the archive use ".<name>.*.tmp" temp
// files. A crash can strand any of these; Recover puts the directory back
// into a consistent state before the next session touches it.
package staging
