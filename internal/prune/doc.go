// Package prune implements repository garbage collection (spec.md
// §4.7): a two-phase mark-and-sweep that computes every object
// reachable from the repository's refs (optionally minus excluded
// commits, bounded by depth, and cut off at a keep-younger-than
// timestamp) and deletes everything in objects/ that didn't get
// marked. The whole mark+sweep pair runs under the repository's
// transaction lock so a concurrent writer can never be observed
// moving an object into place that the sweep has already decided is
// unreachable.
package prune
