package prune

import (
	"time"

	"github.com/ostreego/ostree/pkg/utils"
)

// Options bundles the per-prune flags spec.md §4.7 names.
type Options struct {
	// Depth bounds how many parents are followed back from each ref
	// head. Zero or negative means unbounded.
	Depth int

	// KeepYoungerThan, when non-zero, stops the mark walk (and leaves
	// unmarked, hence eligible for deletion) at the first commit in a
	// chain older than this timestamp.
	KeepYoungerThan time.Time

	// ExcludeCommits names commits to treat as already deleted: a ref
	// currently pointing at one of these is not used as a mark root,
	// simulating "prune after these refs/commits are removed" in one
	// pass.
	ExcludeCommits []string

	// WriteTombstones records every excluded commit in the repository's
	// tombstone set (and writes a tombstone commit object for it) so a
	// later pull from a remote that still advertises it does not
	// resurrect it.
	WriteTombstones bool

	// DryRun computes and returns what would be deleted without
	// deleting anything.
	DryRun bool

	// Logger, if set, receives one line summarizing each prune pass.
	Logger *utils.StructuredLogger
}
