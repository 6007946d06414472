// Package rofs implements a rofiles-fuse-style passthrough filesystem
// used by the commit-modifier's "consume source tree" mode (spec.md's
// mutable tree builder, fed from a hardlink-farm checkout of an
// existing commit). A build process is handed what looks like a plain
// writable directory; any write to a path whose underlying file is
// still hardlinked into the object store is transparently copied up to
// a fresh inode first, so the object store's own file objects are
// never mutated in place. Read-only access and directories pass
// straight through.
package rofs
