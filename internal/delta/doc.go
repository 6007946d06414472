// Package delta implements the static-delta codec: a superblock plus
// one or more parts encoding a binary diff between two commits. A
// part is a sequence of opcodes (open/copy/write/set-mode/close/bsdiff)
// replayed by a small reconstruction machine over three buffers
// (source, payload, scratch) to rebuild a target commit's objects from
// a parent commit's content plus embedded diff instructions.
//
// Generation pairs files between two trees by path. A changed file
// whose previous version is a regular file gets a bsdiff encoding when
// both versions are within max-bsdiff-size; a symlink, or a new file no
// larger than min-fallback-size, is inlined as a literal write; anything
// else gets a fallback entry (fetched by normal object URL instead of
// through the delta). How similar the two versions are is not measured:
// a completely rewritten file under the size cap is still bsdiffed.
package delta
