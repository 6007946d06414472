// Package tree implements the mutable tree builder used to stage a
// checkout or in-memory tree edit before it is written into the
// object store as a dirtree/dirmeta pair, and the commit modifier
// used to transform a root tree before committing (filtering entries,
// overriding uid/gid, canonicalising permissions, stripping xattrs).
//
// A MutableTree mirrors the shape of a dirtree/dirmeta pair but keeps
// child entries in memory as pointers rather than checksums, so a
// caller can repeatedly add, replace, or remove files and
// subdirectories before a single bottom-up Write pass turns the whole
// structure into a checksummed tree of objects.
package tree
