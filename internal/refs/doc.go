// Package refs implements the ref store: named pointers to commit
// checksums living under <repo>/refs/heads/<path>,
// <repo>/refs/remotes/<remote>/<path>, and
// <repo>/refs/mirrors/<collection>/<path>. Each ref is a plain file
// containing the 64 lowercase hex characters of the commit it points
// at, with no trailing newline, written with the same
// write-tmp-then-rename discipline the object store uses for objects.
//
// Ref names are validated as non-empty, slash-separated path
// components, UTF-8, and free of ".", "..", and empty segments so a
// malicious or corrupt ref name can never escape refs/ on disk.
package refs
