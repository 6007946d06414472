/*
Package objectstore implements the content-addressed object store: the
on-disk layout of a repository's objects/ directory, the canonical
binary encodings used to compute checksums, and the four supported
repository modes (archive, bare, bare-user, bare-user-only).

# Layout

	<repo>/objects/<first-2-hex>/<remaining-62-hex>.<ext>

Extensions follow the object kind: .dirmeta, .dirtree, .commit, and
either .file (bare modes) or .filez (archive mode, zlib-compressed).

# Writes

put_object computes the checksum over the in-memory canonical
encoding, writes the bytes to a private temporary file under tmp/, and
makes the object visible with a link-then-unlink: link the temp file
to its final objects/<aa>/<rest>.<ext> path, then unlink the temp
name. A pre-existing object with the same checksum short-circuits the
write entirely, since the content is provably identical. This scheme
means a process killed mid-write never leaves a torn object visible
under its final name.

# Repository modes

archive stores each file object as an 8-byte length header followed
by the zlib-compressed canonical encoding (metadata and content
together; no metadata is kept outside the compressed stream); bare stores real files with real ownership and requires
privilege; bare-user stores files owned by the invoking user with
original ownership/mode/xattrs packed into a "user.ostreemeta" xattr;
bare-user-only is bare-user with suid bits and device nodes rejected
outright.
*/
package objectstore
