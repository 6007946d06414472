package objectstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// Canonical encodings are little-endian length-prefixed tuples, per
// the wire format every checksum is computed over. Byte-for-byte
// stability across runs (and across any two implementations) depends
// entirely on sorting xattrs/entries by name before encoding.

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeU32(buf, uint32(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeXattrs(buf *bytes.Buffer, xattrs []types.Xattr) {
	sorted := make([]types.Xattr, len(xattrs))
	copy(sorted, xattrs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	writeU32(buf, uint32(len(sorted)))
	for _, x := range sorted {
		writeString(buf, x.Name)
		writeBytes(buf, x.Value)
	}
}

func readU32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readXattrs(r *bytes.Reader) ([]types.Xattr, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]types.Xattr, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		value, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		out = append(out, types.Xattr{Name: name, Value: value})
	}
	return out, nil
}

// EncodeDirMeta produces the canonical dirmeta encoding:
// (uid:u32, gid:u32, mode:u32, xattrs sorted by name).
func EncodeDirMeta(m *types.DirMeta) []byte {
	var buf bytes.Buffer
	writeU32(&buf, m.UID)
	writeU32(&buf, m.GID)
	writeU32(&buf, m.Mode)
	writeXattrs(&buf, m.Xattr)
	return buf.Bytes()
}

// DecodeDirMeta parses a canonical dirmeta encoding.
func DecodeDirMeta(b []byte) (*types.DirMeta, error) {
	r := bytes.NewReader(b)
	uid, err := readU32(r)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated dirmeta: uid").WithCause(err)
	}
	gid, err := readU32(r)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated dirmeta: gid").WithCause(err)
	}
	mode, err := readU32(r)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated dirmeta: mode").WithCause(err)
	}
	xattrs, err := readXattrs(r)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated dirmeta: xattrs").WithCause(err)
	}
	return &types.DirMeta{UID: uid, GID: gid, Mode: mode, Xattr: xattrs}, nil
}

// EncodeFileObject produces the canonical file encoding:
// (size:u64, uid:u32, gid:u32, mode:u32, rdev:u32, symlink-target:string,
// xattrs, content). Symlinks carry an empty content; regular files
// carry an empty target.
func EncodeFileObject(f *types.FileObject) []byte {
	var buf bytes.Buffer
	writeU64(&buf, f.Size)
	writeU32(&buf, f.UID)
	writeU32(&buf, f.GID)
	writeU32(&buf, f.Mode)
	writeU32(&buf, f.Rdev)
	writeString(&buf, f.Target)
	writeXattrs(&buf, f.Xattr)
	writeBytes(&buf, f.Content)
	return buf.Bytes()
}

// DecodeFileObject parses a canonical file encoding.
func DecodeFileObject(b []byte) (*types.FileObject, error) {
	r := bytes.NewReader(b)
	size, err := readU64(r)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated file object: size").WithCause(err)
	}
	uid, err := readU32(r)
	if err != nil {
		return nil, err
	}
	gid, err := readU32(r)
	if err != nil {
		return nil, err
	}
	mode, err := readU32(r)
	if err != nil {
		return nil, err
	}
	rdev, err := readU32(r)
	if err != nil {
		return nil, err
	}
	target, err := readString(r)
	if err != nil {
		return nil, err
	}
	xattrs, err := readXattrs(r)
	if err != nil {
		return nil, err
	}
	content, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	return &types.FileObject{
		Size: size, UID: uid, GID: gid, Mode: mode, Rdev: rdev,
		Target: target, Xattr: xattrs, Content: content,
	}, nil
}

// EncodeDirTree produces the canonical dirtree encoding: two
// lexicographically-sorted sequences, files then dirs. Duplicate
// names within either sequence are an InvalidTree condition the
// caller (the mutable tree builder) must reject before encoding.
func EncodeDirTree(t *types.DirTree) []byte {
	files := make([]types.DirTreeFileEntry, len(t.Files))
	copy(files, t.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	dirs := make([]types.DirTreeDirEntry, len(t.Dirs))
	copy(dirs, t.Dirs)
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })

	var buf bytes.Buffer
	writeU32(&buf, uint32(len(files)))
	for _, f := range files {
		writeString(&buf, f.Name)
		buf.Write(f.Checksum[:])
	}
	writeU32(&buf, uint32(len(dirs)))
	for _, d := range dirs {
		writeString(&buf, d.Name)
		buf.Write(d.TreeCsum[:])
		buf.Write(d.DirMetaCsum[:])
	}
	return buf.Bytes()
}

// DecodeDirTree parses a canonical dirtree encoding.
func DecodeDirTree(b []byte) (*types.DirTree, error) {
	r := bytes.NewReader(b)

	nFiles, err := readU32(r)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated dirtree: file count").WithCause(err)
	}
	files := make([]types.DirTreeFileEntry, 0, nFiles)
	for i := uint32(0); i < nFiles; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var csum types.Checksum
		if _, err := r.Read(csum[:]); err != nil {
			return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated dirtree: file checksum").WithCause(err)
		}
		files = append(files, types.DirTreeFileEntry{Name: name, Checksum: csum})
	}

	nDirs, err := readU32(r)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated dirtree: dir count").WithCause(err)
	}
	dirs := make([]types.DirTreeDirEntry, 0, nDirs)
	for i := uint32(0); i < nDirs; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var treeCsum, metaCsum types.Checksum
		if _, err := r.Read(treeCsum[:]); err != nil {
			return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated dirtree: dir tree checksum").WithCause(err)
		}
		if _, err := r.Read(metaCsum[:]); err != nil {
			return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated dirtree: dir meta checksum").WithCause(err)
		}
		dirs = append(dirs, types.DirTreeDirEntry{Name: name, TreeCsum: treeCsum, DirMetaCsum: metaCsum})
	}

	return &types.DirTree{Files: files, Dirs: dirs}, nil
}

// EncodeCommit produces the canonical commit encoding:
// (metadata, parent-csum, subject, body, timestamp:u64-big-endian,
// root-dirtree-csum, root-dirmeta-csum). Ref-binding metadata is
// carried in the metadata dictionary and checksummed with the rest.
// Signatures are a trailing block WriteCommit appends after this body
// and are not part of the checksummed bytes, since signatures are
// computed over the unsigned commit bytes.
func EncodeCommit(c *types.Commit) ([]byte, error) {
	var buf bytes.Buffer

	metaBytes, err := encodeMetadataDict(c.Metadata)
	if err != nil {
		return nil, err
	}
	writeBytes(&buf, metaBytes)

	if c.Parent != nil {
		writeU32(&buf, 32)
		buf.Write(c.Parent[:])
	} else {
		writeU32(&buf, 0)
	}

	writeString(&buf, c.Subject)
	writeString(&buf, c.Body)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(c.Timestamp.Unix()))
	buf.Write(tsBuf[:])

	buf.Write(c.RootTree[:])
	buf.Write(c.RootDirMeta[:])

	return buf.Bytes(), nil
}

// encodeMetadataDict serialises the commit's metadata dictionary as a
// sorted sequence of (key, value) pairs where value is rendered with
// fmt.Sprintf("%v", ...) — sufficient for the string/number/bool
// variants actually stored in commit metadata (ref-binding, version,
// source checksums, bootable flag).
func encodeMetadataDict(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	writeU32(&buf, uint32(len(keys)))
	for _, k := range keys {
		writeString(&buf, k)
		writeString(&buf, fmt.Sprintf("%v", m[k]))
	}
	return buf.Bytes(), nil
}

// DecodeCommit parses a canonical commit encoding. The metadata
// dictionary is returned with string values; callers that need typed
// values (e.g. the bootable flag) re-parse from string form.
func DecodeCommit(b []byte) (*types.Commit, error) {
	r := bytes.NewReader(b)

	metaBytes, err := readBytes(r)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated commit: metadata").WithCause(err)
	}
	metadata, err := decodeMetadataDict(metaBytes)
	if err != nil {
		return nil, err
	}

	parentLen, err := readU32(r)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated commit: parent length").WithCause(err)
	}
	var parent *types.Checksum
	if parentLen == 32 {
		var csum types.Checksum
		if _, err := r.Read(csum[:]); err != nil {
			return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated commit: parent checksum").WithCause(err)
		}
		parent = &csum
	} else if parentLen != 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "commit parent checksum has invalid length")
	}

	subject, err := readString(r)
	if err != nil {
		return nil, err
	}
	body, err := readString(r)
	if err != nil {
		return nil, err
	}

	var tsBuf [8]byte
	if _, err := r.Read(tsBuf[:]); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated commit: timestamp").WithCause(err)
	}
	ts := binary.BigEndian.Uint64(tsBuf[:])

	var rootTree, rootMeta types.Checksum
	if _, err := r.Read(rootTree[:]); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated commit: root dirtree checksum").WithCause(err)
	}
	if _, err := r.Read(rootMeta[:]); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated commit: root dirmeta checksum").WithCause(err)
	}

	return &types.Commit{
		Metadata:    metadata,
		Parent:      parent,
		Subject:     subject,
		Body:        body,
		Timestamp:   unixToTime(ts),
		RootTree:    rootTree,
		RootDirMeta: rootMeta,
	}, nil
}

func decodeMetadataDict(b []byte) (map[string]interface{}, error) {
	r := bytes.NewReader(b)
	n, err := readU32(r)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidTree, "truncated commit metadata: count").WithCause(err)
	}
	out := make(map[string]interface{}, n)
	for i := uint32(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
