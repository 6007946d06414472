package rofs

import (
	"context"
	"os"
	"path/filepath"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Node is one entry in the passthrough tree. path is the entry's
// location relative to the mount root; source is the backing directory
// on the host filesystem (shared by every Node, carried per-node only
// for convenience).
type Node struct {
	fs.Inode
	path   string
	source string
}

var (
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeReadlinker = (*Node)(nil)
)

// hostPath returns the node's absolute location on the backing
// filesystem.
func (n *Node) hostPath() string {
	return filepath.Join(n.source, n.path)
}

func (n *Node) child(name string) *Node {
	return &Node{path: filepath.Join(n.path, name), source: n.source}
}

// errno maps a host os/syscall error to the syscall.Errno FUSE expects,
// defaulting to EIO for anything unrecognized.
func errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if os.IsNotExist(err) {
		return syscall.ENOENT
	}
	if os.IsPermission(err) {
		return syscall.EACCES
	}
	if e, ok := err.(*os.PathError); ok {
		if sysErrno, ok := e.Err.(syscall.Errno); ok {
			return sysErrno
		}
	}
	return syscall.EIO
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	full := filepath.Join(n.hostPath(), name)
	var st syscall.Stat_t
	if err := syscall.Lstat(full, &st); err != nil {
		return nil, errno(err)
	}

	child := n.child(name)
	fillAttr(&st, &out.Attr)
	childInode := n.NewInode(ctx, child, fs.StableAttr{
		Mode: uint32(st.Mode) & syscall.S_IFMT,
		Ino:  st.Ino,
	})
	return childInode, 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := os.ReadDir(n.hostPath())
	if err != nil {
		return nil, errno(err)
	}
	list := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		var mode uint32
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			mode = syscall.S_IFLNK
		case info.IsDir():
			mode = syscall.S_IFDIR
		default:
			mode = syscall.S_IFREG
		}
		list = append(list, fuse.DirEntry{Name: e.Name(), Mode: mode})
	}
	return fs.NewListDirStream(list), 0
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	var st syscall.Stat_t
	if err := syscall.Lstat(n.hostPath(), &st); err != nil {
		return errno(err)
	}
	fillAttr(&st, &out.Attr)
	return 0
}

func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	path := n.hostPath()
	if mode, ok := in.GetMode(); ok {
		if err := breakHardlinkIfShared(path); err != nil {
			return errno(err)
		}
		if err := os.Chmod(path, os.FileMode(mode&0777)); err != nil {
			return errno(err)
		}
	}
	if size, ok := in.GetSize(); ok {
		if err := breakHardlinkIfShared(path); err != nil {
			return errno(err)
		}
		if err := os.Truncate(path, int64(size)); err != nil {
			return errno(err)
		}
	}
	var st syscall.Stat_t
	if err := syscall.Lstat(path, &st); err != nil {
		return errno(err)
	}
	fillAttr(&st, &out.Attr)
	return 0
}

// Open breaks the path's hardlink into the object store (copying its
// content to a fresh inode) before returning a handle for any open
// that requests write access, so the copy-up happens before the first
// byte is written rather than racing with it.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	path := n.hostPath()
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		if err := breakHardlinkIfShared(path); err != nil {
			return nil, 0, errno(err)
		}
	}
	f, err := os.OpenFile(path, int(flags), 0644)
	if err != nil {
		return nil, 0, errno(err)
	}
	return &FileHandle{f: f}, 0, 0
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	full := filepath.Join(n.hostPath(), name)
	f, err := os.OpenFile(full, int(flags)|os.O_CREATE, os.FileMode(mode&0777))
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	var st syscall.Stat_t
	if err := syscall.Lstat(full, &st); err != nil {
		f.Close()
		return nil, nil, 0, errno(err)
	}
	fillAttr(&st, &out.Attr)
	child := n.child(name)
	childInode := n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFREG, Ino: st.Ino})
	return childInode, &FileHandle{f: f}, 0, 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	full := filepath.Join(n.hostPath(), name)
	if err := os.Mkdir(full, os.FileMode(mode&0777)); err != nil {
		return nil, errno(err)
	}
	var st syscall.Stat_t
	if err := syscall.Lstat(full, &st); err != nil {
		return nil, errno(err)
	}
	fillAttr(&st, &out.Attr)
	child := n.child(name)
	childInode := n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: st.Ino})
	return childInode, 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	if err := os.Remove(filepath.Join(n.hostPath(), name)); err != nil {
		return errno(err)
	}
	return 0
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	if err := os.Remove(filepath.Join(n.hostPath(), name)); err != nil {
		return errno(err)
	}
	return 0
}

func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := os.Readlink(n.hostPath())
	if err != nil {
		return nil, errno(err)
	}
	return []byte(target), 0
}

func fillAttr(st *syscall.Stat_t, out *fuse.Attr) {
	out.Ino = st.Ino
	out.Size = uint64(st.Size)
	out.Mode = uint32(st.Mode)
	out.Nlink = uint32(st.Nlink)
	out.Uid = st.Uid
	out.Gid = st.Gid
	out.Atime = uint64(st.Atim.Sec)
	out.Mtime = uint64(st.Mtim.Sec)
	out.Ctime = uint64(st.Ctim.Sec)
}
