package types

import (
	"time"
)

// Checksum is a 32-byte SHA-256 digest, canonically rendered as 64
// lowercase hex characters once converted to string form.
type Checksum [32]byte

// ObjectKind tags the four kinds of content-addressed object.
type ObjectKind string

const (
	KindFile    ObjectKind = "file"
	KindDirMeta ObjectKind = "dirmeta"
	KindDirTree ObjectKind = "dirtree"
	KindCommit  ObjectKind = "commit"
)

// Extension returns the on-disk filename suffix used under objects/<aa>/
// for the given kind. Archive-mode repositories compress file content
// and use ".filez" instead of ".file".
func (k ObjectKind) Extension(compressed bool) string {
	switch k {
	case KindFile:
		if compressed {
			return ".filez"
		}
		return ".file"
	case KindDirMeta:
		return ".dirmeta"
	case KindDirTree:
		return ".dirtree"
	case KindCommit:
		return ".commit"
	default:
		return ".bin"
	}
}

// RepoMode selects the on-disk representation used for file objects.
type RepoMode string

const (
	// ModeArchive zlib-compresses file content; metadata objects stay
	// uncompressed. Suited to server-side repositories.
	ModeArchive RepoMode = "archive"

	// ModeBare stores file objects as real files carrying their real
	// uid/gid/mode/xattrs. Requires privilege to write.
	ModeBare RepoMode = "bare"

	// ModeBareUser stores file objects owned by the invoking user;
	// original uid/gid/mode/xattrs travel in a "user.ostreemeta" xattr.
	ModeBareUser RepoMode = "bare-user"

	// ModeBareUserOnly is bare-user with suid bits and device nodes
	// rejected at write time.
	ModeBareUserOnly RepoMode = "bare-user-only"
)

// Valid reports whether m names one of the four supported modes.
func (m RepoMode) Valid() bool {
	switch m {
	case ModeArchive, ModeBare, ModeBareUser, ModeBareUserOnly:
		return true
	default:
		return false
	}
}

// Compressed reports whether file object bodies are stored compressed.
func (m RepoMode) Compressed() bool {
	return m == ModeArchive
}

// Xattr is a single extended attribute name/value pair.
type Xattr struct {
	Name  string
	Value []byte
}

// DirMeta is the metadata of a directory: mode/uid/gid/xattrs.
type DirMeta struct {
	UID   uint32
	GID   uint32
	Mode  uint32
	Xattr []Xattr
}

// FileObject is a regular file or symlink, with its full metadata.
// Symlinks carry Target non-empty and Content empty.
type FileObject struct {
	Size    uint64
	UID     uint32
	GID     uint32
	Mode    uint32
	Rdev    uint32
	Target  string
	Xattr   []Xattr
	Content []byte
}

// IsSymlink reports whether the file object represents a symlink.
func (f *FileObject) IsSymlink() bool {
	return f.Target != ""
}

// DirTreeFileEntry names a file object by filename within a dirtree.
type DirTreeFileEntry struct {
	Name     string
	Checksum Checksum
}

// DirTreeDirEntry names a subdirectory by filename within a dirtree,
// pointing at both its dirtree and dirmeta checksums.
type DirTreeDirEntry struct {
	Name        string
	TreeCsum    Checksum
	DirMetaCsum Checksum
}

// DirTree is the sorted pair of file and directory entries making up
// one level of the Merkle tree. Entries must be lexicographically
// sorted by Name for the encoding to be canonical.
type DirTree struct {
	Files []DirTreeFileEntry
	Dirs  []DirTreeDirEntry
}

// RefBinding is the set of refs (and optional collection id) a commit
// declares itself intended to be written under.
type RefBinding struct {
	CollectionID string
	Refs         []string
}

// Commit is an immutable snapshot: a root tree plus metadata, subject,
// body, timestamp, optional parent, and optional detached signatures.
type Commit struct {
	Metadata    map[string]interface{}
	Parent      *Checksum
	Subject     string
	Body        string
	Timestamp   time.Time
	RootTree    Checksum
	RootDirMeta Checksum
	Binding     *RefBinding
	Signatures  [][]byte
}

// Ref identifies a named pointer, optionally scoped under a remote
// (refs/remotes/<remote>) or a peer-to-peer collection id.
type Ref struct {
	Remote       string
	CollectionID string
	Name         string
	Checksum     string
}

// ObjectInfo describes a stored object for listing/inspection.
type ObjectInfo struct {
	Kind     ObjectKind `json:"kind"`
	Checksum string     `json:"checksum"`
	Size     int64      `json:"size"`
}

// CacheStats reports cache hit/miss/eviction counters.
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// Range represents a byte range within an object's content.
type Range struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

// AccessPattern records a historical read of an object's byte range so
// predictive layers (cache warmers, mirror prefetch) can model locality.
type AccessPattern struct {
	Checksum    string    `json:"checksum"`
	Frequency   int64     `json:"frequency"`
	LastAccess  time.Time `json:"last_access"`
	ReadRanges  []Range   `json:"read_ranges"`
	Sequential  bool      `json:"sequential"`
	Confidence  float64   `json:"confidence"`
	ObjectSize  int64     `json:"object_size"`
}

// PrefetchCandidate is a byte range a predictor suggests warming next.
type PrefetchCandidate struct {
	Checksum string    `json:"checksum"`
	Offset   int64     `json:"offset"`
	Size     int64     `json:"size"`
	Priority int       `json:"priority"`
	Deadline time.Time `json:"deadline"`
}

// HealthStatus represents the health of a single monitored component.
type HealthStatus struct {
	Status     string            `json:"status"`
	LastCheck  time.Time         `json:"last_check"`
	Response   time.Duration     `json:"response_time"`
	ErrorCount int64             `json:"error_count"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details"`
}

// ConnectionStats reports pool-level connection counters for the pull
// engine's HTTP client pool.
type ConnectionStats struct {
	Active      int           `json:"active"`
	Idle        int           `json:"idle"`
	Total       int           `json:"total"`
	MaxOpen     int           `json:"max_open"`
	Lifetime    time.Duration `json:"lifetime"`
	IdleTimeout time.Duration `json:"idle_timeout"`
}

// RepoStats is the snapshot a transaction manager computes after each
// commit: object counts and bytes on disk by kind, ref count, and the
// time of the last committed transaction.
type RepoStats struct {
	ObjectCount     map[ObjectKind]int64 `json:"object_count"`
	BytesOnDisk     map[ObjectKind]int64 `json:"bytes_on_disk"`
	LastTransaction time.Time            `json:"last_transaction"`
	RefCount        int                  `json:"ref_count"`
}

// PullPhase names a step of the per-ref pull state machine, plus the
// finer-grained progress tags emitted to a ProgressObserver within the
// Fetching/Writing steps (PhaseScanning, PhaseApplyingDelta).
type PullPhase string

const (
	PhaseResolving     PullPhase = "resolving"
	PhasePlanning      PullPhase = "planning"
	PhaseScanning      PullPhase = "scanning"
	PhaseFetching      PullPhase = "fetching"
	PhaseApplyingDelta PullPhase = "applying-delta"
	PhaseVerifying     PullPhase = "verifying"
	PhaseWriting       PullPhase = "writing"
	PhaseDone          PullPhase = "done"
	PhaseFailed        PullPhase = "failed"
)

// PullProgress is delivered to a ProgressObserver as a pull advances.
type PullProgress struct {
	Ref              string
	Phase            PullPhase
	BytesTransferred int64
	BytesTotal       int64
	ObjectsFetched   int64
	ObjectsTotal     int64
	Err              error
}

// Origin is the parsed contents of a deployment's .origin file.
type Origin struct {
	Refspec           string
	OverrideCommit    string
	UnconfiguredState string
	Unlocked          bool
}

// Deployment describes one checked-out commit bound into the bootloader.
type Deployment struct {
	Stateroot      string
	Checksum       string
	Serial         int
	BootVersion    int
	SubBootVersion int
	BootChecksum   string
	Origin         Origin
	Kargs          []string
	Booted         bool
}
