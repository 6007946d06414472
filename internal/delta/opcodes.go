package delta

import "github.com/ostreego/ostree/pkg/types"

// Op names one instruction understood by the part reconstruction
// machine.
type Op byte

const (
	OpOpen Op = iota + 1
	OpCopy
	OpWrite
	OpSetMode
	OpClose
	OpBsdiff
)

// Instruction is one opcode plus its operands, over the three part
// buffers (source, payload, scratch) named in spec: open loads a
// source object into the source buffer, copy/write/bsdiff append
// reconstructed bytes to the scratch buffer, set-mode records pending
// ownership/permission bits, and close flushes scratch as a finished
// object, checked against the declared checksum.
type Instruction struct {
	Op Op

	// open
	SourceChecksum string

	// copy
	SrcOffset int64
	Len       int64

	// write
	PayloadOffset int64

	// set-mode
	Mode uint32
	UID  uint32
	GID  uint32

	// close
	ObjectChecksum string
	ObjectKind     types.ObjectKind
	IsSymlink      bool // scratch bytes are a symlink target, not file content

	// bsdiff
	BsdiffSrcOffset int64
	BsdiffSrcLen    int64
}

// Part is one ordered instruction stream plus its own payload buffer.
// Parts are either embedded directly in the superblock ("inline") or
// stored as separate part-<k> files ("external"); Part itself is
// agnostic to which.
type Part struct {
	Instructions []Instruction
	Payload      []byte
}
