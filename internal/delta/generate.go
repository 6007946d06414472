package delta

import (
	"context"
	"sort"
	"time"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/types"
	"github.com/ostreego/ostree/pkg/utils"
)

// GenerateOptions bounds how aggressively Generate diffs files,
// mirroring the thresholds spec names for delta generation.
type GenerateOptions struct {
	// MaxBsdiffSize caps the larger of a file pair's two sizes above
	// which a bsdiff is not attempted; the pair falls back instead.
	MaxBsdiffSize int64
	// MinFallbackSize bounds inlining of brand-new (no prior version)
	// files: one of at most this size is inlined as a literal write,
	// a larger one gets a fallback entry instead.
	MinFallbackSize int64
	BigEndian       bool

	// Logger, if set, receives one Info line summarizing how the
	// generated delta's files were classified (diffed/inlined/
	// fallback), useful for judging whether a delta is worth shipping.
	Logger *utils.StructuredLogger
}

func (o GenerateOptions) withDefaults() GenerateOptions {
	if o.MaxBsdiffSize == 0 {
		o.MaxBsdiffSize = 16 * 1024 * 1024
	}
	if o.MinFallbackSize == 0 {
		o.MinFallbackSize = 1024 * 1024
	}
	return o
}

// Generate produces a single-part static delta from fromCommit to
// toCommit. fromCommit may be empty, producing a from-empty delta.
// File pairs unchanged by checksum are skipped entirely: the receiver
// already holds that content-addressed object under any commit that
// shares it, so nothing needs to travel through the delta for it.
func Generate(ctx context.Context, store types.ObjectStore, fromCommit, toCommit string, opts GenerateOptions) (*Superblock, []*Part, error) {
	opts = opts.withDefaults()

	fromFiles, err := flattenCommit(ctx, store, fromCommit)
	if err != nil {
		return nil, nil, err
	}
	toFiles, err := flattenCommit(ctx, store, toCommit)
	if err != nil {
		return nil, nil, err
	}

	paths := make([]string, 0, len(toFiles))
	for path := range toFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	part := &Part{}
	var fallback []FallbackEntry
	var unchanged, diffed, inlined int

	for _, path := range paths {
		newObj := toFiles[path]
		oldObj, hadOld := fromFiles[path]

		if hadOld && fileChecksum(oldObj) == fileChecksum(newObj) {
			unchanged++
			continue
		}

		size := int64(newObj.Size)
		switch {
		case newObj.IsSymlink():
			appendWriteBytes(part, []byte(newObj.Target))
			appendSetModeClose(part, newObj, fileChecksum(newObj), true)
			inlined++

		case hadOld && !oldObj.IsSymlink() && max64(int64(oldObj.Size), size) <= opts.MaxBsdiffSize:
			appendBsdiffInstruction(part, oldObj, newObj, opts.BigEndian)
			appendSetModeClose(part, newObj, fileChecksum(newObj), false)
			diffed++

		case !hadOld && size <= opts.MinFallbackSize:
			appendWriteInstruction(part, newObj)
			appendSetModeClose(part, newObj, fileChecksum(newObj), false)
			inlined++

		default:
			fallback = append(fallback, FallbackEntry{
				Kind:     types.KindFile,
				Checksum: fileChecksum(newObj),
				Size:     size,
			})
		}
	}

	if opts.Logger != nil {
		opts.Logger.Info("delta generated", map[string]interface{}{
			"unchanged": unchanged, "diffed": diffed, "inlined": inlined, "fallback": len(fallback),
		})
	}

	encodedPart := EncodePart(part, opts.BigEndian)
	sb := &Superblock{
		FromChecksum: fromCommit,
		ToChecksum:   toCommit,
		Timestamp:    time.Now().UTC(),
		BigEndian:    opts.BigEndian,
		Fallback:     fallback,
		Parts: []PartRef{{
			Size:       uint64(len(encodedPart)),
			Checksum:   objectstore.ChecksumString(objectstore.ComputeChecksum(encodedPart)),
			Inline:     true,
			InlineData: encodedPart,
		}},
	}
	return sb, []*Part{part}, nil
}

func appendWriteInstruction(part *Part, obj *types.FileObject) {
	appendWriteBytes(part, obj.Content)
}

func appendWriteBytes(part *Part, content []byte) {
	offset := int64(len(part.Payload))
	part.Payload = append(part.Payload, content...)
	part.Instructions = append(part.Instructions, Instruction{
		Op: OpWrite, PayloadOffset: offset, Len: int64(len(content)),
	})
}

func appendBsdiffInstruction(part *Part, oldObj, newObj *types.FileObject, bigEndian bool) {
	control, diffStream, extraStream := GenerateBsdiff(oldObj.Content, newObj.Content)
	blob := EncodeBsdiffBlob(control, diffStream, extraStream, bigEndian)
	offset := int64(len(part.Payload))
	part.Payload = append(part.Payload, blob...)
	part.Instructions = append(part.Instructions,
		Instruction{Op: OpOpen, SourceChecksum: fileChecksum(oldObj)},
		Instruction{
			Op: OpBsdiff, PayloadOffset: offset, Len: int64(len(blob)),
			BsdiffSrcOffset: 0, BsdiffSrcLen: int64(len(oldObj.Content)),
		},
	)
}

func appendSetModeClose(part *Part, obj *types.FileObject, checksum string, isSymlink bool) {
	part.Instructions = append(part.Instructions,
		Instruction{Op: OpSetMode, Mode: obj.Mode, UID: obj.UID, GID: obj.GID},
		Instruction{Op: OpClose, ObjectChecksum: checksum, ObjectKind: types.KindFile, IsSymlink: isSymlink},
	)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
