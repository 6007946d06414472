package delta

import (
	"context"
	"io"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
	"github.com/ostreego/ostree/pkg/utils"
)

// FallbackFetcher retrieves an object named in a superblock's fallback
// list by its normal object URL; the pull engine supplies this.
type FallbackFetcher func(ctx context.Context, kind types.ObjectKind, checksum string) error

// Apply replays every part of a static delta against store, which
// must already hold the objects reachable from sb.FromChecksum.
// Fallback objects are retrieved through fetchFallback rather than
// reconstructed from a diff. logger may be nil; it receives one Info
// line on success and a Warn for every fallback object retrieved,
// since a delta falling back heavily defeats the point of sending one.
func Apply(ctx context.Context, store types.ObjectStore, sb *Superblock, parts []*Part, fetchFallback FallbackFetcher, logger *utils.StructuredLogger) error {
	for _, p := range parts {
		if err := applyPart(ctx, store, sb.BigEndian, p); err != nil {
			return err
		}
	}
	for _, f := range sb.Fallback {
		if fetchFallback == nil {
			return errors.NewError(errors.ErrCodeDeltaError, "delta has fallback entries but no fetcher was provided").
				WithDetail("checksum", f.Checksum)
		}
		if err := fetchFallback(ctx, f.Kind, f.Checksum); err != nil {
			return errors.NewError(errors.ErrCodeDeltaError, "fetching fallback object").WithCause(err).WithDetail("checksum", f.Checksum)
		}
		if logger != nil {
			logger.Warn("delta fallback object fetched outside the diff", map[string]interface{}{
				"checksum": f.Checksum, "kind": string(f.Kind),
			})
		}
	}
	if logger != nil {
		logger.Info("delta applied", map[string]interface{}{
			"parts": len(parts), "fallbacks": len(sb.Fallback),
		})
	}
	return nil
}

// applyPart runs one part's instruction stream over the three-buffer
// reconstruction machine: source (loaded by open), payload (the
// part's own byte buffer, addressed by write/bsdiff), and scratch (the
// bytes accumulated so far for the object under construction).
func applyPart(ctx context.Context, store types.ObjectStore, bigEndian bool, part *Part) error {
	var source []byte
	var scratch []byte
	var mode, uid, gid uint32
	haveMode := false

	for _, inst := range part.Instructions {
		switch inst.Op {
		case OpOpen:
			rc, err := store.OpenObject(ctx, types.KindFile, inst.SourceChecksum)
			if err != nil {
				return errors.NewError(errors.ErrCodeDeltaError, "opening delta source object").WithCause(err).WithDetail("checksum", inst.SourceChecksum)
			}
			raw, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return errors.NewError(errors.ErrCodeDeltaError, "reading delta source object").WithCause(err)
			}
			obj, err := objectstore.DecodeFileObject(raw)
			if err != nil {
				return errors.NewError(errors.ErrCodeDeltaError, "decoding delta source object").WithCause(err)
			}
			source = obj.Content

		case OpCopy:
			if inst.SrcOffset < 0 || inst.SrcOffset+inst.Len > int64(len(source)) {
				return errors.NewError(errors.ErrCodeDeltaError, "copy instruction out of range")
			}
			scratch = append(scratch, source[inst.SrcOffset:inst.SrcOffset+inst.Len]...)

		case OpWrite:
			if inst.PayloadOffset < 0 || inst.PayloadOffset+inst.Len > int64(len(part.Payload)) {
				return errors.NewError(errors.ErrCodeDeltaError, "write instruction out of range")
			}
			scratch = append(scratch, part.Payload[inst.PayloadOffset:inst.PayloadOffset+inst.Len]...)

		case OpBsdiff:
			if inst.PayloadOffset < 0 || inst.PayloadOffset+inst.Len > int64(len(part.Payload)) {
				return errors.NewError(errors.ErrCodeDeltaError, "bsdiff instruction payload out of range")
			}
			if inst.BsdiffSrcOffset < 0 || inst.BsdiffSrcOffset+inst.BsdiffSrcLen > int64(len(source)) {
				return errors.NewError(errors.ErrCodeDeltaError, "bsdiff instruction source out of range")
			}
			blob := part.Payload[inst.PayloadOffset : inst.PayloadOffset+inst.Len]
			control, diffStream, extraStream, err := DecodeBsdiffBlob(blob, bigEndian)
			if err != nil {
				return err
			}
			old := source[inst.BsdiffSrcOffset : inst.BsdiffSrcOffset+inst.BsdiffSrcLen]
			scratch = append(scratch, ApplyBsdiff(old, control, diffStream, extraStream)...)

		case OpSetMode:
			mode, uid, gid = inst.Mode, inst.UID, inst.GID
			haveMode = true

		case OpClose:
			if !haveMode {
				return errors.NewError(errors.ErrCodeDeltaError, "close instruction with no preceding set-mode")
			}
			obj := &types.FileObject{UID: uid, GID: gid, Mode: mode}
			if inst.IsSymlink {
				obj.Target = string(scratch)
			} else {
				obj.Content = scratch
				obj.Size = uint64(len(scratch))
			}
			checksum, err := store.WriteFileObject(ctx, obj)
			if err != nil {
				return errors.NewError(errors.ErrCodeDeltaError, "writing reconstructed file object").WithCause(err)
			}
			if checksum != inst.ObjectChecksum {
				return errors.NewError(errors.ErrCodeCorruptObject, "reconstructed object checksum mismatch").
					WithDetail("expected", inst.ObjectChecksum).WithDetail("got", checksum)
			}
			scratch = nil
			haveMode = false

		default:
			return errors.NewError(errors.ErrCodeDeltaError, "unknown delta opcode")
		}
	}
	return nil
}
