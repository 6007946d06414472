package pull

import (
	"context"

	"github.com/ostreego/ostree/internal/delta"
	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// CommitStep is one commit the planner decided needs to land locally,
// paired with how it will be fetched.
type CommitStep struct {
	Checksum  string
	Parent    string // "" if this step is a from-empty delta/closure
	UseDelta  bool
	Superblock *delta.Superblock // set only when UseDelta
}

// Plan is the ordered (oldest-first) sequence of commits the fetch
// phase must bring over to complete a pull to toChecksum.
type Plan struct {
	Steps []CommitStep
}

// BuildPlan walks the parent chain backward from toChecksum (spec.md
// §4.5 step 2), stopping at a commit already present locally, at an
// empty parent, or once opts.Depth parents of toChecksum have been
// examined. For
// each needed step it probes the remote for a static delta and
// prefers it over a per-object closure whenever one is advertised and
// static deltas are not disabled; ties (an advertised delta of
// unknown relative size) favour the delta, since computing an
// equivalent-size estimate would require walking the very closure the
// delta exists to avoid fetching.
func BuildPlan(ctx context.Context, store types.ObjectStore, src Source, toChecksum string, opts Options) (*Plan, error) {
	if _, err := objectstore.ParseChecksum(toChecksum); err != nil {
		return nil, err
	}

	type chainLink struct {
		checksum string
		parent   string
	}
	var chain []chainLink

	current := toChecksum
	for depth := 0; opts.Depth < 0 || depth <= opts.Depth; depth++ {
		has, err := store.HasObject(ctx, types.KindCommit, current)
		if err != nil {
			return nil, err
		}
		if has {
			break
		}
		commitBytes, err := src.Get(ctx, objectRelPath(current, types.KindCommit.Extension(false)))
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeNetworkError, "fetching commit object during planning").WithCause(err).WithDetail("checksum", current)
		}
		commit, err := objectstore.DecodeCommit(commitBytes)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeCorruptObject, "decoding commit object during planning").WithCause(err).WithDetail("checksum", current)
		}

		parent := ""
		if commit.Parent != nil {
			parent = objectstore.ChecksumString(*commit.Parent)
		}
		chain = append(chain, chainLink{checksum: current, parent: parent})
		if parent == "" {
			break
		}
		current = parent
	}

	plan := &Plan{}
	for i := len(chain) - 1; i >= 0; i-- {
		link := chain[i]
		step := CommitStep{Checksum: link.checksum, Parent: link.parent}

		if !opts.DisableStaticDeltas {
			sb, err := probeDelta(ctx, src, link.parent, link.checksum)
			if err != nil {
				return nil, err
			}
			if sb != nil {
				step.UseDelta = true
				step.Superblock = sb
			}
		}
		if opts.RequireStaticDeltas && !step.UseDelta {
			return nil, errors.NewError(errors.ErrCodeDeltaError, "no static delta available for commit and require-static-deltas is set").
				WithDetail("checksum", link.checksum)
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}

// probeDelta fetches and decodes the superblock advertised for
// fromChecksum→toChecksum, returning nil (not an error) if the remote
// doesn't publish one.
func probeDelta(ctx context.Context, src Source, fromChecksum, toChecksum string) (*delta.Superblock, error) {
	raw, err := src.Get(ctx, deltaRelPath(fromChecksum, toChecksum))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	sb, err := delta.DecodeSuperblock(raw)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "decoding advertised delta superblock").WithCause(err)
	}
	return sb, nil
}

func isNotFound(err error) bool {
	oerr, ok := err.(*errors.OSTreeError)
	return ok && oerr.Code == errors.ErrCodeObjectNotFound
}
