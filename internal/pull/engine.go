package pull

import (
	"context"

	"github.com/ostreego/ostree/internal/circuit"
	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/internal/refs"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
	"github.com/ostreego/ostree/pkg/utils"
)

// Puller drives the Resolving→Planning→Fetching⇄Verifying→Writing
// state machine for one or more refs against a single remote.
type Puller struct {
	Remote     Remote
	Source     Source
	RefStore   *refs.Store
	Tombstones *refs.Tombstones
	Verifier   types.SignatureVerifier

	Breakers *circuit.Manager
	Observer types.ProgressObserver
	Metrics  types.MetricsCollector

	// Logger, if set, receives a line when a ref's pull starts, when
	// resolving the ref fails, and when the pull completes.
	Logger *utils.StructuredLogger
}

// rootPather is implemented by on-disk object stores (internal/objectstore.Repo);
// Puller uses it, when present, to manage .commitpartial markers. Stores
// that don't implement it (fakes in tests, purely in-memory stores) simply
// skip marker bookkeeping — they have no "state/" directory to place one in.
type rootPather interface {
	Root() string
}

// Result reports what one ref's pull accomplished.
type Result struct {
	Ref            string
	CommitChecksum string
	CommitsFetched int
	BytesFetched   int64
	Skipped        bool // true if the target commit was tombstoned or already current
}

// Pull resolves refName against the remote, plans and fetches its
// closure (or static delta), verifies the result, and finally moves
// the local ref. On any failure the ref is left at its previous value
// and any partially-fetched commit's .commitpartial marker survives so
// a later pull can resume from it.
func (p *Puller) Pull(ctx context.Context, store types.ObjectStore, refName string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	p.notify(refName, types.PhaseResolving, 0, 0)
	if p.Logger != nil {
		p.Logger.Info("pull starting", map[string]interface{}{"ref": refName})
	}

	toChecksum, err := ResolveRef(ctx, p.Source, refName, opts)
	if err != nil {
		p.notify(refName, types.PhaseFailed, 0, 0)
		if p.Logger != nil {
			p.Logger.Error("pull failed to resolve ref", map[string]interface{}{"ref": refName, "error": err.Error()})
		}
		return nil, err
	}

	if p.Tombstones != nil && p.Tombstones.Has(toChecksum) {
		if _, overridden := opts.OverrideCommitIDs[refName]; !overridden {
			return &Result{Ref: refName, CommitChecksum: toChecksum, Skipped: true}, nil
		}
	}

	scope := p.refScope()
	localHead, _ := p.RefStore.Resolve(scope, refName)
	if localHead == toChecksum {
		return &Result{Ref: refName, CommitChecksum: toChecksum, Skipped: true}, nil
	}

	p.notify(refName, types.PhasePlanning, 0, 0)
	plan, err := BuildPlan(ctx, store, p.Source, toChecksum, opts)
	if err != nil {
		p.notify(refName, types.PhaseFailed, 0, 0)
		return nil, err
	}

	if opts.DryRun {
		var total int64
		for _, step := range plan.Steps {
			if step.Superblock != nil {
				for _, part := range step.Superblock.Parts {
					total += int64(part.Size)
				}
				for _, fb := range step.Superblock.Fallback {
					total += fb.Size
				}
			}
		}
		return &Result{Ref: refName, CommitChecksum: toChecksum, CommitsFetched: len(plan.Steps), BytesFetched: total}, nil
	}

	breaker := p.breakerFor()
	f := newFetcher(p.Source, store, opts, breaker, p.Observer, p.Metrics, refName)
	f.logger = p.Logger

	for _, step := range plan.Steps {
		if err := p.fetchStep(ctx, store, f, step, refName, opts); err != nil {
			p.notify(refName, types.PhaseFailed, 0, 0)
			return nil, err
		}
	}

	if err := p.checkTimestamp(ctx, store, localHead, toChecksum, opts); err != nil {
		p.notify(refName, types.PhaseFailed, 0, 0)
		return nil, err
	}

	p.notify(refName, types.PhaseWriting, 0, 0)
	if err := p.RefStore.Set(scope, refName, toChecksum); err != nil {
		return nil, err
	}

	p.notify(refName, types.PhaseDone, len(plan.Steps), 0)
	if p.Logger != nil {
		p.Logger.Info("pull complete", map[string]interface{}{
			"ref": refName, "commit": toChecksum, "commits_fetched": len(plan.Steps),
		})
	}
	return &Result{Ref: refName, CommitChecksum: toChecksum, CommitsFetched: len(plan.Steps)}, nil
}

// fetchStep brings one commit (and its tree, or its static delta)
// fully onto disk and verifies it before returning, per
// spec.md §4.5's pending-commit semantics: the commit is staged under
// a .commitpartial marker until its whole closure is confirmed and
// signatures/bindings verified.
func (p *Puller) fetchStep(ctx context.Context, store types.ObjectStore, f *fetcher, step CommitStep, refName string, opts Options) error {
	p.notify(refName, types.PhaseFetching, 0, 0)

	root, tracksPartial := store.(rootPather)
	if tracksPartial {
		if err := objectstore.MarkCommitPartial(root.Root(), step.Checksum); err != nil {
			return err
		}
	}

	if step.UseDelta {
		if err := f.fetchObject(ctx, types.KindCommit, step.Checksum); err != nil {
			return err
		}
		if err := f.fetchAndApplyDelta(ctx, step.Superblock); err != nil {
			return err
		}
	} else {
		if err := f.fetchObject(ctx, types.KindCommit, step.Checksum); err != nil {
			return err
		}
		commit, err := store.ReadCommit(ctx, step.Checksum)
		if err != nil {
			return err
		}
		if err := f.fetchClosure(ctx, objectstore.ChecksumString(commit.RootDirMeta), objectstore.ChecksumString(commit.RootTree), opts.Subdirs, opts.CommitOnly); err != nil {
			return err
		}
	}

	p.notify(refName, types.PhaseVerifying, 0, 0)
	if err := VerifyCommit(ctx, store, p.Verifier, p.Remote, refName, step.Checksum, opts); err != nil {
		return err
	}

	if tracksPartial {
		if err := objectstore.ClearCommitPartial(root.Root(), step.Checksum); err != nil {
			return err
		}
	}
	return nil
}

// checkTimestamp enforces spec's timestamp-check / timestamp-check-from-rev
// options: a pulled commit must not be older than the baseline commit
// at the same ref (or the explicitly named baseline revision).
func (p *Puller) checkTimestamp(ctx context.Context, store types.ObjectStore, localHead, toChecksum string, opts Options) error {
	if !opts.TimestampCheck {
		return nil
	}
	baseline := localHead
	if opts.TimestampCheckFromRev != "" {
		baseline = opts.TimestampCheckFromRev
	}
	if baseline == "" {
		return nil
	}
	baseCommit, err := store.ReadCommit(ctx, baseline)
	if err != nil {
		return err
	}
	newCommit, err := store.ReadCommit(ctx, toChecksum)
	if err != nil {
		return err
	}
	if newCommit.Timestamp.Before(baseCommit.Timestamp) {
		return errors.NewError(errors.ErrCodeBindingMismatch, "pulled commit is older than the local baseline and timestamp-check is set").
			WithDetail("baseline", baseline).WithDetail("new", toChecksum)
	}
	return nil
}

func (p *Puller) refScope() refs.Scope {
	if p.Remote.CollectionID != "" {
		return refs.Scope{CollectionID: p.Remote.CollectionID}
	}
	return refs.Scope{Remote: p.Remote.Name}
}

func (p *Puller) breakerFor() *circuit.CircuitBreaker {
	if p.Breakers == nil {
		p.Breakers = circuit.NewManager(circuit.Config{})
	}
	return p.Breakers.GetBreaker(p.Remote.Name)
}

func (p *Puller) notify(ref string, phase types.PullPhase, objects int, bytes int64) {
	if p.Observer == nil {
		return
	}
	p.Observer.OnProgress(types.PullProgress{Ref: ref, Phase: phase, ObjectsFetched: int64(objects), BytesTransferred: bytes})
}
