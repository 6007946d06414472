package pull

import (
	"context"
	"time"

	"github.com/ostreego/ostree/pkg/types"
)

// Options bundles the per-pull flags spec.md names for the pull
// engine. Zero value is "no special behaviour" for every flag.
type Options struct {
	// Mirror is accepted but not read by Puller: the ref scope comes
	// from Remote.CollectionID (refs/mirrors) or Remote.Name
	// (refs/remotes) whatever this is set to.
	Mirror bool

	// CommitOnly downloads only commit objects, skipping their trees.
	CommitOnly bool

	// Subdirs restricts the fetched closure to these paths, when set.
	Subdirs []string

	// Depth bounds how many parents are walked; -1 is unbounded.
	Depth int

	// DisableStaticDeltas forces per-object fetching even when a
	// delta is advertised.
	DisableStaticDeltas bool

	// RequireStaticDeltas fails planning if no delta applies to a
	// commit in the chain.
	RequireStaticDeltas bool

	// DryRun reports size and object counts without writing anything.
	DryRun bool

	// TimestampCheck rejects a commit older than the one currently at
	// the local ref.
	TimestampCheck bool

	// TimestampCheckFromRev uses this commit as the baseline for
	// TimestampCheck instead of the current local ref.
	TimestampCheckFromRev string

	// OverrideCommitIDs pins specific commits per ref instead of
	// resolving them from the summary, keyed by ref name.
	OverrideCommitIDs map[string]string

	// LocalCacheRepos are tried (by hardlink/copy) before any network
	// fetch for a missing object.
	LocalCacheRepos []LocalCacheRepo

	// DisableVerifyBindings skips ref-binding and collection-binding
	// checks during Verify.
	DisableVerifyBindings bool

	// BareUserOnlyFiles is accepted but not read by Puller; fetched
	// file objects are written without suid, device-node or
	// world-writable checks.
	BareUserOnlyFiles bool

	// NNetworkRetries is the per-request retry budget. Zero selects
	// the spec default of 5.
	NNetworkRetries int

	// HTTPHeaders is accepted but not read by Puller; request headers
	// are those given to NewHTTPSource.
	HTTPHeaders map[string]string

	// PerObjectFsync is accepted but not read by Puller; objects are
	// written under the repository's configured fsync policy.
	PerObjectFsync string

	// RequestTimeout defaults to 30 seconds when zero but is not read
	// by Puller; the per-request timeout is the one given to
	// NewHTTPSource.
	RequestTimeout time.Duration

	// FetchConcurrency bounds in-flight fetches. Zero selects the
	// spec default of 4.
	FetchConcurrency int

	// Options carries no delta-generation settings; pulls consume
	// deltas as published and do not regenerate them.
}

func (o Options) withDefaults() Options {
	if o.Depth == 0 {
		o.Depth = -1
	}
	if o.NNetworkRetries == 0 {
		o.NNetworkRetries = 5
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.FetchConcurrency == 0 {
		o.FetchConcurrency = 4
	}
	return o
}

// LocalCacheRepo names an additional local object store consulted
// before the network for a missing object, paired with the name used
// in progress/metrics reporting.
type LocalCacheRepo struct {
	Name  string
	Store types.ObjectStore
}

// tryLocalCaches hardlinks/copies checksum from the first configured
// local cache repo that has it, reporting whether any did.
func tryLocalCaches(ctx context.Context, caches []LocalCacheRepo, dst types.ObjectStore, kind types.ObjectKind, checksum string) (bool, error) {
	for _, c := range caches {
		has, err := c.Store.HasObject(ctx, kind, checksum)
		if err != nil {
			return false, err
		}
		if !has {
			continue
		}
		if err := c.Store.CopyInto(ctx, dst, kind, checksum); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
