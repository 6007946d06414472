package pull

import (
	"context"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// VerifyCommit checks, per spec.md §4.5 step 5, a newly-staged
// commit's detached signature (if the remote requires GPG/ed25519
// verification) and its ref-binding/collection-binding metadata. The
// commit must already be written to store under "pending" semantics:
// the caller moves the ref only after VerifyCommit succeeds.
func VerifyCommit(ctx context.Context, store types.ObjectStore, verifier types.SignatureVerifier, remote Remote, refName, checksum string, opts Options) error {
	commit, err := store.ReadCommit(ctx, checksum)
	if err != nil {
		return err
	}

	if remote.GPGVerify && verifier != nil {
		if err := verifySignature(ctx, store, verifier, checksum, commit); err != nil {
			return err
		}
	}

	if !opts.DisableVerifyBindings {
		if err := verifyRefBinding(commit, refName); err != nil {
			return err
		}
		if err := verifyCollectionBinding(commit, remote.CollectionID); err != nil {
			return err
		}
	}
	return nil
}

// verifySignature recomputes the checksummed commit body (the bytes
// EncodeCommit produces, identical to what was signed) and checks it
// against every attached detached signature. At least one signature
// must verify; commits with none fail NoSignature so a misconfigured
// remote can't silently skip verification.
func verifySignature(ctx context.Context, store types.ObjectStore, verifier types.SignatureVerifier, checksum string, commit *types.Commit) error {
	if len(commit.Signatures) == 0 {
		return errors.NewError(errors.ErrCodeNoSignature, "commit carries no detached signature but gpg-verify is set").
			WithDetail("checksum", checksum)
	}
	body, err := objectstore.EncodeCommit(commit)
	if err != nil {
		return errors.NewError(errors.ErrCodeSignatureFailure, "re-encoding commit for signature verification").WithCause(err)
	}

	var lastErr error
	for _, sig := range commit.Signatures {
		if err := verifier.Verify(ctx, body, sig); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return errors.NewError(errors.ErrCodeSignatureFailure, "no attached signature verified").
		WithCause(lastErr).WithDetail("checksum", checksum)
}

// verifyRefBinding enforces spec.md §4.5 step 5: a commit declaring
// ostree.ref-binding metadata must list the ref it's being written to.
func verifyRefBinding(commit *types.Commit, refName string) error {
	if commit.Binding == nil || len(commit.Binding.Refs) == 0 {
		return nil
	}
	for _, r := range commit.Binding.Refs {
		if r == refName {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeBindingMismatch, "commit's ref-binding does not include the ref being written").
		WithDetail("ref", refName).WithDetail("bound_refs", commit.Binding.Refs)
}

// verifyCollectionBinding enforces the collection-binding check: a
// commit declaring a collection id must match the remote's configured
// collection id, when the remote has one.
func verifyCollectionBinding(commit *types.Commit, remoteCollectionID string) error {
	if commit.Binding == nil || commit.Binding.CollectionID == "" || remoteCollectionID == "" {
		return nil
	}
	if commit.Binding.CollectionID != remoteCollectionID {
		return errors.NewError(errors.ErrCodeBindingMismatch, "commit's collection-binding does not match the remote's collection id").
			WithDetail("expected", remoteCollectionID).WithDetail("observed", commit.Binding.CollectionID)
	}
	return nil
}
