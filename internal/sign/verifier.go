package sign

import (
	"context"

	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// MultiVerifier tries each configured verifier in turn, succeeding if
// any one accepts the signature. A remote with both gpg-verify and an
// ed25519 keyring configured accepts either kind of signature, per
// ostree's own coexistence of the two signing modules.
type MultiVerifier struct {
	verifiers []types.SignatureVerifier
}

// NewMultiVerifier composes one or more verifiers.
func NewMultiVerifier(verifiers ...types.SignatureVerifier) *MultiVerifier {
	return &MultiVerifier{verifiers: verifiers}
}

// Name lists the names of every composed verifier.
func (m *MultiVerifier) Name() string {
	if len(m.verifiers) == 0 {
		return "none"
	}
	name := m.verifiers[0].Name()
	for _, v := range m.verifiers[1:] {
		name += "+" + v.Name()
	}
	return name
}

// Verify succeeds if any composed verifier accepts signature; it
// returns the last verifier's error if none do, or NoSignature if no
// verifiers are configured at all.
func (m *MultiVerifier) Verify(ctx context.Context, commitBytes []byte, signature []byte) error {
	if len(m.verifiers) == 0 {
		return errors.NewError(errors.ErrCodeNoSignature, "no signature verifiers configured")
	}
	var lastErr error
	for _, v := range m.verifiers {
		if err := v.Verify(ctx, commitBytes, signature); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}
