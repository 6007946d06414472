package sign

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"

	"github.com/ostreego/ostree/pkg/errors"
)

// Ed25519Verifier verifies detached ed25519 signatures against a
// fixed set of trusted public keys, matching ostree's newer
// sign-ed25519 module. Unlike GPG there is no key expiry/revocation
// state to track here; a key is either in the trusted set or it is
// unknown.
type Ed25519Verifier struct {
	keys []ed25519.PublicKey
}

// NewEd25519Verifier returns a verifier trusting exactly the given
// raw 32-byte public keys.
func NewEd25519Verifier(keys ...ed25519.PublicKey) *Ed25519Verifier {
	return &Ed25519Verifier{keys: keys}
}

// ParseEd25519PublicKeys decodes a list of base64-encoded 32-byte
// ed25519 public keys as they appear in a remote's configuration
// (sign-ed25519.public-keys entries).
func ParseEd25519PublicKeys(encoded []string) ([]ed25519.PublicKey, error) {
	keys := make([]ed25519.PublicKey, 0, len(encoded))
	for _, e := range encoded {
		raw, err := base64.StdEncoding.DecodeString(e)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeInvalidConfig, "decoding ed25519 public key").WithCause(err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, errors.NewError(errors.ErrCodeInvalidConfig, "ed25519 public key has wrong length").
				WithDetail("length", len(raw))
		}
		keys = append(keys, ed25519.PublicKey(raw))
	}
	return keys, nil
}

// Name identifies this verifier for error reporting and config.
func (v *Ed25519Verifier) Name() string { return "ed25519" }

// Verify checks signature against every trusted key until one
// matches.
func (v *Ed25519Verifier) Verify(ctx context.Context, commitBytes []byte, signature []byte) error {
	if len(signature) == 0 {
		return errors.NewError(errors.ErrCodeNoSignature, "commit has no detached ed25519 signature")
	}
	for _, key := range v.keys {
		if ed25519.Verify(key, commitBytes, signature) {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeUnknownKey, "ed25519 signature does not match any trusted key")
}
