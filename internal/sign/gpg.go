package sign

import (
	"bytes"
	"context"
	"os"

	"golang.org/x/crypto/openpgp"

	"github.com/ostreego/ostree/pkg/errors"
)

// GPGVerifier verifies detached OpenPGP signatures against a keyring
// loaded from a remote's configured gpg-home, matching the legacy
// `ostree remote gpg-import` workflow.
type GPGVerifier struct {
	keyring openpgp.EntityList
}

// LoadGPGVerifier reads an armored or binary keyring file (as written
// by `ostree remote gpg-import`) and returns a verifier over it.
func LoadGPGVerifier(keyringPath string) (*GPGVerifier, error) {
	f, err := os.Open(keyringPath)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "opening gpg keyring").WithCause(err).WithDetail("path", keyringPath)
	}
	defer f.Close()

	keyring, err := openpgp.ReadKeyRing(f)
	if err != nil {
		if _, rerr := f.Seek(0, 0); rerr == nil {
			keyring, err = openpgp.ReadArmoredKeyRing(f)
		}
	}
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeUnknownKey, "parsing gpg keyring").WithCause(err).WithDetail("path", keyringPath)
	}
	return &GPGVerifier{keyring: keyring}, nil
}

// Name identifies this verifier for error reporting and config.
func (v *GPGVerifier) Name() string { return "gpg" }

// Verify checks signature as a detached OpenPGP signature over
// commitBytes against the loaded keyring.
func (v *GPGVerifier) Verify(ctx context.Context, commitBytes []byte, signature []byte) error {
	if len(signature) == 0 {
		return errors.NewError(errors.ErrCodeNoSignature, "commit has no detached gpg signature")
	}
	signer, err := openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(commitBytes), bytes.NewReader(signature))
	if err != nil {
		return classifyGPGError(err)
	}
	if signer == nil {
		return errors.NewError(errors.ErrCodeUnknownKey, "signature verified against no known identity")
	}
	return nil
}

func classifyGPGError(err error) error {
	switch err {
	case openpgp.ErrUnknownIssuer:
		return errors.NewError(errors.ErrCodeUnknownKey, "commit signed by an unknown key").WithCause(err)
	default:
		return errors.NewError(errors.ErrCodeSignatureFailure, "gpg signature verification failed").WithCause(err)
	}
}
