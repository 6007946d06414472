package sign

import (
	"bytes"
	"context"
	"testing"

	"golang.org/x/crypto/openpgp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntity(t *testing.T) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity("ostree test signer", "", "signer@example.com", nil)
	require.NoError(t, err)
	return entity
}

func detachedSign(t *testing.T, signer *openpgp.Entity, msg []byte) []byte {
	t.Helper()
	var sig bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sig, signer, bytes.NewReader(msg), nil))
	return sig.Bytes()
}

func TestGPGVerifier_AcceptsValidSignature(t *testing.T) {
	signer := newTestEntity(t)
	msg := []byte("commit bytes")
	sig := detachedSign(t, signer, msg)

	v := &GPGVerifier{keyring: openpgp.EntityList{signer}}
	assert.NoError(t, v.Verify(context.Background(), msg, sig))
}

func TestGPGVerifier_RejectsUnknownSigner(t *testing.T) {
	signer := newTestEntity(t)
	other := newTestEntity(t)
	msg := []byte("commit bytes")
	sig := detachedSign(t, signer, msg)

	v := &GPGVerifier{keyring: openpgp.EntityList{other}}
	assert.Error(t, v.Verify(context.Background(), msg, sig))
}

func TestGPGVerifier_RejectsTamperedMessage(t *testing.T) {
	signer := newTestEntity(t)
	msg := []byte("commit bytes")
	sig := detachedSign(t, signer, msg)

	v := &GPGVerifier{keyring: openpgp.EntityList{signer}}
	assert.Error(t, v.Verify(context.Background(), []byte("different bytes"), sig))
}

func TestGPGVerifier_RejectsEmptySignature(t *testing.T) {
	signer := newTestEntity(t)
	v := &GPGVerifier{keyring: openpgp.EntityList{signer}}
	assert.Error(t, v.Verify(context.Background(), []byte("commit bytes"), nil))
}

func TestGPGVerifier_Name(t *testing.T) {
	v := &GPGVerifier{}
	assert.Equal(t, "gpg", v.Name())
}
