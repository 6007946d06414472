package sign

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEd25519Verifier_AcceptsValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	msg := []byte("commit bytes")
	sig := ed25519.Sign(priv, msg)

	v := NewEd25519Verifier(pub)
	assert.NoError(t, v.Verify(context.Background(), msg, sig))
}

func TestEd25519Verifier_RejectsUnknownKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	msg := []byte("commit bytes")
	sig := ed25519.Sign(priv, msg)

	v := NewEd25519Verifier(otherPub)
	assert.Error(t, v.Verify(context.Background(), msg, sig))
}

func TestEd25519Verifier_RejectsEmptySignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v := NewEd25519Verifier(pub)
	assert.Error(t, v.Verify(context.Background(), []byte("x"), nil))
}

func TestParseEd25519PublicKeys(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(pub)

	keys, err := ParseEd25519PublicKeys([]string{encoded})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, pub, keys[0])
}

func TestParseEd25519PublicKeys_RejectsWrongLength(t *testing.T) {
	_, err := ParseEd25519PublicKeys([]string{base64.StdEncoding.EncodeToString([]byte("too-short"))})
	assert.Error(t, err)
}

func TestMultiVerifier_SucceedsIfAnyVerifierAccepts(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	msg := []byte("commit bytes")
	sig := ed25519.Sign(priv, msg)

	m := NewMultiVerifier(NewEd25519Verifier(otherPub), NewEd25519Verifier(pub))
	assert.NoError(t, m.Verify(context.Background(), msg, sig))
}

func TestMultiVerifier_NoVerifiersConfigured(t *testing.T) {
	m := NewMultiVerifier()
	assert.Error(t, m.Verify(context.Background(), []byte("x"), []byte("y")))
}
