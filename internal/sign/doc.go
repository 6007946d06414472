// Package sign implements the pluggable signature verifier the pull
// engine's Verify phase consults before a fetched commit's ref is
// moved. Two verifiers are provided: legacy OpenPGP detached
// signatures (golang.org/x/crypto/openpgp, keyed off a remote's
// imported keyring) and ed25519 detached signatures (crypto/ed25519,
// keyed off a remote's configured public keys). Neither verifier
// implements its own cryptographic primitives; both are thin adapters
// over types.SignatureVerifier.
package sign
