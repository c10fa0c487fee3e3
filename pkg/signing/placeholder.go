// Copyright 2025 Alephnode Protocol
//
// Placeholder verifiers for chains referenced by the wider pyaleph
// ecosystem (Tezos, Nuls2) whose canonical signing form is chain-specific
// wallet tooling this core does not embed. They register under their
// chain tag so routing and error classification behave identically to a
// supported chain; Verify always fails closed, which the worker pool
// turns into a terminal InvalidSignature rejection rather than a silent
// accept.
//
// TODO(signing): wire a real Tezos verifier (p256/ed25519, tz1/tz2/tz3
// prefix dispatch) once a maintained Go implementation is selected.

package signing

import "fmt"

const (
	tezosChainTag = "tezos"
	nulsChainTag  = "nuls2"
)

// TezosPlaceholderVerifier documents the chain tag without implementing
// Tezos's tz1/tz2/tz3 key-prefix signature scheme.
type TezosPlaceholderVerifier struct{}

// NewTezosPlaceholderVerifier constructs a TezosPlaceholderVerifier.
func NewTezosPlaceholderVerifier() *TezosPlaceholderVerifier { return &TezosPlaceholderVerifier{} }

// ChainTag implements Verifier.
func (v *TezosPlaceholderVerifier) ChainTag() string { return tezosChainTag }

// Verify implements Verifier. Always fails closed.
func (v *TezosPlaceholderVerifier) Verify(sender string, payload []byte, signature string) (bool, error) {
	return false, fmt.Errorf("tezos signature verification is not implemented")
}

// NulsPlaceholderVerifier documents the chain tag without implementing
// Nuls2's secp256k1-with-custom-address-derivation scheme.
type NulsPlaceholderVerifier struct{}

// NewNulsPlaceholderVerifier constructs a NulsPlaceholderVerifier.
func NewNulsPlaceholderVerifier() *NulsPlaceholderVerifier { return &NulsPlaceholderVerifier{} }

// ChainTag implements Verifier.
func (v *NulsPlaceholderVerifier) ChainTag() string { return nulsChainTag }

// Verify implements Verifier. Always fails closed.
func (v *NulsPlaceholderVerifier) Verify(sender string, payload []byte, signature string) (bool, error) {
	return false, fmt.Errorf("nuls2 signature verification is not implemented")
}
