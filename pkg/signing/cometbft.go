// Copyright 2025 Alephnode Protocol
//
// CometBFT-style verifier for Cosmos SDK chains. Canonical form: the raw
// CanonicalForSigning() JSON bytes, signed directly with ed25519 (no
// additional hashing or prefixing — ed25519 signs the message itself).
// sender is the hex-encoded ed25519 public key; CometBFT chains resolve
// bech32 account addresses to this public key upstream of the core.

package signing

import (
	"encoding/hex"
	"fmt"

	cometed25519 "github.com/cometbft/cometbft/crypto/ed25519"
)

const cometBFTChainTag = "cosmos"

// CometBFTVerifier verifies ed25519 signatures for Cosmos-style chains.
type CometBFTVerifier struct{}

// NewCometBFTVerifier constructs a CometBFTVerifier.
func NewCometBFTVerifier() *CometBFTVerifier { return &CometBFTVerifier{} }

// ChainTag implements Verifier.
func (v *CometBFTVerifier) ChainTag() string { return cometBFTChainTag }

// Verify implements Verifier.
func (v *CometBFTVerifier) Verify(sender string, payload []byte, signature string) (bool, error) {
	pubKeyBytes, err := hex.DecodeString(sender)
	if err != nil {
		return false, fmt.Errorf("decode sender public key: %w", err)
	}
	if len(pubKeyBytes) != cometed25519.PubKeySize {
		return false, fmt.Errorf("public key must be %d bytes, got %d", cometed25519.PubKeySize, len(pubKeyBytes))
	}

	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}

	pubKey := cometed25519.PubKey(pubKeyBytes)
	return pubKey.VerifySignature(payload, sigBytes), nil
}
