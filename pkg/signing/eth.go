// Copyright 2025 Alephnode Protocol
//
// EVM signature verifier. Canonical form: the envelope's
// CanonicalForSigning() JSON bytes, hashed with the Ethereum personal-sign
// prefix ("\x19Ethereum Signed Message:\n<len>") and recovered with
// secp256k1 ECDSA public-key recovery. The recovered address must equal
// the declared sender, case-insensitively.

package signing

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const ethereumChainTag = "ethereum"

// EthereumVerifier verifies secp256k1 signatures over the personal-sign
// digest of a message's canonical form, as produced by go-ethereum
// compatible wallets.
type EthereumVerifier struct{}

// NewEthereumVerifier constructs an EthereumVerifier.
func NewEthereumVerifier() *EthereumVerifier { return &EthereumVerifier{} }

// ChainTag implements Verifier.
func (v *EthereumVerifier) ChainTag() string { return ethereumChainTag }

// Verify implements Verifier.
func (v *EthereumVerifier) Verify(sender string, payload []byte, signature string) (bool, error) {
	sigBytes, err := decodeSignature(signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	if len(sigBytes) != 65 {
		return false, fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}

	// go-ethereum expects V in {0,1}; wallets commonly produce {27,28}.
	recoverable := make([]byte, 65)
	copy(recoverable, sigBytes)
	if recoverable[64] >= 27 {
		recoverable[64] -= 27
	}

	digest := personalSignHash(payload)
	pubKey, err := crypto.SigToPub(digest, recoverable)
	if err != nil {
		return false, fmt.Errorf("recover public key: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	return strings.EqualFold(recovered.Hex(), common.HexToAddress(sender).Hex()), nil
}

func decodeSignature(signature string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(signature, "0x"))
}

func personalSignHash(payload []byte) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(payload), payload)
	return crypto.Keccak256([]byte(prefixed))
}
