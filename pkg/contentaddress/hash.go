// Copyright 2025 Alephnode Protocol
//
// Content-Address Computer (spec.md 4.3 / I1-I2). Computes and verifies
// the canonical hash of a message's item_content under its declared
// item_type, and rejects any mismatch between declared hash, declared
// type, and hashing family.

package contentaddress

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/alephnode/ccn/pkg/database"
)

// ErrHashMismatch is returned when resolved bytes do not hash to the
// item's declared item_hash under its declared family.
var ErrHashMismatch = fmt.Errorf("resolved content does not match declared item_hash")

// ErrUnknownFamily is returned for an item_hash whose shape matches no
// known hashing family.
var ErrUnknownFamily = fmt.Errorf("item_hash does not match any known hashing family")

// SHA256Hex returns the canonical hex-encoded SHA-256 digest used for
// item_type == inline (spec.md I1) and for the "storage" family (I2).
func SHA256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// IsIPFSMultihash reports whether hash has the shape of a CIDv0/v1
// multihash rather than a raw hex SHA-256 digest. This is a shallow
// family check, not a full CID decode: the IPFS backend itself is the
// authority for resolving and verifying ipfs-family content.
func IsIPFSMultihash(hash string) bool {
	if strings.HasPrefix(hash, "Qm") && len(hash) == 46 {
		return true // CIDv0, base58btc sha2-256
	}
	if strings.HasPrefix(hash, "bafy") || strings.HasPrefix(hash, "bafk") {
		return true // CIDv1, base32
	}
	return false
}

// Verify checks that the resolved bytes for a message hash to itemHash
// under the hashing family implied by itemType, per I1/I2.
func Verify(itemType database.ItemType, itemHash string, resolved []byte) error {
	switch itemType {
	case database.ItemTypeInline, database.ItemTypeStorage:
		if SHA256Hex(resolved) != strings.ToLower(itemHash) {
			return ErrHashMismatch
		}
		return nil
	case database.ItemTypeIPFS:
		if !IsIPFSMultihash(itemHash) {
			return ErrUnknownFamily
		}
		// IPFS CID verification happens at the IPFS backend boundary
		// (outside this core, per spec.md §1's storage-backend scoping);
		// here we only assert the hash has the right shape to have come
		// from that backend.
		return nil
	default:
		return ErrUnknownFamily
	}
}
