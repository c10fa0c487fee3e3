// Copyright 2025 Alephnode Protocol
//
// Envelope is the in-memory, not-yet-committed representation of a
// message, parsed from gossip, API submission, or a chain event before
// it reaches the fetcher and commit coordinator.

package message

import (
	"encoding/json"
	"time"

	"github.com/alephnode/ccn/pkg/database"
)

// Envelope mirrors spec.md 3.1/3.3: the fields common to every message
// regardless of where it was received from.
type Envelope struct {
	ItemHash    string
	Sender      string
	Chain       string
	Type        database.MessageType
	ItemType    database.ItemType
	ItemContent []byte
	Signature   string
	HasSignature bool
	Time        time.Time
	Channel     string

	CheckMessage bool
	Origin       database.Origin
	TxHash       string
}

// CanonicalForSigning returns the byte sequence a signature verifier
// hashes, independent of chain-specific prefixing. Chain verifiers apply
// their own encoding rules on top of this form.
func (e *Envelope) CanonicalForSigning() ([]byte, error) {
	canonical := struct {
		Sender   string `json:"sender"`
		Chain    string `json:"chain"`
		Type     string `json:"type"`
		ItemType string `json:"item_type"`
		ItemHash string `json:"item_hash"`
		Time     int64  `json:"time"`
	}{
		Sender:   e.Sender,
		Chain:    e.Chain,
		Type:     string(e.Type),
		ItemType: string(e.ItemType),
		ItemHash: e.ItemHash,
		Time:     e.Time.Unix(),
	}
	return json.Marshal(canonical)
}
