// Copyright 2025 Alephnode Protocol
//
// Chain Event Ingestor (spec.md 4.12): ChainReader abstracts the two
// pluggable chain backends (Ethereum, Accumulate) behind a single
// polling contract so the ingestor's dedup/enqueue logic is chain-
// agnostic.

package ingest

import (
	"context"
	"time"

	"github.com/alephnode/ccn/pkg/database"
)

// SyncKind distinguishes the two chain-transaction flavors spec.md 4.12
// recognizes.
type SyncKind string

const (
	SyncKindBatchPointer  SyncKind = "batch_pointer"
	SyncKindContractEvent SyncKind = "contract_event"
)

// ContractEvent is the structured payload carried by a smart-contract
// event transaction: sender, timestamp, msgtype, msgcontent.
type ContractEvent struct {
	Sender   string
	Time     time.Time
	MsgType  database.MessageType
	ItemType database.ItemType
	Content  []byte
}

// SyncTx is one chain transaction observed by a reader, normalized to
// either a batch-pointer or a synthesized contract event.
type SyncTx struct {
	Hash            string
	Chain           string
	Height          int64
	Datetime        time.Time
	Publisher       string
	Protocol        string
	ProtocolVersion int

	Kind SyncKind

	// Set when Kind == SyncKindBatchPointer.
	PointerItemHash string
	PointerItemType database.ItemType

	// Set when Kind == SyncKindContractEvent.
	Event *ContractEvent
}

// ChainReader polls one chain for new sync transactions since
// fromHeight, returning the transactions found and the height to
// resume from on the next call.
type ChainReader interface {
	Chain() string
	Poll(ctx context.Context, fromHeight int64) (txs []SyncTx, nextHeight int64, err error)
}
