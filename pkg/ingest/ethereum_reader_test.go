package ingest

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alephnode/ccn/pkg/database"
)

func newTestEthereumReader() *EthereumReader {
	addressTy, _ := abi.NewType("address", "", nil)
	uint64Ty, _ := abi.NewType("uint64", "", nil)
	stringTy, _ := abi.NewType("string", "", nil)
	bytesTy, _ := abi.NewType("bytes", "", nil)

	return &EthereumReader{
		chain:           "ethereum",
		contractAddress: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		maxBlockRange:   9,
		retryAttempts:   1,
		eventArgs: abi.Arguments{
			{Type: addressTy},
			{Type: uint64Ty},
			{Type: stringTy},
			{Type: bytesTy},
		},
	}
}

func TestDecodeLogMessageBatch(t *testing.T) {
	r := newTestEthereumReader()
	hash := common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000a")

	l := types.Log{
		Topics:      []common.Hash{topicMessageBatch},
		Data:        hash.Bytes(),
		TxHash:      common.HexToHash("0xdeadbeef"),
		BlockNumber: 42,
	}

	tx, err := r.decodeLog(l)
	if err != nil {
		t.Fatalf("decodeLog: %v", err)
	}
	if tx.Kind != SyncKindBatchPointer {
		t.Fatalf("expected batch pointer kind, got %s", tx.Kind)
	}
	if tx.PointerItemType != database.ItemTypeStorage {
		t.Fatalf("expected storage item type, got %s", tx.PointerItemType)
	}
	if tx.Height != 42 {
		t.Fatalf("expected height 42, got %d", tx.Height)
	}
}

func TestDecodeLogMessageEvent(t *testing.T) {
	r := newTestEthereumReader()
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")

	data, err := r.eventArgs.Pack(sender, uint64(1700000000), "AGGREGATE", []byte(`{"key":"profile"}`))
	if err != nil {
		t.Fatalf("pack event args: %v", err)
	}

	l := types.Log{
		Topics:      []common.Hash{topicMessageEvent},
		Data:        data,
		TxHash:      common.HexToHash("0xfeedface"),
		BlockNumber: 7,
	}

	tx, err := r.decodeLog(l)
	if err != nil {
		t.Fatalf("decodeLog: %v", err)
	}
	if tx.Kind != SyncKindContractEvent {
		t.Fatalf("expected contract event kind, got %s", tx.Kind)
	}
	if tx.Event == nil {
		t.Fatal("expected non-nil event payload")
	}
	if tx.Event.MsgType != database.MessageTypeAggregate {
		t.Fatalf("expected AGGREGATE, got %s", tx.Event.MsgType)
	}
	if tx.Event.Sender != sender.Hex() {
		t.Fatalf("expected sender %s, got %s", sender.Hex(), tx.Event.Sender)
	}
}

func TestDecodeLogUnknownTopicIsRejected(t *testing.T) {
	r := newTestEthereumReader()
	l := types.Log{
		Topics: []common.Hash{common.HexToHash("0x0")},
		Data:   []byte{0x01},
	}
	if _, err := r.decodeLog(l); err == nil {
		t.Fatal("expected error for unrecognized topic")
	}
}
