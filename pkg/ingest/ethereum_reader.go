// Copyright 2025 Alephnode Protocol
//
// Ethereum ChainReader: polls a configured anchor contract for two log
// topics, one per sync-tx flavor (spec.md 4.12), and decodes each log
// into a SyncTx. Polling shape (ticker-driven caller, block-range
// capping, retry-with-attempts on FilterLogs) is carried over from the
// event-watcher polling loop this is generalized from.

package ingest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alephnode/ccn/pkg/database"
)

// messageBatchSignature is the event a sync contract emits for an
// off-chain batch pointer: a single bytes32 content hash resolvable
// through the Storage Service.
const messageBatchSignature = "MessageBatch(bytes32)"

// messageEventSignature is the event a sync contract emits for a
// single synthesized message: sender, timestamp, msgtype, msgcontent.
const messageEventSignature = "MessageEvent(address,uint64,string,bytes)"

var (
	topicMessageBatch = crypto.Keccak256Hash([]byte(messageBatchSignature))
	topicMessageEvent = crypto.Keccak256Hash([]byte(messageEventSignature))
)

// EthereumReader watches one contract address for sync-tx log events.
type EthereumReader struct {
	chain           string
	client          *ethclient.Client
	contractAddress common.Address

	maxBlockRange uint64
	retryAttempts int
	retryDelay    time.Duration

	eventArgs abi.Arguments
}

// EthereumReaderConfig configures one EthereumReader.
type EthereumReaderConfig struct {
	Chain           string
	RPCURL          string
	ContractAddress common.Address
	MaxBlockRange   uint64
	RetryAttempts   int
	RetryDelay      time.Duration
}

// NewEthereumReader dials rpcURL and returns a reader bound to one
// contract address.
func NewEthereumReader(cfg EthereumReaderConfig) (*EthereumReader, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ethereum reader %s: rpc url is required", cfg.Chain)
	}
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect to ethereum rpc for %s: %w", cfg.Chain, err)
	}

	addressTy, _ := abi.NewType("address", "", nil)
	uint64Ty, _ := abi.NewType("uint64", "", nil)
	stringTy, _ := abi.NewType("string", "", nil)
	bytesTy, _ := abi.NewType("bytes", "", nil)

	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 9 // matches the tightest common eth_getLogs provider cap
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	return &EthereumReader{
		chain:           cfg.Chain,
		client:          client,
		contractAddress: cfg.ContractAddress,
		maxBlockRange:   cfg.MaxBlockRange,
		retryAttempts:   cfg.RetryAttempts,
		retryDelay:      cfg.RetryDelay,
		eventArgs: abi.Arguments{
			{Type: addressTy},
			{Type: uint64Ty},
			{Type: stringTy},
			{Type: bytesTy},
		},
	}, nil
}

func (r *EthereumReader) Chain() string { return r.chain }

// Poll fetches logs for (fromHeight, currentHeight], capped to
// maxBlockRange per call, and returns the decoded transactions plus
// the height to resume from.
func (r *EthereumReader) Poll(ctx context.Context, fromHeight int64) ([]SyncTx, int64, error) {
	current, err := r.client.BlockNumber(ctx)
	if err != nil {
		return nil, fromHeight, fmt.Errorf("get current block: %w", err)
	}

	from := uint64(fromHeight) + 1
	if fromHeight < 0 {
		from = 0
	}
	if from > current {
		return nil, fromHeight, nil
	}

	to := current
	if to-from > r.maxBlockRange {
		to = from + r.maxBlockRange
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(int64(from)),
		ToBlock:   big.NewInt(int64(to)),
		Addresses: []common.Address{r.contractAddress},
		Topics:    [][]common.Hash{{topicMessageBatch, topicMessageEvent}},
	}

	var logs []types.Log
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		logs, err = r.client.FilterLogs(ctx, query)
		if err == nil {
			break
		}
		if attempt < r.retryAttempts-1 {
			time.Sleep(r.retryDelay)
		}
	}
	if err != nil {
		return nil, fromHeight, fmt.Errorf("filter logs after %d attempts: %w", r.retryAttempts, err)
	}

	txs := make([]SyncTx, 0, len(logs))
	for _, l := range logs {
		tx, err := r.decodeLog(l)
		if err != nil {
			continue
		}
		txs = append(txs, tx)
	}

	return txs, int64(to), nil
}

func (r *EthereumReader) decodeLog(l types.Log) (SyncTx, error) {
	if len(l.Topics) == 0 {
		return SyncTx{}, fmt.Errorf("log has no topics")
	}

	base := SyncTx{
		Hash:            l.TxHash.Hex(),
		Chain:           r.chain,
		Height:          int64(l.BlockNumber),
		Datetime:        time.Now(), // block timestamp requires a HeaderByNumber round trip; reception time is used instead
		Publisher:       r.contractAddress.Hex(),
		Protocol:        "ethereum",
		ProtocolVersion: 1,
	}

	switch l.Topics[0] {
	case topicMessageBatch:
		if len(l.Data) < 32 {
			return SyncTx{}, fmt.Errorf("short MessageBatch payload")
		}
		base.Kind = SyncKindBatchPointer
		base.PointerItemHash = common.BytesToHash(l.Data[:32]).Hex()[2:] // strip 0x, matches SHA-256 hex form
		base.PointerItemType = database.ItemTypeStorage
		return base, nil

	case topicMessageEvent:
		values, err := r.eventArgs.Unpack(l.Data)
		if err != nil {
			return SyncTx{}, fmt.Errorf("decode MessageEvent: %w", err)
		}
		sender, _ := values[0].(common.Address)
		ts, _ := values[1].(uint64)
		msgType, _ := values[2].(string)
		content, _ := values[3].([]byte)

		base.Kind = SyncKindContractEvent
		base.Event = &ContractEvent{
			Sender:   sender.Hex(),
			Time:     time.Unix(int64(ts), 0).UTC(),
			MsgType:  database.MessageType(strings.ToUpper(msgType)),
			ItemType: database.ItemTypeInline,
			Content:  content,
		}
		return base, nil

	default:
		return SyncTx{}, fmt.Errorf("unrecognized topic %s", l.Topics[0].Hex())
	}
}
