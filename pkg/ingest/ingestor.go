// Copyright 2025 Alephnode Protocol
//
// Ingestor (spec.md 4.12): turns per-chain sync transactions into
// durable pending-message rows. Idempotency runs through
// chain_transactions.hash — a known hash is skipped entirely, so
// re-ingestion of a tx already on record is a no-op even across
// process restarts.

package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/alephnode/ccn/pkg/contentaddress"
	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/metrics"
	"github.com/alephnode/ccn/pkg/storage"
)

// batchEnvelope is one entry of an off-chain batch pointer's resolved
// JSON array (spec.md 4.12).
type batchEnvelope struct {
	ItemHash    string               `json:"item_hash"`
	Sender      string               `json:"sender"`
	Chain       string               `json:"chain"`
	Type        database.MessageType `json:"type"`
	ItemType    database.ItemType    `json:"item_type"`
	ItemContent json.RawMessage      `json:"item_content,omitempty"`
	Signature   string               `json:"signature,omitempty"`
	Time        int64                `json:"time"`
	Channel     string               `json:"channel,omitempty"`
}

// Ingestor polls a set of ChainReaders and converts what they find into
// pending-message rows and confirmations.
type Ingestor struct {
	readers []ChainReader
	chainTx *database.ChainTxRepository
	pending *database.PendingRepository
	storage *storage.Service
	logger  *log.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	heights map[string]int64
}

// WithMetrics attaches a metrics registry the ingestor reports
// per-chain ingestion counts to. Optional.
func (ig *Ingestor) WithMetrics(m *metrics.Registry) *Ingestor {
	ig.metrics = m
	return ig
}

// New constructs an Ingestor over readers, one per configured chain.
func New(readers []ChainReader, chainTx *database.ChainTxRepository, pending *database.PendingRepository, storageSvc *storage.Service, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = log.New(log.Writer(), "[Ingest] ", log.LstdFlags)
	}
	return &Ingestor{
		readers: readers,
		chainTx: chainTx,
		pending: pending,
		storage: storageSvc,
		logger:  logger,
		heights: make(map[string]int64),
	}
}

// Run polls every reader on interval until ctx is cancelled.
func (ig *Ingestor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ig.PollOnce(ctx)
		}
	}
}

// PollOnce polls every reader a single time, logging per-reader errors
// rather than aborting the whole pass.
func (ig *Ingestor) PollOnce(ctx context.Context) {
	for _, r := range ig.readers {
		if err := ig.pollReader(ctx, r); err != nil {
			ig.logger.Printf("poll %s: %v", r.Chain(), err)
		}
	}
}

func (ig *Ingestor) pollReader(ctx context.Context, r ChainReader) error {
	ig.mu.Lock()
	from := ig.heights[r.Chain()]
	ig.mu.Unlock()

	txs, next, err := r.Poll(ctx, from)
	if err != nil {
		return fmt.Errorf("poll %s from height %d: %w", r.Chain(), from, err)
	}

	for _, tx := range txs {
		if err := ig.ingestTx(ctx, tx); err != nil {
			ig.logger.Printf("ingest tx %s on %s: %v", tx.Hash, r.Chain(), err)
		}
	}

	ig.mu.Lock()
	ig.heights[r.Chain()] = next
	ig.mu.Unlock()
	return nil
}

// ingestTx records tx (a no-op if already known) and fans out to the
// flavor-specific enqueue path.
func (ig *Ingestor) ingestTx(ctx context.Context, tx SyncTx) error {
	if _, err := ig.chainTx.Get(ctx, tx.Hash); err == nil {
		return nil // already ingested
	} else if err != database.ErrNotFound {
		return fmt.Errorf("check existing chain transaction %s: %w", tx.Hash, err)
	}

	var content json.RawMessage
	switch tx.Kind {
	case SyncKindBatchPointer:
		content, _ = json.Marshal(map[string]string{"pointer": tx.PointerItemHash})
	case SyncKindContractEvent:
		if tx.Event != nil {
			content, _ = json.Marshal(tx.Event)
		}
	}

	if err := ig.chainTx.Create(ctx, &database.ChainTransaction{
		Hash:            tx.Hash,
		Chain:           tx.Chain,
		Height:          tx.Height,
		Datetime:        tx.Datetime,
		Publisher:       tx.Publisher,
		Protocol:        tx.Protocol,
		ProtocolVersion: tx.ProtocolVersion,
		Content:         content,
		CreatedAt:       time.Now(),
	}); err != nil {
		return fmt.Errorf("record chain transaction %s: %w", tx.Hash, err)
	}

	if ig.metrics != nil {
		ig.metrics.IngestedTotal.WithLabelValues(tx.Chain).Inc()
	}

	switch tx.Kind {
	case SyncKindBatchPointer:
		return ig.ingestBatchPointer(ctx, tx)
	case SyncKindContractEvent:
		return ig.ingestContractEvent(ctx, tx)
	default:
		return fmt.Errorf("unknown sync tx kind %q", tx.Kind)
	}
}

// ingestBatchPointer resolves the pointer through the Storage Service
// and enqueues each message it names, deduplicated on item_hash by
// PendingRepository.Enqueue's ON CONFLICT DO NOTHING.
func (ig *Ingestor) ingestBatchPointer(ctx context.Context, tx SyncTx) error {
	raw, _, err := ig.storage.Resolve(ctx, tx.PointerItemType, tx.PointerItemHash, nil)
	if err != nil {
		return fmt.Errorf("resolve batch pointer %s: %w", tx.PointerItemHash, err)
	}

	var envelopes []batchEnvelope
	if err := json.Unmarshal(raw, &envelopes); err != nil {
		return fmt.Errorf("decode batch pointer %s: %w", tx.PointerItemHash, err)
	}

	for _, env := range envelopes {
		if err := ig.enqueueAndConfirm(ctx, env, tx.Hash); err != nil {
			ig.logger.Printf("enqueue %s from tx %s: %v", env.ItemHash, tx.Hash, err)
		}
	}
	return nil
}

func (ig *Ingestor) enqueueAndConfirm(ctx context.Context, env batchEnvelope, txHash string) error {
	pm := &database.PendingMessage{
		ItemHash:      env.ItemHash,
		Sender:        env.Sender,
		Chain:         env.Chain,
		Type:          env.Type,
		ItemType:      env.ItemType,
		ItemContent:   []byte(env.ItemContent),
		Time:          time.Unix(env.Time, 0).UTC(),
		NextAttempt:   time.Now(),
		CheckMessage:  true,
		Fetched:       env.ItemType == database.ItemTypeInline,
		ReceptionTime: time.Now(),
		Origin:        database.OriginChainEvent,
		TxHash:        sql.NullString{String: txHash, Valid: true},
	}
	if env.Signature != "" {
		pm.Signature = sql.NullString{String: env.Signature, Valid: true}
	}
	if env.Channel != "" {
		pm.Channel = sql.NullString{String: env.Channel, Valid: true}
	}

	if err := ig.pending.Enqueue(ctx, pm); err != nil {
		return fmt.Errorf("enqueue %s: %w", env.ItemHash, err)
	}
	return ig.chainTx.AddConfirmation(ctx, env.ItemHash, txHash)
}

// ingestContractEvent synthesizes a message envelope from the
// structured on-chain event and enqueues it with check_message=false,
// since a smart-contract event is trusted by construction.
func (ig *Ingestor) ingestContractEvent(ctx context.Context, tx SyncTx) error {
	if tx.Event == nil {
		return fmt.Errorf("contract event tx %s missing event payload", tx.Hash)
	}

	itemHash := syntheticItemHash(tx)
	pm := &database.PendingMessage{
		ItemHash:      itemHash,
		Sender:        tx.Event.Sender,
		Chain:         tx.Chain,
		Type:          tx.Event.MsgType,
		ItemType:      database.ItemTypeInline,
		ItemContent:   tx.Event.Content,
		Time:          tx.Event.Time,
		NextAttempt:   time.Now(),
		CheckMessage:  false,
		Fetched:       true,
		ReceptionTime: time.Now(),
		Origin:        database.OriginChainEvent,
		TxHash:        sql.NullString{String: tx.Hash, Valid: true},
	}

	if err := ig.pending.Enqueue(ctx, pm); err != nil {
		return fmt.Errorf("enqueue synthesized event %s: %w", itemHash, err)
	}
	return ig.chainTx.AddConfirmation(ctx, itemHash, tx.Hash)
}

// syntheticItemHash derives the item_hash a synthesized event's
// inline content binds to, per the same SHA-256 rule (I1) gossip and
// API-submitted inline messages are verified against.
func syntheticItemHash(tx SyncTx) string {
	return contentaddress.SHA256Hex(tx.Event.Content)
}
