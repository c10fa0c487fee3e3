// Copyright 2025 Alephnode Protocol
//
// Commit Coordinator (spec.md 4.10): a single transaction per committed
// message. Insert the canonical row, run the type handler's side
// effects, upsert status, and retire the triggering pending row or
// confirmation, all atomically. A terminal pipeline.Error rolls back
// the side effects but still records the rejection; any other error
// rolls back entirely and leaves the pending row for a retry.

package commit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/alephnode/ccn/pkg/cost"
	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/handlers"
	"github.com/alephnode/ccn/pkg/pipeline"
)

// Input is everything the coordinator needs to commit one message that
// has already been fetched, hash-verified, and signature-verified.
type Input struct {
	// Pending is the triggering queue row, if this commit was driven by
	// the worker pool rather than directly by a chain confirmation for
	// an already-known message.
	Pending *database.PendingMessage

	ItemHash    string
	Sender      string
	Chain       string
	Type        database.MessageType
	ItemType    database.ItemType
	ItemContent []byte
	Signature   string
	Time        time.Time
	Channel     string

	Content    any
	RawContent []byte

	// ConfirmTxHash, if set, records that tx_hash carries this message
	// (spec.md 3.5), alongside or instead of the pending-row deletion.
	ConfirmTxHash string

	// Cost, if non-nil, is the quote the worker pool's balance gate
	// computed for a resource-bearing message. It is persisted as an
	// account_costs row in the same transaction as the message commit,
	// so the row and the committed message are atomic with each other
	// (spec.md 3.7, 4.10).
	Cost *cost.Quote
}

// Coordinator commits one message at a time under a single transaction.
type Coordinator struct {
	client    *database.Client
	buildDeps func(repos *database.Repositories) handlers.Deps
	logger    *log.Logger
}

// New constructs a Coordinator. buildDeps lets the caller wire a
// RelatedContentFetcher (e.g. the storage service) alongside the
// transaction-scoped repositories on every commit.
func New(client *database.Client, buildDeps func(repos *database.Repositories) handlers.Deps) *Coordinator {
	return &Coordinator{
		client:    client,
		buildDeps: buildDeps,
		logger:    log.New(log.Writer(), "[Commit] ", log.LstdFlags),
	}
}

// Commit runs in.Content through its type handler and persists the
// result within one transaction. Returns nil on a committed PROCESSED
// outcome or a committed terminal REJECTED outcome; returns a non-nil
// error only when the attempt must be retried (the pending row, if
// any, is left untouched for the worker pool to reschedule).
func (c *Coordinator) Commit(ctx context.Context, in Input) error {
	tx, err := c.client.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin commit transaction: %w", err)
	}

	txClient := c.client.WithTx(tx)
	txRepos := database.NewRepositories(txClient)
	registry := handlers.BuildDefault(c.buildDeps(txRepos))

	handlerErr := c.run(ctx, txRepos, registry, in)
	if handlerErr == nil {
		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("commit transaction for %s: %w", in.ItemHash, commitErr)
		}
		return nil
	}

	tx.Rollback()

	pipeErr, isPipelineErr := pipeline.AsPipelineError(handlerErr)
	if !isPipelineErr || pipeErr.Kind == pipeline.KindRetryable {
		return handlerErr
	}

	if err := c.Reject(ctx, in, pipeErr); err != nil {
		return fmt.Errorf("record rejection for %s: %w", in.ItemHash, err)
	}
	c.logger.Printf("rejected %s type=%s code=%d: %s", in.ItemHash, in.Type, pipeErr.Code, pipeErr.Message)
	return nil
}

// run performs the insert-process-commit sequence inside the already
// open transaction, returning the first error encountered.
func (c *Coordinator) run(ctx context.Context, repos *database.Repositories, registry *handlers.Registry, in Input) error {
	handler, err := registry.Get(in.Type)
	if err != nil {
		return fmt.Errorf("resolve handler for %s: %w", in.Type, err)
	}

	procIn := handlers.ProcessInput{
		ItemHash: in.ItemHash,
		Sender:   in.Sender,
		Chain:    in.Chain,
		MsgType:  in.Type,
		Time:     in.Time,
		Channel:  in.Channel,
		Content:  in.Content,
		RawJSON:  in.RawContent,
	}

	if err := handler.FetchRelatedContent(ctx, procIn); err != nil {
		return err
	}
	if err := handler.CheckDependencies(ctx, procIn); err != nil {
		return err
	}
	if err := handler.CheckPermissions(ctx, procIn); err != nil {
		return err
	}
	if err := handler.CheckBalance(ctx, procIn); err != nil {
		return err
	}

	msg := &database.Message{
		ItemHash:    in.ItemHash,
		Sender:      in.Sender,
		Chain:       in.Chain,
		Type:        in.Type,
		ItemType:    in.ItemType,
		ItemContent: in.ItemContent,
		Time:        in.Time,
		Content:     json.RawMessage(in.RawContent),
		Size:        int64(len(in.RawContent)),
		CreatedAt:   time.Now(),
	}
	if in.Signature != "" {
		msg.Signature = sql.NullString{String: in.Signature, Valid: true}
	}
	if in.Channel != "" {
		msg.Channel = sql.NullString{String: in.Channel, Valid: true}
	}
	if err := repos.Messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("insert message %s: %w", in.ItemHash, err)
	}

	if in.Cost != nil {
		accountCost := &database.AccountCost{
			ItemHash:   in.ItemHash,
			Address:    in.Sender,
			CostHold:   in.Cost.Hold,
			CostStream: in.Cost.Stream,
			CostCredit: in.Cost.Credit,
			CreatedAt:  time.Now(),
		}
		if err := repos.Balances.RecordCost(ctx, accountCost); err != nil {
			return fmt.Errorf("record cost for %s: %w", in.ItemHash, err)
		}
	}

	if err := handler.Process(ctx, procIn); err != nil {
		return err
	}

	if err := repos.Messages.TransitionStatus(ctx, in.ItemHash, database.StatusProcessed, sql.NullInt64{}, nil); err != nil {
		return fmt.Errorf("transition %s to processed: %w", in.ItemHash, err)
	}

	if in.Pending != nil {
		if err := repos.Pending.Delete(ctx, in.Pending.ID); err != nil {
			return fmt.Errorf("delete pending row for %s: %w", in.ItemHash, err)
		}
	}

	if in.ConfirmTxHash != "" {
		if err := repos.ChainTx.AddConfirmation(ctx, in.ItemHash, in.ConfirmTxHash); err != nil {
			return fmt.Errorf("record confirmation for %s: %w", in.ItemHash, err)
		}
	}

	return nil
}

// Reject persists a terminal outcome outside any failed transaction:
// the message row, a REJECTED status with error detail, and removal
// of the triggering pending row. Exported so the worker pool can also
// reject a message whose retry budget is exhausted (spec.md 4.11)
// without re-deriving a handler-raised pipeline.Error.
func (c *Coordinator) Reject(ctx context.Context, in Input, pipeErr *pipeline.Error) error {
	tx, err := c.client.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	repos := database.NewRepositories(c.client.WithTx(tx))

	msg := &database.Message{
		ItemHash:    in.ItemHash,
		Sender:      in.Sender,
		Chain:       in.Chain,
		Type:        in.Type,
		ItemType:    in.ItemType,
		ItemContent: in.ItemContent,
		Time:        in.Time,
		Content:     json.RawMessage(in.RawContent),
		Size:        int64(len(in.RawContent)),
		CreatedAt:   time.Now(),
	}
	if err := repos.Messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("insert rejected message %s: %w", in.ItemHash, err)
	}

	var details json.RawMessage
	if pipeErr.Details != nil {
		encoded, err := json.Marshal(pipeErr.Details)
		if err != nil {
			return fmt.Errorf("encode rejection details for %s: %w", in.ItemHash, err)
		}
		details = encoded
	}
	code := sql.NullInt64{Int64: int64(pipeErr.Code), Valid: true}
	if err := repos.Messages.TransitionStatus(ctx, in.ItemHash, database.StatusRejected, code, details); err != nil {
		return fmt.Errorf("transition %s to rejected: %w", in.ItemHash, err)
	}

	if in.Pending != nil {
		if err := repos.Pending.Delete(ctx, in.Pending.ID); err != nil {
			return fmt.Errorf("delete pending row for rejected %s: %w", in.ItemHash, err)
		}
	}

	return tx.Commit()
}
