// Copyright 2025 Alephnode Protocol
//
// Garbage collection sweep (spec.md 4.7/4.9/4.5): the background half
// of the pin lifecycle. StoreHandler.ForgetMessage only schedules a
// grace-period pin and moves the message to REMOVING; this sweep is
// what actually reclaims the blob once the grace period elapses and
// what flips REMOVING to REMOVED once no pin references the file. It
// also drives the dirty-aggregate recompute invariant A2 expects from
// a background trigger, the counterpart to the on-read recompute in
// the API path.

package gc

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/handlers"
	"github.com/alephnode/ccn/pkg/message"
	"github.com/alephnode/ccn/pkg/storage"
)

// removingBatchSize bounds how many REMOVING messages and dirty
// aggregates one sweep pass inspects, so a large backlog spreads
// across several sweep intervals instead of blocking one pass.
const removingBatchSize = 500

// Sweeper runs the periodic pin-liveness and recompute pass.
type Sweeper struct {
	repos     *database.Repositories
	storage   *storage.Service
	aggregate *handlers.AggregateHandler
	logger    *log.Logger
}

// New constructs a Sweeper.
func New(repos *database.Repositories, storageSvc *storage.Service, aggregate *handlers.AggregateHandler, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.New(log.Writer(), "[GC] ", log.LstdFlags)
	}
	return &Sweeper{repos: repos, storage: storageSvc, aggregate: aggregate, logger: logger}
}

// Run sweeps on interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs every phase of the sweep a single time, logging
// per-phase errors rather than aborting the whole pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if err := s.reclaimExpiredPins(ctx); err != nil {
		s.logger.Printf("reclaim expired pins: %v", err)
	}
	if err := s.settleRemovingMessages(ctx); err != nil {
		s.logger.Printf("settle removing messages: %v", err)
	}
	if err := s.recomputeDirtyAggregates(ctx); err != nil {
		s.logger.Printf("recompute dirty aggregates: %v", err)
	}
}

// reclaimExpiredPins deletes the blob backing a grace-period pin once
// its delete_by has elapsed, but only if no other pin still
// references the file — a STORE of the same file submitted during
// the grace period keeps it alive.
func (s *Sweeper) reclaimExpiredPins(ctx context.Context) error {
	pins, err := s.repos.Files.ListExpiredGracePins(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, pin := range pins {
		if err := s.repos.Files.DeletePin(ctx, pin.ID); err != nil {
			s.logger.Printf("delete expired pin %d (file %s): %v", pin.ID, pin.FileHash, err)
			continue
		}

		remaining, err := s.repos.Files.CountPins(ctx, pin.FileHash)
		if err != nil {
			s.logger.Printf("count pins for file %s: %v", pin.FileHash, err)
			continue
		}
		if remaining > 0 {
			continue
		}

		if err := s.storage.Delete(ctx, pin.FileHash); err != nil {
			s.logger.Printf("delete blob %s: %v", pin.FileHash, err)
			continue
		}
		if err := s.repos.Files.DeleteStoredFile(ctx, pin.FileHash); err != nil {
			s.logger.Printf("delete stored file row %s: %v", pin.FileHash, err)
		}
	}
	return nil
}

// settleRemovingMessages finds STORE messages parked in REMOVING and
// transitions them to REMOVED once the file they targeted has no pins
// left. The message's own item_hash and the file hash it targets are
// distinct (the file hash lives inside the STORE content), so each
// row requires a lookup of its canonical content to resolve which
// file to check.
func (s *Sweeper) settleRemovingMessages(ctx context.Context) error {
	itemHashes, err := s.repos.Messages.ListItemHashesByStatus(ctx, database.StatusRemoving, removingBatchSize)
	if err != nil {
		return err
	}

	for _, itemHash := range itemHashes {
		msg, err := s.repos.Messages.Get(ctx, itemHash)
		if err != nil {
			s.logger.Printf("load removing message %s: %v", itemHash, err)
			continue
		}
		if msg.Type != database.MessageTypeStore {
			continue
		}

		parsed, err := message.ParseContent(msg.Type, msg.Content)
		if err != nil {
			s.logger.Printf("parse store content for %s: %v", itemHash, err)
			continue
		}
		store, ok := parsed.(message.StoreContent)
		if !ok {
			continue
		}

		remaining, err := s.repos.Files.CountPins(ctx, store.ItemHash)
		if err != nil {
			s.logger.Printf("count pins for file %s (message %s): %v", store.ItemHash, itemHash, err)
			continue
		}
		if remaining > 0 {
			continue
		}

		if err := s.repos.Messages.TransitionStatus(ctx, itemHash, database.StatusRemoved, sql.NullInt64{}, nil); err != nil {
			s.logger.Printf("transition %s to removed: %v", itemHash, err)
		}
	}
	return nil
}

// recomputeDirtyAggregates drives the background half of invariant
// A2: a dirty aggregate is recomputed either on its next external
// read or here, whichever comes first.
func (s *Sweeper) recomputeDirtyAggregates(ctx context.Context) error {
	keys, err := s.repos.Aggregates.ListDirty(ctx, removingBatchSize)
	if err != nil {
		return err
	}

	for _, k := range keys {
		if err := s.aggregate.Recompute(ctx, k.Owner, k.Key); err != nil {
			s.logger.Printf("recompute aggregate %s/%s: %v", k.Owner, k.Key, err)
		}
	}
	return nil
}
