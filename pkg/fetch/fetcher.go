// Copyright 2025 Alephnode Protocol
//
// Fetcher resolves a pending message's content (spec.md 4.3), parses it
// against its declared content schema, and classifies failure into the
// terminal/retryable buckets the worker pool acts on.

package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alephnode/ccn/pkg/contentaddress"
	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/message"
	"github.com/alephnode/ccn/pkg/pipeline"
	"github.com/alephnode/ccn/pkg/storage"
)

// Fetcher resolves pending-message content via the Storage Service.
type Fetcher struct {
	storage *storage.Service
}

// NewFetcher constructs a Fetcher backed by svc.
func NewFetcher(svc *storage.Service) *Fetcher {
	return &Fetcher{storage: svc}
}

// Result is the outcome of fetching and parsing one pending message.
type Result struct {
	Content any             // one of message.AggregateContent, PostContent, ...
	Raw     json.RawMessage // the exact resolved bytes Content was parsed from
	Source  storage.Source
}

// Fetch resolves pend's content, verifies its declared hash, and parses
// it against msgType's content schema.
//
// If pend.Fetched is already true the caller is expected to have cached
// raw bytes itself (e.g. in ItemContent for inline messages); Fetch
// still re-resolves here for simplicity and idempotency, since Resolve
// on an inline item is a pure function of the bytes already carried.
func (f *Fetcher) Fetch(ctx context.Context, pend *database.PendingMessage, msgType database.MessageType, itemType database.ItemType) (*Result, error) {
	var inline []byte
	if itemType == database.ItemTypeInline {
		inline = pend.ItemContent
	}

	raw, source, err := f.storage.Resolve(ctx, itemType, pend.ItemHash, inline)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, pipeline.WithDetails(pipeline.ErrContentUnavailable, map[string]any{
				"item_hash": pend.ItemHash,
			})
		}
		return nil, fmt.Errorf("resolve content for %s: %w", pend.ItemHash, err)
	}

	if err := contentaddress.Verify(itemType, pend.ItemHash, raw); err != nil {
		return nil, pipeline.WithDetails(pipeline.ErrInvalidContentHash, map[string]any{
			"item_hash": pend.ItemHash,
			"cause":     err.Error(),
		})
	}

	parsed, err := message.ParseContent(msgType, json.RawMessage(raw))
	if err != nil {
		return nil, pipeline.WithDetails(pipeline.ErrInvalidFormat, map[string]any{
			"item_hash": pend.ItemHash,
			"cause":     err.Error(),
		})
	}

	return &Result{Content: parsed, Raw: json.RawMessage(raw), Source: source}, nil
}
