// Copyright 2025 Alephnode Protocol
//
// AggregateHandler implements spec.md 4.5: the three-path element merge
// (append fast path, prepend, full recompute) and invariants A1/A2.

package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/message"
)

// FullRecomputeThreshold is the element-count cutover from an immediate
// full recompute to a deferred, dirty-flagged one (spec.md 4.5).
const FullRecomputeThreshold = 1000

// AggregateHandler implements Handler for AGGREGATE messages.
type AggregateHandler struct {
	repos *database.Repositories
}

// NewAggregateHandler constructs an AggregateHandler.
func NewAggregateHandler(repos *database.Repositories) *AggregateHandler {
	return &AggregateHandler{repos: repos}
}

// FetchRelatedContent implements Handler. AGGREGATE carries no
// additional references beyond its own content.
func (h *AggregateHandler) FetchRelatedContent(ctx context.Context, in ProcessInput) error {
	return nil
}

// CheckDependencies implements Handler. AGGREGATE has no prior-message
// dependency.
func (h *AggregateHandler) CheckDependencies(ctx context.Context, in ProcessInput) error {
	return nil
}

// CheckPermissions implements Handler.
func (h *AggregateHandler) CheckPermissions(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.AggregateContent)
	return CheckOwnerOrDelegate(ctx, h.repos.Aggregates, c.Address, in.Sender, in.Chain)
}

// CheckBalance implements Handler. AGGREGATE messages are not
// resource-bearing.
func (h *AggregateHandler) CheckBalance(ctx context.Context, in ProcessInput) error {
	return nil
}

// Process implements Handler: inserts the element, then applies
// whichever of the three update paths its creation_datetime implies.
func (h *AggregateHandler) Process(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.AggregateContent)

	element := &database.AggregateElement{
		ItemHash:         in.ItemHash,
		Owner:            c.Address,
		Key:              c.Key,
		CreationDatetime: in.Time,
		Content:          json.RawMessage(c.Content),
	}
	if err := h.repos.Aggregates.AddElement(ctx, element); err != nil {
		return fmt.Errorf("insert aggregate element: %w", err)
	}

	agg, err := h.repos.Aggregates.Get(ctx, c.Address, c.Key)
	if err == database.ErrAggregateNotFound {
		return h.fullRecompute(ctx, c.Address, c.Key)
	}
	if err != nil {
		return fmt.Errorf("load aggregate: %w", err)
	}

	switch {
	case in.Time.After(agg.LastRevTime):
		// Append fast path: merge this element on top of current content.
		merged, err := shallowMerge(agg.Content, element.Content)
		if err != nil {
			return fmt.Errorf("append merge: %w", err)
		}
		return h.repos.Aggregates.AppendContent(ctx, c.Address, c.Key, merged, in.ItemHash, in.Time)

	case in.Time.Before(agg.Created):
		// Prepend: the new element precedes everything folded so far.
		// A correct prepend still requires the left-to-right fold order
		// to include this element first, so defer to a full recompute
		// unless the aggregate is small enough to do it inline.
		return h.fullRecompute(ctx, c.Address, c.Key)

	default:
		// Out-of-order arrival between Created and LastRevTime: only a
		// full replay produces a correct fold.
		return h.fullRecompute(ctx, c.Address, c.Key)
	}
}

// fullRecompute re-reads every non-forgotten element for (owner, key)
// in creation_datetime order and folds content left-to-right (A1). Past
// FullRecomputeThreshold elements it defers the recompute and marks the
// aggregate dirty instead (spec.md 4.5); a sweep or the read path
// recomputes it later (A2).
func (h *AggregateHandler) fullRecompute(ctx context.Context, owner, key string) error {
	elements, err := h.repos.Aggregates.ListElements(ctx, owner, key)
	if err != nil {
		return fmt.Errorf("list aggregate elements: %w", err)
	}
	if len(elements) == 0 {
		return nil
	}

	if len(elements) > FullRecomputeThreshold {
		return h.repos.Aggregates.MarkDirty(ctx, owner, key)
	}

	return h.recomputeNow(ctx, owner, key, elements)
}

func (h *AggregateHandler) recomputeNow(ctx context.Context, owner, key string, elements []*database.AggregateElement) error {
	var content json.RawMessage = json.RawMessage(`{}`)
	for _, el := range elements {
		merged, err := shallowMerge(content, el.Content)
		if err != nil {
			return fmt.Errorf("fold element %s: %w", el.ItemHash, err)
		}
		content = merged
	}

	first := elements[0]
	last := elements[len(elements)-1]

	agg := &database.Aggregate{
		Owner:       owner,
		Key:         key,
		Content:     content,
		Created:     first.CreationDatetime,
		LastRevHash: sqlNullString(last.ItemHash),
		LastRevTime: last.CreationDatetime,
		Dirty:       false,
	}
	if err := h.repos.Aggregates.Upsert(ctx, agg); err != nil {
		return fmt.Errorf("upsert recomputed aggregate: %w", err)
	}
	return nil
}

// Recompute forces a full recompute of (owner, key), used by the
// background dirty sweep and by the read path when an aggregate is
// found dirty (A2).
func (h *AggregateHandler) Recompute(ctx context.Context, owner, key string) error {
	elements, err := h.repos.Aggregates.ListElements(ctx, owner, key)
	if err != nil {
		return fmt.Errorf("list aggregate elements: %w", err)
	}
	if len(elements) == 0 {
		return nil
	}
	if err := h.recomputeNow(ctx, owner, key, elements); err != nil {
		return err
	}
	return h.repos.Aggregates.ClearDirty(ctx, owner, key)
}

// ForgetMessage implements Handler: marks the element forgotten and
// forces a recompute so A1 keeps holding.
func (h *AggregateHandler) ForgetMessage(ctx context.Context, in ProcessInput) (ForgetResult, error) {
	c := in.Content.(message.AggregateContent)

	if err := h.repos.Aggregates.MarkElementForgotten(ctx, in.ItemHash); err != nil {
		return ForgetResult{}, fmt.Errorf("mark element forgotten: %w", err)
	}
	if err := h.fullRecompute(ctx, c.Address, c.Key); err != nil {
		return ForgetResult{}, fmt.Errorf("recompute after forget: %w", err)
	}
	return ForgetResult{}, nil
}
