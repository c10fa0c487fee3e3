// Copyright 2025 Alephnode Protocol
//
// PostHandler implements spec.md 4.6: original/amend documents, the
// latest_amend pointer, and the balances_post_type oracle special case.

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/message"
	"github.com/alephnode/ccn/pkg/pipeline"
)

const amendPostType = "amend"

// PostHandler implements Handler for POST messages.
type PostHandler struct {
	repos *database.Repositories

	// BalancesPostType and OracleAddresses implement the balances_post_type
	// special case (spec.md 4.6, external interface §6). Left empty, no
	// post ever updates the balances table.
	BalancesPostType string
	OracleAddresses  map[string]struct{}

	// Mirror receives every balance this handler writes, so a secondary
	// read cache stays current without the gate check ever touching it
	// directly. Left nil, no mirroring happens.
	Mirror BalanceMirror
}

// BalanceMirror is notified of every account balance write the POST
// handler's oracle special case makes, so it can push the same value
// into a secondary low-latency read cache.
type BalanceMirror interface {
	Sync(ctx context.Context, b *database.AccountBalance) error
}

// NewPostHandler constructs a PostHandler.
func NewPostHandler(repos *database.Repositories) *PostHandler {
	return &PostHandler{repos: repos, OracleAddresses: map[string]struct{}{}}
}

// WithOracle configures the balances_post_type special case.
func (h *PostHandler) WithOracle(postType string, addresses []string) *PostHandler {
	h.BalancesPostType = postType
	h.OracleAddresses = make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		h.OracleAddresses[strings.ToLower(a)] = struct{}{}
	}
	return h
}

// FetchRelatedContent implements Handler. POST carries no additional
// references beyond its own content.
func (h *PostHandler) FetchRelatedContent(ctx context.Context, in ProcessInput) error {
	return nil
}

// CheckDependencies implements Handler: an amend's ref must resolve to
// a PROCESSED, non-amend original.
func (h *PostHandler) CheckDependencies(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.PostContent)
	if c.Type != amendPostType {
		return nil
	}
	if c.Ref == "" {
		return pipeline.ErrInvalidFormat
	}

	original, err := h.repos.Posts.Get(ctx, c.Ref)
	if err == database.ErrPostNotFound {
		return pipeline.WithDetails(pipeline.ErrAmendTargetNotFound, map[string]any{"ref": c.Ref})
	}
	if err != nil {
		return fmt.Errorf("load amend target %s: %w", c.Ref, err)
	}
	if original.Type == amendPostType {
		return pipeline.ErrCannotAmendAmend
	}
	return nil
}

// CheckPermissions implements Handler.
func (h *PostHandler) CheckPermissions(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.PostContent)
	return CheckOwnerOrDelegate(ctx, h.repos.Aggregates, c.Address, in.Sender, in.Chain)
}

// CheckBalance implements Handler. POST messages are not resource-bearing.
func (h *PostHandler) CheckBalance(ctx context.Context, in ProcessInput) error {
	return nil
}

// Process implements Handler.
func (h *PostHandler) Process(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.PostContent)

	post := &database.Post{
		ItemHash:         in.ItemHash,
		Owner:            c.Address,
		Type:             c.Type,
		Content:          json.RawMessage(c.Content),
		CreationDatetime: in.Time,
	}
	if in.Channel != "" {
		post.Channel = sqlNullString(in.Channel)
	}
	if c.Ref != "" {
		post.Ref = sqlNullString(c.Ref)
	}

	if c.Type == amendPostType {
		post.Amends = sqlNullString(c.Ref)
		if err := h.repos.Posts.Create(ctx, post); err != nil {
			return fmt.Errorf("insert amend post: %w", err)
		}
		if err := h.maybeAdvanceLatestAmend(ctx, c.Ref, in.ItemHash, in.Time); err != nil {
			return err
		}
	} else {
		if err := h.repos.Posts.Create(ctx, post); err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
	}

	if h.BalancesPostType != "" && c.Type == h.BalancesPostType {
		if err := h.applyOracleUpdate(ctx, c, in); err != nil {
			return err
		}
	}

	return nil
}

// maybeAdvanceLatestAmend updates original's latest_amend pointer if
// amendTime is later than the current pointer's post time.
func (h *PostHandler) maybeAdvanceLatestAmend(ctx context.Context, originalHash, amendHash string, amendTime time.Time) error {
	original, err := h.repos.Posts.Get(ctx, originalHash)
	if err != nil {
		return fmt.Errorf("load original for latest_amend update: %w", err)
	}

	if !original.LatestAmend.Valid {
		return h.repos.Posts.SetLatestAmend(ctx, originalHash, amendHash)
	}

	current, err := h.repos.Posts.Get(ctx, original.LatestAmend.String)
	if err != nil {
		return fmt.Errorf("load current latest_amend: %w", err)
	}

	if amendTime.After(current.CreationDatetime) {
		return h.repos.Posts.SetLatestAmend(ctx, originalHash, amendHash)
	}
	return nil
}

// applyOracleUpdate implements the balances_post_type special case: a
// post from a configured oracle address updates the balances table
// directly from its content, keyed by chain/dapp/address.
func (h *PostHandler) applyOracleUpdate(ctx context.Context, c message.PostContent, in ProcessInput) error {
	if _, ok := h.OracleAddresses[strings.ToLower(in.Sender)]; !ok {
		return nil
	}

	var payload struct {
		Chain     string             `json:"chain"`
		Dapp      string             `json:"dapp"`
		Balances  map[string]float64 `json:"balances"`
	}
	if err := json.Unmarshal(c.Content, &payload); err != nil {
		return fmt.Errorf("decode oracle balances payload: %w", err)
	}

	for address, balance := range payload.Balances {
		row := &database.AccountBalance{
			Chain:   payload.Chain,
			Dapp:    payload.Dapp,
			Address: address,
			Balance: balance,
		}
		if err := h.repos.Balances.Upsert(ctx, row); err != nil {
			return fmt.Errorf("apply oracle balance for %s: %w", address, err)
		}
		if h.Mirror != nil {
			// Mirror failures are logged by the mirror itself and never
			// propagate: the canonical balances table already has the
			// write, and the mirror is a secondary read cache only.
			_ = h.Mirror.Sync(ctx, row)
		}
	}
	return nil
}

// ForgetMessage implements Handler: if the post was an original, it
// cascades to every amend (returned as secondary hashes); if it was the
// latest_amend of some original, it recomputes that pointer. The post
// row itself is not deleted from the posts table.
func (h *PostHandler) ForgetMessage(ctx context.Context, in ProcessInput) (ForgetResult, error) {
	post, err := h.repos.Posts.Get(ctx, in.ItemHash)
	if err == database.ErrPostNotFound {
		return ForgetResult{}, nil
	}
	if err != nil {
		return ForgetResult{}, fmt.Errorf("load post to forget: %w", err)
	}

	var secondary []string
	if post.Type != amendPostType {
		amends, err := h.repos.Posts.ListAmends(ctx, in.ItemHash)
		if err != nil {
			return ForgetResult{}, fmt.Errorf("list amends to cascade forget: %w", err)
		}
		for _, a := range amends {
			secondary = append(secondary, a.ItemHash)
		}
	} else if post.Ref.Valid {
		original, err := h.repos.Posts.Get(ctx, post.Ref.String)
		if err == nil && original.LatestAmend.Valid && original.LatestAmend.String == in.ItemHash {
			if recomputeErr := h.recomputeLatestAmend(ctx, post.Ref.String, in.ItemHash); recomputeErr != nil {
				return ForgetResult{}, recomputeErr
			}
		}
	}

	return ForgetResult{SecondaryHashes: secondary}, nil
}

func (h *PostHandler) recomputeLatestAmend(ctx context.Context, originalHash, excludeHash string) error {
	amends, err := h.repos.Posts.ListAmends(ctx, originalHash)
	if err != nil {
		return fmt.Errorf("list amends to recompute latest_amend: %w", err)
	}

	var newest *database.Post
	for _, a := range amends {
		if a.ItemHash == excludeHash {
			continue
		}
		if newest == nil || a.CreationDatetime.After(newest.CreationDatetime) {
			newest = a
		}
	}
	if newest == nil {
		return h.repos.Posts.SetLatestAmend(ctx, originalHash, "")
	}
	return h.repos.Posts.SetLatestAmend(ctx, originalHash, newest.ItemHash)
}
