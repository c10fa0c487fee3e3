// Copyright 2025 Alephnode Protocol
//
// VmHandler implements spec.md 4.8 for both PROGRAM and INSTANCE
// messages: volume reference validation and VmVersion amend-chain head
// tracking.

package handlers

import (
	"context"
	"fmt"

	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/message"
	"github.com/alephnode/ccn/pkg/pipeline"
)

// VmHandler implements Handler for PROGRAM and INSTANCE messages.
type VmHandler struct {
	repos *database.Repositories
	files FileExistenceChecker
}

// NewVmHandler constructs a VmHandler.
func NewVmHandler(repos *database.Repositories) *VmHandler {
	return &VmHandler{repos: repos}
}

// WithFileChecker wires a backend existence check for volume refs.
func (h *VmHandler) WithFileChecker(checker FileExistenceChecker) *VmHandler {
	h.files = checker
	return h
}

// FetchRelatedContent implements Handler: every referenced volume
// (code, runtime, data, parent rootfs, or explicit volume list) must
// resolve to an existing pinned or tagged file.
func (h *VmHandler) FetchRelatedContent(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.VmContent)

	refs := []string{}
	if c.CodeRef != "" {
		refs = append(refs, c.CodeRef)
	}
	if c.RuntimeRef != "" {
		refs = append(refs, c.RuntimeRef)
	}
	if c.DataRef != "" {
		refs = append(refs, c.DataRef)
	}
	if c.ParentRef != "" {
		refs = append(refs, c.ParentRef)
	}
	refs = append(refs, c.Volumes...)

	if h.files == nil {
		return nil
	}
	for _, ref := range refs {
		exists, err := h.files.Exists(ctx, ref)
		if err != nil {
			return fmt.Errorf("check vm volume ref %s: %w", ref, err)
		}
		if !exists {
			return pipeline.WithDetails(pipeline.ErrVmVolumeNotFound, map[string]any{"ref": ref})
		}
	}
	return nil
}

// CheckDependencies implements Handler: an update (`replaces`) must
// target an existing descriptor that permits amend and is itself not
// an amend.
func (h *VmHandler) CheckDependencies(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.VmContent)
	if c.Replaces == "" {
		return nil
	}

	target, err := h.repos.Vms.Get(ctx, c.Replaces)
	if err == database.ErrVmNotFound {
		return pipeline.WithDetails(pipeline.ErrVmRefNotFound, map[string]any{"replaces": c.Replaces})
	}
	if err != nil {
		return fmt.Errorf("load vm replace target %s: %w", c.Replaces, err)
	}
	if !target.AllowAmend {
		return pipeline.ErrPermissionDenied
	}
	if target.Replaces.Valid {
		return pipeline.ErrCannotAmendAmend
	}
	return nil
}

// CheckPermissions implements Handler.
func (h *VmHandler) CheckPermissions(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.VmContent)
	return CheckOwnerOrDelegate(ctx, h.repos.Aggregates, c.Address, in.Sender, in.Chain)
}

// CheckBalance implements Handler. Balance gating itself is performed
// by the cost gate ahead of Process; this is a structural no-op.
func (h *VmHandler) CheckBalance(ctx context.Context, in ProcessInput) error {
	return nil
}

// Process implements Handler: inserts the descriptor and advances the
// amend-chain head, taking the max by last_updated (spec.md 4.8).
func (h *VmHandler) Process(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.VmContent)

	desc := &database.VmDescriptor{
		ItemHash:   in.ItemHash,
		Owner:      c.Address,
		Type:       in.MsgType,
		AllowAmend: c.AllowAmend,
		CreatedAt:  in.Time,
	}
	if c.Replaces != "" {
		desc.Replaces = sqlNullString(c.Replaces)
	}
	if c.CodeRef != "" {
		desc.CodeRef = sqlNullString(c.CodeRef)
	}
	if c.RuntimeRef != "" {
		desc.RuntimeRef = sqlNullString(c.RuntimeRef)
	}
	if c.DataRef != "" {
		desc.DataRef = sqlNullString(c.DataRef)
	}
	if c.ParentRef != "" {
		desc.ParentRef = sqlNullString(c.ParentRef)
	}

	if err := h.repos.Vms.Create(ctx, desc); err != nil {
		return fmt.Errorf("insert vm descriptor: %w", err)
	}

	refKey, err := h.resolveRefKey(ctx, c.Address, c.Replaces, in.ItemHash)
	if err != nil {
		return err
	}

	current, err := h.repos.Vms.GetVersion(ctx, c.Address, refKey)
	if err == database.ErrVmNotFound {
		return h.repos.Vms.SetVersion(ctx, c.Address, refKey, in.ItemHash)
	}
	if err != nil {
		return fmt.Errorf("load vm version: %w", err)
	}
	if in.Time.Before(current.LastUpdated) {
		return nil
	}
	return h.repos.Vms.SetVersion(ctx, c.Address, refKey, in.ItemHash)
}

// resolveRefKey walks the replaces chain back to the original
// descriptor's item_hash, which identifies the amend chain as a whole.
func (h *VmHandler) resolveRefKey(ctx context.Context, owner, replaces, selfHash string) (string, error) {
	if replaces == "" {
		return selfHash, nil
	}
	seen := map[string]bool{selfHash: true}
	cursor := replaces
	for {
		if seen[cursor] {
			return cursor, nil // defensive cycle break
		}
		seen[cursor] = true
		desc, err := h.repos.Vms.Get(ctx, cursor)
		if err != nil {
			return "", fmt.Errorf("walk vm replace chain at %s: %w", cursor, err)
		}
		if !desc.Replaces.Valid {
			return desc.ItemHash, nil
		}
		cursor = desc.Replaces.String
	}
}

// ForgetMessage implements Handler: deleting an update refreshes
// VmVersion to the previous head.
func (h *VmHandler) ForgetMessage(ctx context.Context, in ProcessInput) (ForgetResult, error) {
	c := in.Content.(message.VmContent)

	refKey, err := h.resolveRefKey(ctx, c.Address, c.Replaces, in.ItemHash)
	if err != nil {
		return ForgetResult{}, err
	}

	current, err := h.repos.Vms.GetVersion(ctx, c.Address, refKey)
	if err != nil || current.CurrentVersion != in.ItemHash {
		return ForgetResult{}, nil
	}

	if c.Replaces == "" {
		return ForgetResult{}, nil
	}
	if err := h.repos.Vms.SetVersion(ctx, c.Address, refKey, c.Replaces); err != nil {
		return ForgetResult{}, fmt.Errorf("revert vm version: %w", err)
	}
	return ForgetResult{}, nil
}
