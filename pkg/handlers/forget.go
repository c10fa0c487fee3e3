// Copyright 2025 Alephnode Protocol
//
// ForgetHandler implements spec.md 4.9: target expansion (explicit
// hashes plus aggregate-element hashes), forget-of-forget rejection,
// and invoking each target type's own ForgetMessage.

package handlers

import (
	"context"
	"fmt"

	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/message"
	"github.com/alephnode/ccn/pkg/pipeline"
)

// ForgetHandler implements Handler for FORGET messages.
type ForgetHandler struct {
	repos    *database.Repositories
	registry *Registry
}

// NewForgetHandler constructs a ForgetHandler. registry is used to
// dispatch each forget target to its own type's ForgetMessage.
func NewForgetHandler(repos *database.Repositories, registry *Registry) *ForgetHandler {
	return &ForgetHandler{repos: repos, registry: registry}
}

// FetchRelatedContent implements Handler. FORGET carries no additional
// references beyond its own content.
func (h *ForgetHandler) FetchRelatedContent(ctx context.Context, in ProcessInput) error {
	return nil
}

// expandTargets resolves a FORGET message's content into the concrete
// set of item hashes to act on: explicit hashes, plus every element
// hash contributed to each listed aggregate key.
func (h *ForgetHandler) expandTargets(ctx context.Context, c message.ForgetContent) ([]string, error) {
	targets := append([]string{}, c.Hashes...)

	for _, key := range c.Aggregates {
		elements, err := h.repos.Aggregates.ListElements(ctx, c.Address, key)
		if err != nil {
			return nil, fmt.Errorf("list elements for forget target aggregate %s: %w", key, err)
		}
		for _, el := range elements {
			targets = append(targets, el.ItemHash)
		}
	}

	if len(targets) == 0 {
		return nil, pipeline.ErrInvalidFormat
	}
	return targets, nil
}

// CheckDependencies implements Handler: every target must exist with a
// compatible status, and forget-of-forget is rejected.
func (h *ForgetHandler) CheckDependencies(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.ForgetContent)

	targets, err := h.expandTargets(ctx, c)
	if err != nil {
		return err
	}

	for _, target := range targets {
		status, err := h.repos.Messages.GetStatus(ctx, target)
		if err == database.ErrStatusNotFound {
			return pipeline.WithDetails(pipeline.ErrAmendTargetNotFound, map[string]any{"target": target})
		}
		if err != nil {
			return fmt.Errorf("load status for forget target %s: %w", target, err)
		}

		switch status.Status {
		case database.StatusProcessed, database.StatusRemoving:
			msg, err := h.repos.Messages.Get(ctx, target)
			if err != nil {
				return fmt.Errorf("load forget target message %s: %w", target, err)
			}
			if msg.Type == database.MessageTypeForget {
				return pipeline.ErrForgetOfForget
			}
		case database.StatusRejected, database.StatusRemoved, database.StatusForgotten:
			// already terminal; recorded as forgotten-by below, no side
			// effects to undo.
		default:
			return pipeline.WithDetails(pipeline.ErrAmendTargetNotFound, map[string]any{
				"target": target,
				"status": string(status.Status),
			})
		}
	}
	return nil
}

// CheckPermissions implements Handler: sender must match every target's
// own sender.
func (h *ForgetHandler) CheckPermissions(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.ForgetContent)

	targets, err := h.expandTargets(ctx, c)
	if err != nil {
		return err
	}
	for _, target := range targets {
		msg, err := h.repos.Messages.Get(ctx, target)
		if err != nil {
			return fmt.Errorf("load forget target for permission check %s: %w", target, err)
		}
		if err := CheckOwnerOrDelegate(ctx, h.repos.Aggregates, msg.Sender, in.Sender, in.Chain); err != nil {
			return err
		}
	}
	return nil
}

// CheckBalance implements Handler. FORGET messages are not resource-bearing.
func (h *ForgetHandler) CheckBalance(ctx context.Context, in ProcessInput) error {
	return nil
}

// Process implements Handler: invokes each target type's ForgetMessage
// and marks the target (and any secondary hashes it returns) FORGOTTEN.
func (h *ForgetHandler) Process(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.ForgetContent)

	targets, err := h.expandTargets(ctx, c)
	if err != nil {
		return err
	}

	for _, target := range targets {
		if err := h.forgetOne(ctx, target, in); err != nil {
			return err
		}
	}
	return nil
}

// forgetOne drives one target through its type handler's ForgetMessage
// and marks it FORGOTTEN, unless ForgetMessage left it in REMOVING, in
// which case it keeps that status and only gets forgetMsg's hash
// appended to its forgotten_by list. A target that is already terminal (REJECTED,
// REMOVED, or already FORGOTTEN) is never re-run through ForgetMessage —
// its side effects (pin release, etc.) already happened or never
// applied, and re-running them is not idempotent. Such a target only
// gets forgetMsg's hash appended to its forgotten_by list (spec.md 4.9,
// testable property P6).
func (h *ForgetHandler) forgetOne(ctx context.Context, target string, forgetMsg ProcessInput) error {
	status, err := h.repos.Messages.GetStatus(ctx, target)
	if err != nil {
		return fmt.Errorf("load status for forget target %s: %w", target, err)
	}

	switch status.Status {
	case database.StatusRejected, database.StatusRemoved, database.StatusForgotten:
		return h.repos.Messages.AppendForgottenBy(ctx, target, forgetMsg.ItemHash)
	}

	msg, err := h.repos.Messages.Get(ctx, target)
	if err != nil {
		return fmt.Errorf("load forget target %s: %w", target, err)
	}

	targetHandler, err := h.registry.Get(msg.Type)
	if err != nil {
		return fmt.Errorf("no handler for forget target type %s: %w", msg.Type, err)
	}

	content, err := message.ParseContent(msg.Type, msg.Content)
	if err != nil {
		return fmt.Errorf("parse forget target content %s: %w", target, err)
	}

	targetInput := ProcessInput{
		ItemHash: msg.ItemHash,
		Sender:   msg.Sender,
		Chain:    msg.Chain,
		MsgType:  msg.Type,
		Time:     msg.Time,
		Content:  content,
	}

	result, err := targetHandler.ForgetMessage(ctx, targetInput)
	if err != nil {
		return fmt.Errorf("forget target %s: %w", target, err)
	}

	// A STORE whose file lost its last pin is left in REMOVING for the GC
	// sweep to settle as REMOVED; it only records this forget.
	after, err := h.repos.Messages.GetStatus(ctx, target)
	if err != nil {
		return fmt.Errorf("reload status for forget target %s: %w", target, err)
	}
	if after.Status == database.StatusRemoving {
		if err := h.repos.Messages.AppendForgottenBy(ctx, target, forgetMsg.ItemHash); err != nil {
			return err
		}
	} else if err := h.repos.Messages.MarkForgotten(ctx, target, forgetMsg.ItemHash); err != nil {
		return err
	}
	for _, secondary := range result.SecondaryHashes {
		if err := h.repos.Messages.MarkForgotten(ctx, secondary, forgetMsg.ItemHash); err != nil {
			return err
		}
	}
	return nil
}

// ForgetMessage implements Handler. A FORGET message cannot itself be
// forgotten (spec.md 4.9).
func (h *ForgetHandler) ForgetMessage(ctx context.Context, in ProcessInput) (ForgetResult, error) {
	return ForgetResult{}, pipeline.ErrForgetOfForget
}
