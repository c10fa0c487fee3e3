// Copyright 2025 Alephnode Protocol
//
// StoreHandler implements spec.md 4.7: pin lifecycle for content-addressed
// blobs, size policy, and the grace-period path into garbage collection.

package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/message"
	"github.com/alephnode/ccn/pkg/pipeline"
)

// Size limits from spec.md 4.7.
const (
	MaxUnauthenticatedUpload int64 = 25 * 1024 * 1024
	MaxFileSize              int64 = 100 * 1024 * 1024
)

// GracePeriod is how long a STORE's blob remains pinned after its last
// message pin is removed, before the garbage collector deletes it.
const GracePeriod = 25 * time.Hour

// FileExistenceChecker reports whether a content hash has already been
// resolved into local/remote storage.
type FileExistenceChecker interface {
	Exists(ctx context.Context, hash string) (bool, error)
}

// StoreHandler implements Handler for STORE messages.
type StoreHandler struct {
	repos       *database.Repositories
	files       FileExistenceChecker
	gracePeriod time.Duration
}

// NewStoreHandler constructs a StoreHandler.
func NewStoreHandler(repos *database.Repositories) *StoreHandler {
	return &StoreHandler{repos: repos, gracePeriod: GracePeriod}
}

// WithFileChecker wires a backend existence check used by
// FetchRelatedContent.
func (h *StoreHandler) WithFileChecker(checker FileExistenceChecker) *StoreHandler {
	h.files = checker
	return h
}

// FetchRelatedContent implements Handler: the referenced file itself
// must already be resolvable (by the Fetcher/Storage Service) before
// Process runs; this only validates size policy and presence.
func (h *StoreHandler) FetchRelatedContent(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.StoreContent)

	limit := MaxFileSize
	if in.Channel == "" {
		limit = MaxUnauthenticatedUpload
	}
	if c.Size > limit {
		return pipeline.ErrInvalidFormat
	}

	if h.files == nil {
		return nil
	}
	exists, err := h.files.Exists(ctx, c.ItemHash)
	if err != nil {
		return fmt.Errorf("check store target existence: %w", err)
	}
	if !exists {
		return pipeline.WithDetails(pipeline.ErrFileUnavailable, map[string]any{"item_hash": c.ItemHash})
	}
	return nil
}

// CheckDependencies implements Handler. It always returns nil:
// StoreContent carries no amend reference, so no amend target is looked
// up and amend chains are not checked.
func (h *StoreHandler) CheckDependencies(ctx context.Context, in ProcessInput) error {
	return nil
}

// CheckPermissions implements Handler.
func (h *StoreHandler) CheckPermissions(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.StoreContent)
	return CheckOwnerOrDelegate(ctx, h.repos.Aggregates, c.Address, in.Sender, in.Chain)
}

// CheckBalance implements Handler.
func (h *StoreHandler) CheckBalance(ctx context.Context, in ProcessInput) error {
	return nil // wired by the pipeline's cost gate ahead of Process
}

// Process implements Handler: registers the blob (if unseen) and pins
// it under this message.
func (h *StoreHandler) Process(ctx context.Context, in ProcessInput) error {
	c := in.Content.(message.StoreContent)

	fileType := database.FileTypeFile
	if err := h.repos.Files.Upsert(ctx, &database.StoredFile{
		Hash: c.ItemHash,
		Size: c.Size,
		Type: fileType,
	}); err != nil {
		return fmt.Errorf("upsert stored file: %w", err)
	}

	if err := h.repos.Files.AddPin(ctx, &database.FilePin{
		FileHash:  c.ItemHash,
		Type:      database.PinTypeMessage,
		Owner:     sqlNullString(c.Address),
		ItemHash:  sqlNullString(in.ItemHash),
		CreatedAt: in.Time,
	}); err != nil {
		return fmt.Errorf("pin stored file: %w", err)
	}
	return nil
}

// ForgetMessage implements Handler: removes this message's pin; if no
// pins remain, marks the message REMOVING and schedules a grace-period
// pin so other nodes can still fetch the content for a while longer.
func (h *StoreHandler) ForgetMessage(ctx context.Context, in ProcessInput) (ForgetResult, error) {
	c := in.Content.(message.StoreContent)

	if err := h.repos.Files.RemovePinsForItem(ctx, in.ItemHash); err != nil {
		return ForgetResult{}, fmt.Errorf("remove store pin: %w", err)
	}

	remaining, err := h.repos.Files.CountPins(ctx, c.ItemHash)
	if err != nil {
		return ForgetResult{}, fmt.Errorf("count remaining pins: %w", err)
	}
	if remaining > 0 {
		return ForgetResult{}, nil
	}

	if err := h.repos.Messages.TransitionStatus(ctx, in.ItemHash, database.StatusRemoving, sqlNullInt64None(), nil); err != nil {
		return ForgetResult{}, fmt.Errorf("mark store message removing: %w", err)
	}
	if err := h.repos.Files.AddGracePeriodPin(ctx, c.ItemHash, time.Now().Add(h.gracePeriod)); err != nil {
		return ForgetResult{}, fmt.Errorf("add grace period pin: %w", err)
	}

	return ForgetResult{}, nil
}
