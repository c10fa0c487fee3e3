// Copyright 2025 Alephnode Protocol
//
// Handler is the per-type content dispatch contract (spec.md 4.4). Each
// message type implements its own fetch/check/process/forget steps;
// the registry looks one up by database.MessageType.

package handlers

import (
	"context"
	"time"

	"github.com/alephnode/ccn/pkg/database"
)

// ProcessInput carries everything a handler needs to process one
// already-fetched, already-verified message.
type ProcessInput struct {
	ItemHash string
	Sender   string
	Chain    string
	MsgType  database.MessageType
	Time     time.Time
	Channel  string
	Content  any // the concrete content.* struct for this message's type
	RawJSON  []byte
}

// ForgetResult is returned by ForgetMessage: additional item hashes the
// caller must also mark FORGOTTEN, beyond the explicit target.
type ForgetResult struct {
	SecondaryHashes []string
}

// Handler implements the per-type side effects of spec.md 4.4-4.9.
type Handler interface {
	// FetchRelatedContent pulls any additional referenced blobs this
	// message's content needs beyond its own body (e.g. STORE's
	// target file, PROGRAM's code/runtime/data refs).
	FetchRelatedContent(ctx context.Context, in ProcessInput) error

	// CheckDependencies verifies required prior messages exist and are
	// in compatible states.
	CheckDependencies(ctx context.Context, in ProcessInput) error

	// CheckPermissions verifies the sender is authorized to act on this
	// content's target address.
	CheckPermissions(ctx context.Context, in ProcessInput) error

	// CheckBalance verifies the sender can afford this message's cost.
	// No-op for handlers with no cost (AGGREGATE, POST, FORGET).
	CheckBalance(ctx context.Context, in ProcessInput) error

	// Process applies this message's side effects within the caller's
	// transaction.
	Process(ctx context.Context, in ProcessInput) error

	// ForgetMessage undoes this message's side effects and returns any
	// secondary hashes that must also be marked FORGOTTEN.
	ForgetMessage(ctx context.Context, in ProcessInput) (ForgetResult, error)
}
