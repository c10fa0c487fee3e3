// Copyright 2025 Alephnode Protocol
//
// Package database provides sentinel errors for repository operations.
// Explicit errors instead of nil, nil returns.

package database

import "errors"

// Sentinel errors for database operations
var (
	// ErrNotFound is returned when a requested entity is not found in the database
	ErrNotFound = errors.New("entity not found")

	// ErrMessageNotFound is returned when a message row is not found
	ErrMessageNotFound = errors.New("message not found")

	// ErrStatusNotFound is returned when a message_status row is not found
	ErrStatusNotFound = errors.New("message status not found")

	// ErrPendingNotFound is returned when a pending_messages row is not found
	ErrPendingNotFound = errors.New("pending message not found")

	// ErrAggregateNotFound is returned when an aggregate row is not found
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrPostNotFound is returned when a post row is not found
	ErrPostNotFound = errors.New("post not found")

	// ErrFileNotFound is returned when a stored_files row is not found
	ErrFileNotFound = errors.New("stored file not found")

	// ErrVmNotFound is returned when a vm_descriptors row is not found
	ErrVmNotFound = errors.New("vm descriptor not found")

	// ErrBalanceNotFound is returned when an account_balances row is not found
	ErrBalanceNotFound = errors.New("account balance not found")
)
