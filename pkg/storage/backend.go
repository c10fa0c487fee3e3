// Copyright 2025 Alephnode Protocol
//
// Storage Service backends (spec.md 4.3). A Backend stores and retrieves
// content-addressed bytes keyed by their hash; Source classifies where a
// given resolution ultimately came from for fetch-retry bookkeeping.

package storage

import (
	"context"
	"fmt"
)

// Source tags where resolved content came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceP2P    Source = "p2p"
	SourceIPFS   Source = "ipfs"
	SourceInline Source = "inline"
)

// Backend is a content-addressed byte store.
type Backend interface {
	// Get returns the bytes stored under hash, or ErrNotFound.
	Get(ctx context.Context, hash string) ([]byte, error)

	// Put stores content under hash. Implementations should treat this
	// as idempotent: storing the same hash twice is not an error.
	Put(ctx context.Context, hash string, content []byte) error

	// Delete removes the content stored under hash, if present.
	Delete(ctx context.Context, hash string) error

	// Exists reports whether hash is currently stored.
	Exists(ctx context.Context, hash string) (bool, error)
}

// ErrNotFound is returned by Backend.Get for an absent hash.
var ErrNotFound = fmt.Errorf("storage: content not found")
