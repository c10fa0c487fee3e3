// Copyright 2025 Alephnode Protocol
//
// Service is the Storage Service referenced throughout spec.md 4.3: it
// resolves an item's content by declared item_type, and deduplicates
// concurrent resolution requests for the same hash with a single-flight
// group so that N pending messages referencing the same large file
// trigger exactly one fetch.

package storage

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/alephnode/ccn/pkg/database"
)

// Service resolves content by item_type/item_hash, using a durable
// local backend and an optional remote overflow backend.
type Service struct {
	local  Backend
	remote Backend // nil if no remote backend is configured
	group  singleflight.Group
}

// NewService constructs a Service. remote may be nil.
func NewService(local, remote Backend) *Service {
	return &Service{local: local, remote: remote}
}

// Resolve returns the bytes for (itemType, itemHash), along with the
// Source it was ultimately served from. For item_type == inline, the
// caller must supply the content already carried on the message itself
// via inlineContent; Resolve will store it for future Get calls.
func (s *Service) Resolve(ctx context.Context, itemType database.ItemType, itemHash string, inlineContent []byte) ([]byte, Source, error) {
	if itemType == database.ItemTypeInline {
		if inlineContent == nil {
			return nil, "", fmt.Errorf("inline item %s has no content", itemHash)
		}
		return inlineContent, SourceInline, nil
	}

	v, err, _ := s.group.Do(itemHash, func() (any, error) {
		return s.resolveUncached(ctx, itemHash)
	})
	if err != nil {
		return nil, "", err
	}
	result := v.(resolved)
	return result.content, result.source, nil
}

type resolved struct {
	content []byte
	source  Source
}

func (s *Service) resolveUncached(ctx context.Context, itemHash string) (resolved, error) {
	content, err := s.local.Get(ctx, itemHash)
	if err == nil {
		return resolved{content: content, source: SourceLocal}, nil
	}
	if err != ErrNotFound {
		return resolved{}, fmt.Errorf("query local backend: %w", err)
	}

	if s.remote != nil {
		content, err = s.remote.Get(ctx, itemHash)
		if err == nil {
			// Mirror to local so subsequent reads are a local hit.
			if putErr := s.local.Put(ctx, itemHash, content); putErr != nil {
				return resolved{}, fmt.Errorf("mirror remote content to local: %w", putErr)
			}
			return resolved{content: content, source: SourceP2P}, nil
		}
		if err != ErrNotFound {
			return resolved{}, fmt.Errorf("query remote backend: %w", err)
		}
	}

	return resolved{}, ErrNotFound
}

// Store persists content under itemHash in the local backend, for
// content arriving directly over P2P gossip or the submission API.
func (s *Service) Store(ctx context.Context, itemHash string, content []byte) error {
	return s.local.Put(ctx, itemHash, content)
}

// Delete removes content from both backends, used by FORGET processing
// once no pins reference the hash (spec.md 4.9).
func (s *Service) Delete(ctx context.Context, itemHash string) error {
	if err := s.local.Delete(ctx, itemHash); err != nil {
		return fmt.Errorf("delete local content: %w", err)
	}
	if s.remote != nil {
		if err := s.remote.Delete(ctx, itemHash); err != nil {
			return fmt.Errorf("delete remote content: %w", err)
		}
	}
	return nil
}

// Exists implements handlers.RelatedContentFetcher, reporting whether a
// hash is stored locally or in the remote backend. handlers.BuildDefault
// does not pass this fetcher on to the STORE or PROGRAM/INSTANCE
// handlers, so they do not call it.
func (s *Service) Exists(itemHash string) (bool, error) {
	ctx := context.Background()
	ok, err := s.local.Exists(ctx, itemHash)
	if err != nil {
		return false, fmt.Errorf("query local backend: %w", err)
	}
	if ok {
		return true, nil
	}
	if s.remote == nil {
		return false, nil
	}
	ok, err = s.remote.Exists(ctx, itemHash)
	if err != nil {
		return false, fmt.Errorf("query remote backend: %w", err)
	}
	return ok, nil
}
