// Copyright 2025 Alephnode Protocol
//
// Registry dispatches a message's type to its Handler.

package handlers

import (
	"fmt"
	"sync"

	"github.com/alephnode/ccn/pkg/database"
)

// Registry maps database.MessageType to the Handler that implements it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[database.MessageType]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[database.MessageType]Handler)}
}

// Register associates msgType with h, replacing any prior handler.
func (r *Registry) Register(msgType database.MessageType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = h
}

// Get returns the handler for msgType.
func (r *Registry) Get(msgType database.MessageType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[msgType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for message type %q", msgType)
	}
	return h, nil
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Deps are the shared collaborators every built-in handler needs.
type Deps struct {
	Repos   *database.Repositories
	Storage RelatedContentFetcher

	// PostOracleType and PostOracleAddresses configure the POST
	// handler's balances_post_type special case (spec.md 4.6). Left
	// zero, POST never special-cases a type into a balance write.
	PostOracleType      string
	PostOracleAddresses []string

	// Mirror receives every balance the POST handler's oracle special
	// case writes, so a secondary read cache stays current. Optional.
	Mirror BalanceMirror
}

// RelatedContentFetcher resolves a secondary content reference (e.g. a
// STORE target file or a PROGRAM code/runtime/data ref) by hash.
// BuildDefault does not hand Deps.Storage to any handler; the STORE and
// VM handlers check files only through WithFileChecker, which
// BuildDefault does not call.
type RelatedContentFetcher interface {
	Exists(hash string) (bool, error)
}

// BuildDefault constructs the registry wired with the built-in handlers
// for every message type named in spec.md 3.6. Since this runs once per
// commit transaction (a fresh Registry per Coordinator.Commit), deps
// carries whatever per-deployment configuration (oracle type/addresses,
// balance mirror) every rebuilt Registry needs to apply identically.
func BuildDefault(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(database.MessageTypeAggregate, NewAggregateHandler(deps.Repos))

	post := NewPostHandler(deps.Repos)
	if deps.PostOracleType != "" {
		post.WithOracle(deps.PostOracleType, deps.PostOracleAddresses)
		post.Mirror = deps.Mirror
	}
	r.Register(database.MessageTypePost, post)

	r.Register(database.MessageTypeStore, NewStoreHandler(deps.Repos))
	r.Register(database.MessageTypeProgram, NewVmHandler(deps.Repos))
	r.Register(database.MessageTypeInstance, NewVmHandler(deps.Repos))
	r.Register(database.MessageTypeForget, NewForgetHandler(deps.Repos, r))
	return r
}

// GlobalRegistry returns the process-wide handler registry, populated on
// first use via BuildDefault. Most call sites should prefer constructing
// their own Registry with explicit Deps; this exists for code paths (CLI
// subcommands, admin introspection) that only need read access to the
// dispatch table.
func GlobalRegistry(deps Deps) *Registry {
	globalOnce.Do(func() {
		globalRegistry = BuildDefault(deps)
	})
	return globalRegistry
}
