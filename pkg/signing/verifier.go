// Copyright 2025 Alephnode Protocol
//
// Signature Verifier (spec.md 4.2). Dispatches on the message's chain
// tag to a verifier implementation. Each implementation documents the
// exact canonical byte sequence it hashes.

package signing

import (
	"fmt"
	"sync"
)

// Verifier checks a (sender, payload, signature) triple for one chain tag.
type Verifier interface {
	// ChainTag returns the chain identifier this verifier handles.
	ChainTag() string

	// Verify returns true iff signature is a valid signature by sender
	// over payload under this chain's canonical-form rules.
	Verify(sender string, payload []byte, signature string) (bool, error)
}

// Registry dispatches chain tags to verifier implementations.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewRegistry creates an empty verifier registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// Register adds or replaces the verifier for v.ChainTag().
func (r *Registry) Register(v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[v.ChainTag()] = v
}

// Get returns the verifier registered for chain, if any.
func (r *Registry) Get(chain string) (Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[chain]
	return v, ok
}

// Verify looks up the verifier for chain and checks the signature. An
// unregistered chain tag returns false together with an error.
func (r *Registry) Verify(chain, sender string, payload []byte, signature string) (bool, error) {
	v, ok := r.Get(chain)
	if !ok {
		return false, fmt.Errorf("no verifier registered for chain %q", chain)
	}
	return v.Verify(sender, payload, signature)
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// GlobalRegistry returns the process-wide verifier registry, lazily
// populated with the built-in EVM, CometBFT, and placeholder verifiers.
func GlobalRegistry() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
		globalRegistry.Register(NewEthereumVerifier())
		globalRegistry.Register(NewCometBFTVerifier())
		globalRegistry.Register(NewTezosPlaceholderVerifier())
		globalRegistry.Register(NewNulsPlaceholderVerifier())
	})
	return globalRegistry
}
