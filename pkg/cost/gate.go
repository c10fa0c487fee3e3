// Copyright 2025 Alephnode Protocol
//
// Gate is the balance check_balance step for STORE, PROGRAM, and
// INSTANCE messages (spec.md 4.4). Balances are read from the
// account_balances table, cached with a short TTL per (chain, dapp,
// address) so a burst of messages from one sender does not hammer the
// database.

package cost

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/pipeline"
)

type cacheKey struct {
	chain, dapp, address string
}

type cacheEntry struct {
	balance  float64
	cachedAt time.Time
}

// Gate checks a message's cost against the sender's balance.
type Gate struct {
	mu      sync.Mutex
	cache   map[cacheKey]cacheEntry
	ttl     time.Duration
	pricing PricingModel
	repo    *database.BalanceRepository
	logger  *log.Logger
}

// NewGate constructs a Gate backed by repo and priced by pricing, with
// balances cached for ttl.
func NewGate(repo *database.BalanceRepository, pricing PricingModel, ttl time.Duration, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.New(log.Writer(), "[CostGate] ", log.LstdFlags)
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Gate{
		cache:   make(map[cacheKey]cacheEntry),
		ttl:     ttl,
		pricing: pricing,
		repo:    repo,
		logger:  logger,
	}
}

// Check quotes msgType/sizeBytes under the schedule active at msgTime,
// loads the sender's balance (using the cache when fresh), and weighs
// it against both this message's cost and every cost already recorded
// against address (spec.md 3.7), returning ErrBalanceInsufficient
// (retryable) if the remaining balance is short.
func (g *Gate) Check(ctx context.Context, chain, dapp, address string, msgType database.MessageType, sizeBytes int64, msgTime time.Time) (Quote, error) {
	quote := g.pricing.ActiveAt(msgTime).Quote(msgType, sizeBytes)
	required := quote.Hold + quote.Stream

	balance, err := g.balance(ctx, chain, dapp, address)
	if err != nil {
		return quote, fmt.Errorf("load balance for %s: %w", address, err)
	}

	spentHold, spentStream, err := g.repo.SumCosts(ctx, address)
	if err != nil {
		return quote, fmt.Errorf("sum recorded costs for %s: %w", address, err)
	}
	available := balance - spentHold - spentStream

	if available < required {
		g.logger.Printf("insufficient balance for %s: have %.4f (spent %.4f), need %.4f", address, available, spentHold+spentStream, required)
		return quote, pipeline.WithDetails(pipeline.ErrBalanceInsufficient, map[string]any{
			"address":   address,
			"balance":   balance,
			"spent":     spentHold + spentStream,
			"available": available,
			"required":  required,
		})
	}
	return quote, nil
}

func (g *Gate) balance(ctx context.Context, chain, dapp, address string) (float64, error) {
	key := cacheKey{chain: chain, dapp: dapp, address: address}

	g.mu.Lock()
	if entry, ok := g.cache[key]; ok && time.Since(entry.cachedAt) < g.ttl {
		g.mu.Unlock()
		return entry.balance, nil
	}
	g.mu.Unlock()

	row, err := g.repo.Get(ctx, chain, dapp, address)
	if err == database.ErrBalanceNotFound {
		g.setCache(key, 0)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	g.setCache(key, row.Balance)
	return row.Balance, nil
}

func (g *Gate) setCache(key cacheKey, balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[key] = cacheEntry{balance: balance, cachedAt: time.Now()}
}

// Invalidate drops the cached balance for (chain, dapp, address),
// forcing the next Check to re-read the database.
func (g *Gate) Invalidate(chain, dapp, address string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cache, cacheKey{chain: chain, dapp: dapp, address: address})
}
