// Copyright 2025 Alephnode Protocol
//
// Balance repository - account balance cache and per-message cost records.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BalanceRepository handles account balance and cost persistence.
type BalanceRepository struct {
	client *Client
}

// NewBalanceRepository creates a new balance repository.
func NewBalanceRepository(client *Client) *BalanceRepository {
	return &BalanceRepository{client: client}
}

// Get retrieves the cached balance for (chain, dapp, address).
func (r *BalanceRepository) Get(ctx context.Context, chain, dapp, address string) (*AccountBalance, error) {
	b := &AccountBalance{}
	err := r.client.QueryRowContext(ctx,
		`SELECT chain, dapp, address, balance, updated_at FROM account_balances WHERE chain = $1 AND dapp = $2 AND address = $3`,
		chain, dapp, address,
	).Scan(&b.Chain, &b.Dapp, &b.Address, &b.Balance, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account balance: %w", err)
	}
	return b, nil
}

// Upsert writes the latest known balance for (chain, dapp, address), as
// mirrored from a balances_post_type POST message or an external oracle.
func (r *BalanceRepository) Upsert(ctx context.Context, b *AccountBalance) error {
	query := `
		INSERT INTO account_balances (chain, dapp, address, balance, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain, dapp, address) DO UPDATE SET
			balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`

	_, err := r.client.ExecContext(ctx, query, b.Chain, b.Dapp, b.Address, b.Balance, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert account balance: %w", err)
	}
	return nil
}

// RecordCost persists the computed hold/stream/credit cost of one
// resource-bearing message.
func (r *BalanceRepository) RecordCost(ctx context.Context, c *AccountCost) error {
	query := `
		INSERT INTO account_costs (item_hash, address, cost_hold, cost_stream, cost_credit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_hash) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query, c.ItemHash, c.Address, c.CostHold, c.CostStream, c.CostCredit, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record account cost: %w", err)
	}
	return nil
}

// SumCosts returns the total hold+stream cost charged against address so
// far, used by the balance gate to decide whether a new message fits.
func (r *BalanceRepository) SumCosts(ctx context.Context, address string) (hold, stream float64, err error) {
	err = r.client.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_hold), 0), COALESCE(SUM(cost_stream), 0) FROM account_costs WHERE address = $1`,
		address,
	).Scan(&hold, &stream)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum account costs: %w", err)
	}
	return hold, stream, nil
}
