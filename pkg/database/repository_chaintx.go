// Copyright 2025 Alephnode Protocol
//
// Chain transaction repository - synced transactions and their
// message confirmations.

package database

import (
	"context"
	"database/sql"
	"fmt"
)

// ChainTxRepository handles chain transaction and confirmation operations.
type ChainTxRepository struct {
	client *Client
}

// NewChainTxRepository creates a new chain transaction repository.
func NewChainTxRepository(client *Client) *ChainTxRepository {
	return &ChainTxRepository{client: client}
}

// Create inserts a synced chain transaction record.
func (r *ChainTxRepository) Create(ctx context.Context, tx *ChainTransaction) error {
	query := `
		INSERT INTO chain_transactions (
			hash, chain, height, tx_datetime, publisher, protocol,
			protocol_version, content, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (hash) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query,
		tx.Hash, tx.Chain, tx.Height, tx.Datetime, tx.Publisher, tx.Protocol,
		tx.ProtocolVersion, tx.Content, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chain transaction: %w", err)
	}
	return nil
}

// Get retrieves a chain transaction by hash.
func (r *ChainTxRepository) Get(ctx context.Context, hash string) (*ChainTransaction, error) {
	query := `
		SELECT hash, chain, height, tx_datetime, publisher, protocol,
			protocol_version, content, created_at
		FROM chain_transactions
		WHERE hash = $1`

	tx := &ChainTransaction{}
	err := r.client.QueryRowContext(ctx, query, hash).Scan(
		&tx.Hash, &tx.Chain, &tx.Height, &tx.Datetime, &tx.Publisher, &tx.Protocol,
		&tx.ProtocolVersion, &tx.Content, &tx.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chain transaction: %w", err)
	}
	return tx, nil
}

// AddConfirmation links a message to a transaction known to carry it.
func (r *ChainTxRepository) AddConfirmation(ctx context.Context, itemHash, txHash string) error {
	query := `
		INSERT INTO confirmations (item_hash, tx_hash)
		VALUES ($1, $2)
		ON CONFLICT (item_hash, tx_hash) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query, itemHash, txHash)
	if err != nil {
		return fmt.Errorf("failed to add confirmation: %w", err)
	}
	return nil
}

// ListConfirmations returns every transaction hash known to carry itemHash.
func (r *ChainTxRepository) ListConfirmations(ctx context.Context, itemHash string) ([]string, error) {
	rows, err := r.client.QueryContext(ctx, `SELECT tx_hash FROM confirmations WHERE item_hash = $1`, itemHash)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmations: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan confirmation: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
