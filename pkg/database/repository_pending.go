// Copyright 2025 Alephnode Protocol
//
// Pending message repository - durable queue CRUD and worker-pool leasing.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PendingRepository handles the durable pending-message queue.
type PendingRepository struct {
	client *Client
}

// NewPendingRepository creates a new pending repository.
func NewPendingRepository(client *Client) *PendingRepository {
	return &PendingRepository{client: client}
}

// Enqueue inserts a pending message. A conflict on item_hash is not an
// error: the row already represents this message's place in the queue.
func (r *PendingRepository) Enqueue(ctx context.Context, pm *PendingMessage) error {
	if pm.ID == uuid.Nil {
		pm.ID = uuid.New()
	}

	query := `
		INSERT INTO pending_messages (
			id, item_hash, sender, chain, type, item_type, item_content,
			signature, msg_time, channel, retries, next_attempt, check_message,
			fetched, reception_time, origin, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (item_hash) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query,
		pm.ID, pm.ItemHash, pm.Sender, pm.Chain, pm.Type, pm.ItemType, pm.ItemContent,
		pm.Signature, pm.Time, pm.Channel, pm.Retries, pm.NextAttempt, pm.CheckMessage,
		pm.Fetched, pm.ReceptionTime, pm.Origin, pm.TxHash,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue pending message: %w", err)
	}
	return nil
}

// ClaimBatch leases up to limit due pending messages, earliest
// next_attempt first, skipping rows locked by another worker's claim and
// pushing each claimed row's next_attempt ten minutes ahead so that other
// workers pass over it. Rows are not interleaved by sender.
func (r *PendingRepository) ClaimBatch(ctx context.Context, limit int) ([]*PendingMessage, error) {
	tx, err := r.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, item_hash, sender, chain, type, item_type, item_content,
			signature, msg_time, channel, retries, next_attempt, check_message,
			fetched, reception_time, origin, tx_hash
		FROM pending_messages
		WHERE next_attempt <= $1
		ORDER BY next_attempt ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.QueryContext(ctx, query, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending messages: %w", err)
	}

	var claimed []*PendingMessage
	for rows.Next() {
		pm := &PendingMessage{}
		if err := rows.Scan(
			&pm.ID, &pm.ItemHash, &pm.Sender, &pm.Chain, &pm.Type, &pm.ItemType, &pm.ItemContent,
			&pm.Signature, &pm.Time, &pm.Channel, &pm.Retries, &pm.NextAttempt, &pm.CheckMessage,
			&pm.Fetched, &pm.ReceptionTime, &pm.Origin, &pm.TxHash,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pending message: %w", err)
		}
		claimed = append(claimed, pm)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Push next_attempt forward before the row locks are released, so no
	// other worker claims these rows while this one processes them.
	leaseUntil := time.Now().Add(10 * time.Minute)
	for _, pm := range claimed {
		if _, err := tx.ExecContext(ctx, `UPDATE pending_messages SET next_attempt = $2 WHERE id = $1`, pm.ID, leaseUntil); err != nil {
			return nil, fmt.Errorf("failed to lease pending message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return claimed, nil
}

// Reschedule bumps retries and pushes next_attempt out by backoff, used
// when a message's processing attempt fails transiently.
func (r *PendingRepository) Reschedule(ctx context.Context, id uuid.UUID, backoff time.Duration) error {
	query := `
		UPDATE pending_messages
		SET retries = retries + 1, next_attempt = $2, fetched = false
		WHERE id = $1`

	_, err := r.client.ExecContext(ctx, query, id, time.Now().Add(backoff))
	if err != nil {
		return fmt.Errorf("failed to reschedule pending message: %w", err)
	}
	return nil
}

// MarkFetched records that content resolution succeeded for this row and
// stores the resolved bytes in item_content. Reschedule sets fetched back
// to false, and Fetcher.Fetch resolves content whether or not fetched is
// set, so a retry resolves the content again.
func (r *PendingRepository) MarkFetched(ctx context.Context, id uuid.UUID, content []byte) error {
	query := `UPDATE pending_messages SET fetched = true, item_content = $2 WHERE id = $1`
	_, err := r.client.ExecContext(ctx, query, id, content)
	if err != nil {
		return fmt.Errorf("failed to mark pending message fetched: %w", err)
	}
	return nil
}

// Delete removes a pending row once it has been committed or rejected.
func (r *PendingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.client.ExecContext(ctx, `DELETE FROM pending_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending message: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPendingNotFound
	}
	return nil
}

// GetByItemHash retrieves the pending row for an item_hash, if any.
func (r *PendingRepository) GetByItemHash(ctx context.Context, itemHash string) (*PendingMessage, error) {
	query := `
		SELECT id, item_hash, sender, chain, type, item_type, item_content,
			signature, msg_time, channel, retries, next_attempt, check_message,
			fetched, reception_time, origin, tx_hash
		FROM pending_messages
		WHERE item_hash = $1`

	pm := &PendingMessage{}
	err := r.client.QueryRowContext(ctx, query, itemHash).Scan(
		&pm.ID, &pm.ItemHash, &pm.Sender, &pm.Chain, &pm.Type, &pm.ItemType, &pm.ItemContent,
		&pm.Signature, &pm.Time, &pm.Channel, &pm.Retries, &pm.NextAttempt, &pm.CheckMessage,
		&pm.Fetched, &pm.ReceptionTime, &pm.Origin, &pm.TxHash,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending message: %w", err)
	}
	return pm, nil
}

// Peek returns up to limit pending messages, due or not, earliest
// next_attempt first, without claiming or locking them — a read-only
// snapshot for admin introspection rather than the worker pool's leasing
// path.
func (r *PendingRepository) Peek(ctx context.Context, limit int) ([]*PendingMessage, error) {
	query := `
		SELECT id, item_hash, sender, chain, type, item_type, item_content,
			signature, msg_time, channel, retries, next_attempt, check_message,
			fetched, reception_time, origin, tx_hash
		FROM pending_messages
		ORDER BY next_attempt ASC
		LIMIT $1`

	rows, err := r.client.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to peek pending messages: %w", err)
	}
	defer rows.Close()

	var out []*PendingMessage
	for rows.Next() {
		pm := &PendingMessage{}
		if err := rows.Scan(
			&pm.ID, &pm.ItemHash, &pm.Sender, &pm.Chain, &pm.Type, &pm.ItemType, &pm.ItemContent,
			&pm.Signature, &pm.Time, &pm.Channel, &pm.Retries, &pm.NextAttempt, &pm.CheckMessage,
			&pm.Fetched, &pm.ReceptionTime, &pm.Origin, &pm.TxHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending message: %w", err)
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

// Count returns the number of rows currently queued, for admin introspection.
func (r *PendingRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.client.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_messages`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending messages: %w", err)
	}
	return count, nil
}
