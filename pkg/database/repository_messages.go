// Copyright 2025 Alephnode Protocol
//
// Message repository - CRUD for the canonical message log and its
// per-item_hash status row.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// MessageRepository handles canonical message and status operations.
type MessageRepository struct {
	client *Client
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(client *Client) *MessageRepository {
	return &MessageRepository{client: client}
}

// Create inserts a canonical message row. Callers must have already
// verified uniqueness of item_hash via InsertStatusIfAbsent.
func (r *MessageRepository) Create(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (
			item_hash, sender, chain, type, item_type, item_content,
			signature, msg_time, channel, content, size_bytes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (item_hash) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query,
		msg.ItemHash, msg.Sender, msg.Chain, msg.Type, msg.ItemType, msg.ItemContent,
		msg.Signature, msg.Time, msg.Channel, msg.Content, msg.Size, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// Get retrieves a canonical message by item_hash.
func (r *MessageRepository) Get(ctx context.Context, itemHash string) (*Message, error) {
	query := `
		SELECT item_hash, sender, chain, type, item_type, item_content,
			signature, msg_time, channel, content, size_bytes, created_at
		FROM messages
		WHERE item_hash = $1`

	msg := &Message{}
	err := r.client.QueryRowContext(ctx, query, itemHash).Scan(
		&msg.ItemHash, &msg.Sender, &msg.Chain, &msg.Type, &msg.ItemType, &msg.ItemContent,
		&msg.Signature, &msg.Time, &msg.Channel, &msg.Content, &msg.Size, &msg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListBySender returns messages sent by the given address, newest first.
func (r *MessageRepository) ListBySender(ctx context.Context, sender string, limit int) ([]*Message, error) {
	query := `
		SELECT item_hash, sender, chain, type, item_type, item_content,
			signature, msg_time, channel, content, size_bytes, created_at
		FROM messages
		WHERE sender = $1
		ORDER BY msg_time DESC
		LIMIT $2`

	rows, err := r.client.QueryContext(ctx, query, sender, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages by sender: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(
			&msg.ItemHash, &msg.Sender, &msg.Chain, &msg.Type, &msg.ItemType, &msg.ItemContent,
			&msg.Signature, &msg.Time, &msg.Channel, &msg.Content, &msg.Size, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// InsertStatusIfAbsent creates the status row for a newly-seen item_hash in
// PENDING state. Returns false (without error) if the item_hash is already
// known, so callers can distinguish first-sight from a duplicate delivery.
func (r *MessageRepository) InsertStatusIfAbsent(ctx context.Context, itemHash string, receptionTime time.Time) (bool, error) {
	query := `
		INSERT INTO message_status (item_hash, status, reception_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_hash) DO NOTHING`

	result, err := r.client.ExecContext(ctx, query, itemHash, StatusPending, receptionTime)
	if err != nil {
		return false, fmt.Errorf("failed to insert message status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows == 1, nil
}

// GetStatus retrieves the status row for an item_hash.
func (r *MessageRepository) GetStatus(ctx context.Context, itemHash string) (*MessageStatusRow, error) {
	query := `
		SELECT item_hash, status, reception_time, last_transition_time, error_code, error_details, forgotten_by
		FROM message_status
		WHERE item_hash = $1`

	row := &MessageStatusRow{}
	err := r.client.QueryRowContext(ctx, query, itemHash).Scan(
		&row.ItemHash, &row.Status, &row.ReceptionTime, &row.LastTransitionTime,
		&row.ErrorCode, &row.ErrorDetails, pq.Array(&row.ForgottenBy),
	)
	if err == sql.ErrNoRows {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message status: %w", err)
	}
	return row, nil
}

// ListItemHashesByStatus returns up to limit item_hashes currently in
// status, the work list for the garbage-collection sweep's REMOVING to
// REMOVED check.
func (r *MessageRepository) ListItemHashesByStatus(ctx context.Context, status Status, limit int) ([]string, error) {
	rows, err := r.client.QueryContext(ctx, `SELECT item_hash FROM message_status WHERE status = $1 LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list item hashes by status: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan item hash: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// TransitionStatus moves an item_hash's status row to a new state.
func (r *MessageRepository) TransitionStatus(ctx context.Context, itemHash string, status Status, errorCode sql.NullInt64, errorDetails []byte) error {
	query := `
		UPDATE message_status
		SET status = $2, last_transition_time = $3, error_code = $4, error_details = $5
		WHERE item_hash = $1`

	result, err := r.client.ExecContext(ctx, query, itemHash, status, time.Now(), errorCode, errorDetails)
	if err != nil {
		return fmt.Errorf("failed to transition message status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrStatusNotFound
	}
	return nil
}

// MarkForgotten transitions itemHash to FORGOTTEN, erases its stored
// content (spec.md 3.2: FORGOTTEN is "terminal, content erased"), and
// appends forgetHash to its forgotten_by list. Safe to call repeatedly
// on the same target: forgetHash is appended every time, including
// when itemHash is already FORGOTTEN (spec.md 4.9), while the content
// columns stay erased.
func (r *MessageRepository) MarkForgotten(ctx context.Context, itemHash, forgetHash string) error {
	eraseQuery := `UPDATE messages SET item_content = NULL, content = 'null'::jsonb WHERE item_hash = $1`
	if _, err := r.client.ExecContext(ctx, eraseQuery, itemHash); err != nil {
		return fmt.Errorf("failed to erase forgotten message content: %w", err)
	}

	statusQuery := `
		UPDATE message_status
		SET status = $2, last_transition_time = $3, forgotten_by = array_append(forgotten_by, $4)
		WHERE item_hash = $1`

	result, err := r.client.ExecContext(ctx, statusQuery, itemHash, StatusForgotten, time.Now(), forgetHash)
	if err != nil {
		return fmt.Errorf("failed to transition message status to forgotten: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrStatusNotFound
	}
	return nil
}

// AppendForgottenBy records forgetHash against an already-terminal
// target (REJECTED/REMOVED/FORGOTTEN) without touching its status or
// content: re-forgetting something that was never PROCESSED still owes
// the list an entry, but there is no side effect left to redo.
func (r *MessageRepository) AppendForgottenBy(ctx context.Context, itemHash, forgetHash string) error {
	query := `UPDATE message_status SET forgotten_by = array_append(forgotten_by, $2) WHERE item_hash = $1`
	result, err := r.client.ExecContext(ctx, query, itemHash, forgetHash)
	if err != nil {
		return fmt.Errorf("failed to append forgotten_by: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrStatusNotFound
	}
	return nil
}
