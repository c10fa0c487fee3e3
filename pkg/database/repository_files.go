// Copyright 2025 Alephnode Protocol
//
// File repository - stored blob metadata and pin-based garbage collection.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// FileRepository handles STORE content-handler persistence and pin lifecycle.
type FileRepository struct {
	client *Client
}

// NewFileRepository creates a new file repository.
func NewFileRepository(client *Client) *FileRepository {
	return &FileRepository{client: client}
}

// Upsert records (or confirms) a stored blob's metadata.
func (r *FileRepository) Upsert(ctx context.Context, f *StoredFile) error {
	query := `
		INSERT INTO stored_files (hash, size_bytes, file_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (hash) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query, f.Hash, f.Size, f.Type)
	if err != nil {
		return fmt.Errorf("failed to upsert stored file: %w", err)
	}
	return nil
}

// Get retrieves stored blob metadata by hash.
func (r *FileRepository) Get(ctx context.Context, hash string) (*StoredFile, error) {
	f := &StoredFile{}
	err := r.client.QueryRowContext(ctx, `SELECT hash, size_bytes, file_type FROM stored_files WHERE hash = $1`, hash).
		Scan(&f.Hash, &f.Size, &f.Type)
	if err == sql.ErrNoRows {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stored file: %w", err)
	}
	return f, nil
}

// AddPin records one reason fileHash must not be garbage collected.
func (r *FileRepository) AddPin(ctx context.Context, pin *FilePin) error {
	query := `
		INSERT INTO file_pins (file_hash, pin_type, owner, item_hash, tx_hash, delete_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return r.client.QueryRowContext(ctx, query,
		pin.FileHash, pin.Type, pin.Owner, pin.ItemHash, pin.TxHash, pin.DeleteBy, pin.CreatedAt,
	).Scan(&pin.ID)
}

// RemovePinsForItem removes every pin a given message contributed, used
// when a STORE message is forgotten.
func (r *FileRepository) RemovePinsForItem(ctx context.Context, itemHash string) error {
	_, err := r.client.ExecContext(ctx, `DELETE FROM file_pins WHERE item_hash = $1`, itemHash)
	if err != nil {
		return fmt.Errorf("failed to remove pins for item: %w", err)
	}
	return nil
}

// AddGracePeriodPin converts a message-pin deletion into a temporary
// grace-period pin so other nodes have time to re-fetch the content.
func (r *FileRepository) AddGracePeriodPin(ctx context.Context, fileHash string, deleteBy time.Time) error {
	query := `
		INSERT INTO file_pins (file_hash, pin_type, delete_by, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.client.ExecContext(ctx, query, fileHash, PinTypeGracePeriod, deleteBy, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add grace period pin: %w", err)
	}
	return nil
}

// CountPins returns how many pins currently reference fileHash.
func (r *FileRepository) CountPins(ctx context.Context, fileHash string) (int, error) {
	var count int
	err := r.client.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_pins WHERE file_hash = $1`, fileHash).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pins: %w", err)
	}
	return count, nil
}

// ListExpiredGracePins returns grace-period pins whose delete_by has
// elapsed, the candidate set for a garbage-collection sweep.
func (r *FileRepository) ListExpiredGracePins(ctx context.Context, now time.Time) ([]*FilePin, error) {
	query := `
		SELECT id, file_hash, pin_type, owner, item_hash, tx_hash, delete_by, created_at
		FROM file_pins
		WHERE pin_type = $1 AND delete_by <= $2`

	rows, err := r.client.QueryContext(ctx, query, PinTypeGracePeriod, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired grace pins: %w", err)
	}
	defer rows.Close()

	var out []*FilePin
	for rows.Next() {
		pin := &FilePin{}
		if err := rows.Scan(&pin.ID, &pin.FileHash, &pin.Type, &pin.Owner, &pin.ItemHash, &pin.TxHash, &pin.DeleteBy, &pin.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file pin: %w", err)
		}
		out = append(out, pin)
	}
	return out, rows.Err()
}

// DeletePin removes one expired pin row by ID.
func (r *FileRepository) DeletePin(ctx context.Context, id int64) error {
	_, err := r.client.ExecContext(ctx, `DELETE FROM file_pins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pin: %w", err)
	}
	return nil
}

// DeleteStoredFile removes a blob's metadata row once it has no pins left.
func (r *FileRepository) DeleteStoredFile(ctx context.Context, hash string) error {
	_, err := r.client.ExecContext(ctx, `DELETE FROM stored_files WHERE hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete stored file: %w", err)
	}
	return nil
}
