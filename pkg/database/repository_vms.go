// Copyright 2025 Alephnode Protocol
//
// VM repository - PROGRAM/INSTANCE descriptor CRUD and amend-chain
// head tracking.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// VmRepository handles PROGRAM/INSTANCE content-handler persistence.
type VmRepository struct {
	client *Client
}

// NewVmRepository creates a new VM repository.
func NewVmRepository(client *Client) *VmRepository {
	return &VmRepository{client: client}
}

// Create inserts a new VM descriptor.
func (r *VmRepository) Create(ctx context.Context, d *VmDescriptor) error {
	query := `
		INSERT INTO vm_descriptors (
			item_hash, owner, vm_type, replaces, allow_amend, code_ref,
			runtime_ref, data_ref, parent_ref, content, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (item_hash) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query,
		d.ItemHash, d.Owner, d.Type, d.Replaces, d.AllowAmend, d.CodeRef,
		d.RuntimeRef, d.DataRef, d.ParentRef, d.Content, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vm descriptor: %w", err)
	}
	return nil
}

// Get retrieves a VM descriptor by item_hash.
func (r *VmRepository) Get(ctx context.Context, itemHash string) (*VmDescriptor, error) {
	query := `
		SELECT item_hash, owner, vm_type, replaces, allow_amend, code_ref,
			runtime_ref, data_ref, parent_ref, content, created_at
		FROM vm_descriptors
		WHERE item_hash = $1`

	d := &VmDescriptor{}
	err := r.client.QueryRowContext(ctx, query, itemHash).Scan(
		&d.ItemHash, &d.Owner, &d.Type, &d.Replaces, &d.AllowAmend, &d.CodeRef,
		&d.RuntimeRef, &d.DataRef, &d.ParentRef, &d.Content, &d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrVmNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vm descriptor: %w", err)
	}
	return d, nil
}

// GetVersion retrieves the current amend-chain head for (owner, refKey).
func (r *VmRepository) GetVersion(ctx context.Context, owner, refKey string) (*VmVersion, error) {
	v := &VmVersion{}
	err := r.client.QueryRowContext(ctx,
		`SELECT owner, ref_key, current_version, last_updated FROM vm_versions WHERE owner = $1 AND ref_key = $2`,
		owner, refKey,
	).Scan(&v.Owner, &v.RefKey, &v.CurrentVersion, &v.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrVmNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vm version: %w", err)
	}
	return v, nil
}

// SetVersion advances the amend-chain head for (owner, refKey).
func (r *VmRepository) SetVersion(ctx context.Context, owner, refKey, currentVersion string) error {
	query := `
		INSERT INTO vm_versions (owner, ref_key, current_version, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, ref_key) DO UPDATE SET
			current_version = EXCLUDED.current_version,
			last_updated = EXCLUDED.last_updated`

	_, err := r.client.ExecContext(ctx, query, owner, refKey, currentVersion, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set vm version: %w", err)
	}
	return nil
}
