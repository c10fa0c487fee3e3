// Copyright 2025 Alephnode Protocol
//
// Aggregate repository - the merged per-(owner,key) document and the
// individual element contributions that were folded into it.

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AggregateRepository handles AGGREGATE content-handler persistence.
type AggregateRepository struct {
	client *Client
}

// NewAggregateRepository creates a new aggregate repository.
func NewAggregateRepository(client *Client) *AggregateRepository {
	return &AggregateRepository{client: client}
}

// Get retrieves the merged aggregate document for (owner, key).
func (r *AggregateRepository) Get(ctx context.Context, owner, key string) (*Aggregate, error) {
	query := `
		SELECT owner, key, content, created, last_rev_hash, last_rev_time, dirty
		FROM aggregates
		WHERE owner = $1 AND key = $2`

	agg := &Aggregate{}
	err := r.client.QueryRowContext(ctx, query, owner, key).Scan(
		&agg.Owner, &agg.Key, &agg.Content, &agg.Created, &agg.LastRevHash, &agg.LastRevTime, &agg.Dirty,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}
	return agg, nil
}

// Upsert writes the fully recomputed merge result for (owner, key).
func (r *AggregateRepository) Upsert(ctx context.Context, agg *Aggregate) error {
	query := `
		INSERT INTO aggregates (owner, key, content, created, last_rev_hash, last_rev_time, dirty)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner, key) DO UPDATE SET
			content = EXCLUDED.content,
			created = EXCLUDED.created,
			last_rev_hash = EXCLUDED.last_rev_hash,
			last_rev_time = EXCLUDED.last_rev_time,
			dirty = EXCLUDED.dirty`

	_, err := r.client.ExecContext(ctx, query,
		agg.Owner, agg.Key, agg.Content, agg.Created, agg.LastRevHash, agg.LastRevTime, agg.Dirty,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert aggregate: %w", err)
	}
	return nil
}

// AppendContent merges newContent into the existing aggregate's content in
// place (the append fast path) without a full element replay, and advances
// the revision pointer.
func (r *AggregateRepository) AppendContent(ctx context.Context, owner, key string, merged json.RawMessage, revHash string, revTime time.Time) error {
	query := `
		UPDATE aggregates
		SET content = $3, last_rev_hash = $4, last_rev_time = $5
		WHERE owner = $1 AND key = $2`

	result, err := r.client.ExecContext(ctx, query, owner, key, merged, revHash, revTime)
	if err != nil {
		return fmt.Errorf("failed to append aggregate content: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAggregateNotFound
	}
	return nil
}

// MarkDirty flags an aggregate as needing a full recompute pass.
func (r *AggregateRepository) MarkDirty(ctx context.Context, owner, key string) error {
	_, err := r.client.ExecContext(ctx, `UPDATE aggregates SET dirty = true WHERE owner = $1 AND key = $2`, owner, key)
	if err != nil {
		return fmt.Errorf("failed to mark aggregate dirty: %w", err)
	}
	return nil
}

// ClearDirty clears the dirty flag after a recompute pass completes.
func (r *AggregateRepository) ClearDirty(ctx context.Context, owner, key string) error {
	_, err := r.client.ExecContext(ctx, `UPDATE aggregates SET dirty = false WHERE owner = $1 AND key = $2`, owner, key)
	if err != nil {
		return fmt.Errorf("failed to clear aggregate dirty flag: %w", err)
	}
	return nil
}

// AddElement inserts one element contribution. Conflicts on item_hash are
// not errors: elements are immutable once recorded.
func (r *AggregateRepository) AddElement(ctx context.Context, el *AggregateElement) error {
	query := `
		INSERT INTO aggregate_elements (item_hash, owner, key, creation_datetime, content, forgotten)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_hash) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query, el.ItemHash, el.Owner, el.Key, el.CreationDatetime, el.Content, el.Forgotten)
	if err != nil {
		return fmt.Errorf("failed to insert aggregate element: %w", err)
	}
	return nil
}

// ListElements returns every non-forgotten element for (owner, key) in
// creation_datetime order, the input to a full recompute pass.
func (r *AggregateRepository) ListElements(ctx context.Context, owner, key string) ([]*AggregateElement, error) {
	query := `
		SELECT item_hash, owner, key, creation_datetime, content, forgotten
		FROM aggregate_elements
		WHERE owner = $1 AND key = $2 AND forgotten = false
		ORDER BY creation_datetime ASC`

	rows, err := r.client.QueryContext(ctx, query, owner, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list aggregate elements: %w", err)
	}
	defer rows.Close()

	var out []*AggregateElement
	for rows.Next() {
		el := &AggregateElement{}
		if err := rows.Scan(&el.ItemHash, &el.Owner, &el.Key, &el.CreationDatetime, &el.Content, &el.Forgotten); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate element: %w", err)
		}
		out = append(out, el)
	}
	return out, rows.Err()
}

// MarkElementForgotten tombstones one element contribution so future
// recompute passes exclude it.
func (r *AggregateRepository) MarkElementForgotten(ctx context.Context, itemHash string) error {
	result, err := r.client.ExecContext(ctx, `UPDATE aggregate_elements SET forgotten = true WHERE item_hash = $1`, itemHash)
	if err != nil {
		return fmt.Errorf("failed to mark aggregate element forgotten: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CountDirty returns how many aggregates currently need a recompute pass.
func (r *AggregateRepository) CountDirty(ctx context.Context) (int, error) {
	var count int
	err := r.client.QueryRowContext(ctx, `SELECT COUNT(*) FROM aggregates WHERE dirty = true`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dirty aggregates: %w", err)
	}
	return count, nil
}

// AggregateKey identifies one (owner, key) aggregate.
type AggregateKey struct {
	Owner string
	Key   string
}

// ListDirty returns up to limit (owner, key) pairs currently marked
// dirty, the work list for a background recompute sweep (spec.md A2).
func (r *AggregateRepository) ListDirty(ctx context.Context, limit int) ([]AggregateKey, error) {
	rows, err := r.client.QueryContext(ctx, `SELECT owner, key FROM aggregates WHERE dirty = true LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dirty aggregates: %w", err)
	}
	defer rows.Close()

	var out []AggregateKey
	for rows.Next() {
		var k AggregateKey
		if err := rows.Scan(&k.Owner, &k.Key); err != nil {
			return nil, fmt.Errorf("failed to scan dirty aggregate key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
