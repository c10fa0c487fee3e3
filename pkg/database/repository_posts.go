// Copyright 2025 Alephnode Protocol
//
// Post repository - original/amend document CRUD.

package database

import (
	"context"
	"database/sql"
	"fmt"
)

// PostRepository handles POST content-handler persistence.
type PostRepository struct {
	client *Client
}

// NewPostRepository creates a new post repository.
func NewPostRepository(client *Client) *PostRepository {
	return &PostRepository{client: client}
}

// Create inserts a new original post.
func (r *PostRepository) Create(ctx context.Context, post *Post) error {
	query := `
		INSERT INTO posts (
			item_hash, owner, post_type, ref, amends, channel, content,
			creation_datetime, latest_amend
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (item_hash) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query,
		post.ItemHash, post.Owner, post.Type, post.Ref, post.Amends, post.Channel,
		post.Content, post.CreationDatetime, post.LatestAmend,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// Get retrieves a post by item_hash.
func (r *PostRepository) Get(ctx context.Context, itemHash string) (*Post, error) {
	query := `
		SELECT item_hash, owner, post_type, ref, amends, channel, content,
			creation_datetime, latest_amend
		FROM posts
		WHERE item_hash = $1`

	post := &Post{}
	err := r.client.QueryRowContext(ctx, query, itemHash).Scan(
		&post.ItemHash, &post.Owner, &post.Type, &post.Ref, &post.Amends, &post.Channel,
		&post.Content, &post.CreationDatetime, &post.LatestAmend,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// SetLatestAmend updates the original post's pointer to its current amend.
func (r *PostRepository) SetLatestAmend(ctx context.Context, originalHash, amendHash string) error {
	result, err := r.client.ExecContext(ctx, `UPDATE posts SET latest_amend = $2 WHERE item_hash = $1`, originalHash, amendHash)
	if err != nil {
		return fmt.Errorf("failed to set latest amend: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPostNotFound
	}
	return nil
}

// ListAmends returns every post that names originalHash as its amends target.
func (r *PostRepository) ListAmends(ctx context.Context, originalHash string) ([]*Post, error) {
	query := `
		SELECT item_hash, owner, post_type, ref, amends, channel, content,
			creation_datetime, latest_amend
		FROM posts
		WHERE amends = $1
		ORDER BY creation_datetime ASC`

	rows, err := r.client.QueryContext(ctx, query, originalHash)
	if err != nil {
		return nil, fmt.Errorf("failed to list amends: %w", err)
	}
	defer rows.Close()

	var out []*Post
	for rows.Next() {
		post := &Post{}
		if err := rows.Scan(
			&post.ItemHash, &post.Owner, &post.Type, &post.Ref, &post.Amends, &post.Channel,
			&post.Content, &post.CreationDatetime, &post.LatestAmend,
		); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		out = append(out, post)
	}
	return out, rows.Err()
}

// ListByRef returns every post sharing the given ref tag, newest first.
func (r *PostRepository) ListByRef(ctx context.Context, ref string) ([]*Post, error) {
	query := `
		SELECT item_hash, owner, post_type, ref, amends, channel, content,
			creation_datetime, latest_amend
		FROM posts
		WHERE ref = $1
		ORDER BY creation_datetime DESC`

	rows, err := r.client.QueryContext(ctx, query, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts by ref: %w", err)
	}
	defer rows.Close()

	var out []*Post
	for rows.Next() {
		post := &Post{}
		if err := rows.Scan(
			&post.ItemHash, &post.Owner, &post.Type, &post.Ref, &post.Amends, &post.Channel,
			&post.Content, &post.CreationDatetime, &post.LatestAmend,
		); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		out = append(out, post)
	}
	return out, rows.Err()
}
