// Copyright 2025 Alephnode Protocol

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcstorage "google.golang.org/api/storage/v1"
)

// RemoteBackend stores content in a Google Cloud Storage bucket, used
// for overflow when local disk is not the system of record (e.g. a
// horizontally scaled fetcher pool sharing one content store).
type RemoteBackend struct {
	svc    *gcstorage.ObjectsService
	bucket string
}

// NewRemoteBackend constructs a RemoteBackend against bucket, loading
// service-account credentials from credentialsFile.
func NewRemoteBackend(ctx context.Context, bucket, credentialsFile string) (*RemoteBackend, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcstorage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &RemoteBackend{svc: client.Objects, bucket: bucket}, nil
}

// Get implements Backend.
func (b *RemoteBackend) Get(ctx context.Context, hash string) ([]byte, error) {
	resp, err := b.svc.Get(b.bucket, hash).Context(ctx).Download()
	if err != nil {
		if isNotFoundErr(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download gcs object %s: %w", hash, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gcs object body %s: %w", hash, err)
	}
	return data, nil
}

// Put implements Backend.
func (b *RemoteBackend) Put(ctx context.Context, hash string, content []byte) error {
	obj := &gcstorage.Object{Name: hash, Bucket: b.bucket}
	_, err := b.svc.Insert(b.bucket, obj).Media(bytes.NewReader(content)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("upload gcs object %s: %w", hash, err)
	}
	return nil
}

// Delete implements Backend.
func (b *RemoteBackend) Delete(ctx context.Context, hash string) error {
	err := b.svc.Delete(b.bucket, hash).Context(ctx).Do()
	if err != nil && !isNotFoundErr(err) {
		return fmt.Errorf("delete gcs object %s: %w", hash, err)
	}
	return nil
}

// Exists implements Backend.
func (b *RemoteBackend) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := b.svc.Get(b.bucket, hash).Context(ctx).Do()
	if err != nil {
		if isNotFoundErr(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat gcs object %s: %w", hash, err)
	}
	return true, nil
}

func isNotFoundErr(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}
