package storage

import (
	"context"
	"testing"

	"github.com/alephnode/ccn/pkg/database"
)

func TestServiceResolveInline(t *testing.T) {
	local, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	svc := NewService(local, nil)

	content, source, err := svc.Resolve(context.Background(), database.ItemTypeInline, "unused", []byte("hello"))
	if err != nil {
		t.Fatalf("resolve inline: %v", err)
	}
	if string(content) != "hello" {
		t.Fatalf("expected hello, got %q", content)
	}
	if source != SourceInline {
		t.Fatalf("expected SourceInline, got %v", source)
	}
}

func TestServiceResolveLocalHit(t *testing.T) {
	local, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	svc := NewService(local, nil)

	ctx := context.Background()
	if err := svc.Store(ctx, "hash1", []byte("payload")); err != nil {
		t.Fatalf("store: %v", err)
	}

	content, source, err := svc.Resolve(ctx, database.ItemTypeStorage, "hash1", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if string(content) != "payload" {
		t.Fatalf("expected payload, got %q", content)
	}
	if source != SourceLocal {
		t.Fatalf("expected SourceLocal, got %v", source)
	}
}

func TestServiceResolveMissingIsNotFound(t *testing.T) {
	local, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	svc := NewService(local, nil)

	_, _, err = svc.Resolve(context.Background(), database.ItemTypeStorage, "missing", nil)
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
