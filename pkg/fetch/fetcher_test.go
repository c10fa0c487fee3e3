package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alephnode/ccn/pkg/contentaddress"
	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/message"
	"github.com/alephnode/ccn/pkg/pipeline"
	"github.com/alephnode/ccn/pkg/storage"
)

func TestFetchInlineAggregate(t *testing.T) {
	local, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	svc := storage.NewService(local, nil)
	f := NewFetcher(svc)

	content := []byte(`{"key":"profile","address":"0xabc","content":{"name":"a"}}`)
	hash := contentaddress.SHA256Hex(content)

	pend := &database.PendingMessage{
		ID:          uuid.New(),
		ItemHash:    hash,
		ItemContent: content,
		Time:        time.Now(),
	}

	result, err := f.Fetch(context.Background(), pend, database.MessageTypeAggregate, database.ItemTypeInline)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Source != storage.SourceInline {
		t.Fatalf("expected SourceInline, got %v", result.Source)
	}
	if _, ok := result.Content.(message.AggregateContent); !ok {
		t.Fatalf("expected AggregateContent, got %T", result.Content)
	}
}

func TestFetchStorageHashMismatchIsTerminal(t *testing.T) {
	local, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	svc := storage.NewService(local, nil)
	f := NewFetcher(svc)

	ctx := context.Background()
	if err := svc.Store(ctx, "declaredhash", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("store: %v", err)
	}

	pend := &database.PendingMessage{ID: uuid.New(), ItemHash: "declaredhash", Time: time.Now()}

	_, err = f.Fetch(ctx, pend, database.MessageTypePost, database.ItemTypeStorage)
	pipeErr, ok := pipeline.AsPipelineError(err)
	if !ok || pipeErr.Code != pipeline.CodeInvalidContentHash {
		t.Fatalf("expected InvalidContentHash pipeline error, got %v", err)
	}
	if pipeErr.Kind != pipeline.KindTerminal {
		t.Fatalf("expected terminal kind, got %v", pipeErr.Kind)
	}
}

func TestFetchContentUnavailableIsRetryable(t *testing.T) {
	local, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	svc := storage.NewService(local, nil)
	f := NewFetcher(svc)

	pend := &database.PendingMessage{ID: uuid.New(), ItemHash: "missinghash", Time: time.Now()}

	_, err = f.Fetch(context.Background(), pend, database.MessageTypePost, database.ItemTypeStorage)
	if !pipeline.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
