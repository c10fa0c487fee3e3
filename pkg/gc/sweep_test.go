package gc

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/alephnode/ccn/pkg/config"
	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/handlers"
	"github.com/alephnode/ccn/pkg/message"
	"github.com/alephnode/ccn/pkg/storage"
)

var testClient *database.Client

func TestMain(m *testing.M) {
	url := os.Getenv("CCN_TEST_DB")
	if url == "" {
		os.Exit(0)
	}

	cfg := &config.Config{Database: config.DatabaseSettings{URL: url}}
	client, err := database.NewClient(cfg)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testClient = client

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func uuid() string {
	return time.Now().Format("20060102150405.000000000")
}

func newTestSweeper(t *testing.T, repos *database.Repositories) *Sweeper {
	t.Helper()
	local, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	svc := storage.NewService(local, nil)
	agg := handlers.NewAggregateHandler(repos)
	return New(repos, svc, agg, nil)
}

func TestSweepSettlesRemovingMessageWithNoRemainingPins(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()
	repos := database.NewRepositories(testClient)

	fileHash := "file" + uuid()
	if err := repos.Files.Upsert(ctx, &database.StoredFile{Hash: fileHash, Size: 10, Type: database.FileTypeFile}); err != nil {
		t.Fatalf("upsert stored file: %v", err)
	}

	itemHash := "hash" + uuid()
	content := message.StoreContent{Address: "0xowner", ItemType: "storage", ItemHash: fileHash, Size: 10}
	raw, _ := json.Marshal(content)

	if _, err := repos.Messages.InsertStatusIfAbsent(ctx, itemHash, time.Now()); err != nil {
		t.Fatalf("insert status: %v", err)
	}
	if err := repos.Messages.Create(ctx, &database.Message{
		ItemHash:  itemHash,
		Sender:    "0xowner",
		Chain:     "ethereum",
		Type:      database.MessageTypeStore,
		ItemType:  database.ItemTypeInline,
		Time:      time.Now(),
		Content:   raw,
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("create message: %v", err)
	}
	if err := repos.Messages.TransitionStatus(ctx, itemHash, database.StatusRemoving, sql.NullInt64{}, nil); err != nil {
		t.Fatalf("transition to removing: %v", err)
	}

	sw := newTestSweeper(t, repos)
	sw.SweepOnce(ctx)

	row, err := repos.Messages.GetStatus(ctx, itemHash)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if row.Status != database.StatusRemoved {
		t.Fatalf("expected status REMOVED, got %s", row.Status)
	}
}

func TestSweepRecomputesDirtyAggregate(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()
	repos := database.NewRepositories(testClient)

	owner := "0xowner" + uuid()
	key := "profile"

	if err := repos.Aggregates.Upsert(ctx, &database.Aggregate{
		Owner:   owner,
		Key:     key,
		Content: json.RawMessage(`{}`),
		Created: time.Now(),
		Dirty:   true,
	}); err != nil {
		t.Fatalf("upsert aggregate: %v", err)
	}
	if err := repos.Aggregates.AddElement(ctx, &database.AggregateElement{
		ItemHash:         "elem" + uuid(),
		Owner:            owner,
		Key:              key,
		CreationDatetime: time.Now(),
		Content:          json.RawMessage(`{"name":"alice"}`),
	}); err != nil {
		t.Fatalf("add element: %v", err)
	}

	sw := newTestSweeper(t, repos)
	sw.SweepOnce(ctx)

	agg, err := repos.Aggregates.Get(ctx, owner, key)
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if agg.Dirty {
		t.Fatal("expected aggregate to be clean after recompute")
	}
}
