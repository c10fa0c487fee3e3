package ingest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alephnode/ccn/pkg/config"
	"github.com/alephnode/ccn/pkg/database"
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

type fakeReader struct {
	chain string
	txs   []SyncTx
	next  int64
}

func (f *fakeReader) Chain() string { return f.chain }
func (f *fakeReader) Poll(ctx context.Context, fromHeight int64) ([]SyncTx, int64, error) {
	return f.txs, f.next, nil
}

func TestIngestContractEventIsIdempotent(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()

	chainTx := database.NewChainTxRepository(testClient)
	pending := database.NewPendingRepository(testClient)
	local, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	svc := storage.NewService(local, nil)

	txHash := "0xtx" + uuid()
	reader := &fakeReader{chain: "ethereum", txs: []SyncTx{{
		Hash:            txHash,
		Chain:           "ethereum",
		Height:          100,
		Datetime:        time.Now(),
		Publisher:       "0xcontract",
		Protocol:        "ethereum",
		ProtocolVersion: 1,
		Kind:            SyncKindContractEvent,
		Event: &ContractEvent{
			Sender:   "0xsender" + uuid(),
			Time:     time.Now(),
			MsgType:  database.MessageTypeAggregate,
			ItemType: database.ItemTypeInline,
			Content:  []byte(`{"key":"profile","address":"0xsender","content":{"name":"bob"}}`),
		},
	}}, next: 101}

	ig := New([]ChainReader{reader}, chainTx, pending, svc, nil)

	ig.PollOnce(ctx)
	first, err := pending.Count(ctx)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}

	// Re-ingesting the same tx hash must be a no-op: pending count does
	// not grow a second time.
	ig.PollOnce(ctx)
	second, err := pending.Count(ctx)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if second != first {
		t.Fatalf("expected re-ingestion to be a no-op, count went from %d to %d", first, second)
	}

	if _, err := chainTx.Get(ctx, txHash); err != nil {
		t.Fatalf("expected chain transaction to be recorded: %v", err)
	}
}

func uuid() string {
	return time.Now().Format("20060102150405.000000000")
}
