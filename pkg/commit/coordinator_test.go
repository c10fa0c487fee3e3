package commit

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/alephnode/ccn/pkg/config"
	"github.com/alephnode/ccn/pkg/cost"
	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/handlers"
	"github.com/alephnode/ccn/pkg/message"
	"github.com/alephnode/ccn/pkg/pipeline"
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

func noopStorageDeps(repos *database.Repositories) handlers.Deps {
	return handlers.Deps{Repos: repos}
}

func TestCommitAggregateProcessesAndDeletesPending(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()

	owner := "0xowner" + uuid()
	itemHash := "hash" + uuid()
	content := message.AggregateContent{Key: "profile", Address: owner, Content: json.RawMessage(`{"name":"alice"}`)}
	raw, _ := json.Marshal(content)

	repos := database.NewRepositories(testClient)
	if _, err := repos.Messages.InsertStatusIfAbsent(ctx, itemHash, time.Now()); err != nil {
		t.Fatalf("insert status: %v", err)
	}

	coord := New(testClient, noopStorageDeps)
	err := coord.Commit(ctx, Input{
		ItemHash:   itemHash,
		Sender:     owner,
		Chain:      "ethereum",
		Type:       database.MessageTypeAggregate,
		ItemType:   database.ItemTypeInline,
		Time:       time.Now(),
		Content:    content,
		RawContent: raw,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	status, err := repos.Messages.GetStatus(ctx, itemHash)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Status != database.StatusProcessed {
		t.Fatalf("expected PROCESSED, got %s", status.Status)
	}

	agg, err := repos.Aggregates.Get(ctx, owner, "profile")
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	var out map[string]string
	json.Unmarshal(agg.Content, &out)
	if out["name"] != "alice" {
		t.Fatalf("unexpected aggregate content: %s", agg.Content)
	}
}

func TestCommitRejectsAmendOfAmend(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()

	owner := "0xowner" + uuid()
	originalHash := "hash" + uuid()
	amendHash := "hash" + uuid()
	amendOfAmendHash := "hash" + uuid()

	repos := database.NewRepositories(testClient)
	coord := New(testClient, noopStorageDeps)

	// original post
	original := message.PostContent{Type: "blog", Address: owner, Content: json.RawMessage(`{"title":"v1"}`)}
	rawOriginal, _ := json.Marshal(original)
	mustInsertStatus(t, repos, ctx, originalHash)
	if err := coord.Commit(ctx, Input{
		ItemHash: originalHash, Sender: owner, Chain: "ethereum",
		Type: database.MessageTypePost, ItemType: database.ItemTypeInline,
		Time: time.Now(), Content: original, RawContent: rawOriginal,
	}); err != nil {
		t.Fatalf("commit original: %v", err)
	}

	// valid amend of the original
	amend := message.PostContent{Type: "amend", Address: owner, Ref: originalHash, Content: json.RawMessage(`{"title":"v2"}`)}
	rawAmend, _ := json.Marshal(amend)
	mustInsertStatus(t, repos, ctx, amendHash)
	if err := coord.Commit(ctx, Input{
		ItemHash: amendHash, Sender: owner, Chain: "ethereum",
		Type: database.MessageTypePost, ItemType: database.ItemTypeInline,
		Time: time.Now(), Content: amend, RawContent: rawAmend,
	}); err != nil {
		t.Fatalf("commit amend: %v", err)
	}

	// an amend targeting the amend must be rejected, not retried
	amendOfAmend := message.PostContent{Type: "amend", Address: owner, Ref: amendHash, Content: json.RawMessage(`{"title":"v3"}`)}
	rawAmendOfAmend, _ := json.Marshal(amendOfAmend)
	mustInsertStatus(t, repos, ctx, amendOfAmendHash)
	err := coord.Commit(ctx, Input{
		ItemHash: amendOfAmendHash, Sender: owner, Chain: "ethereum",
		Type: database.MessageTypePost, ItemType: database.ItemTypeInline,
		Time: time.Now(), Content: amendOfAmend, RawContent: rawAmendOfAmend,
	})
	if err != nil {
		t.Fatalf("commit should classify rejection, not return an error: %v", err)
	}

	status, err := repos.Messages.GetStatus(ctx, amendOfAmendHash)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Status != database.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", status.Status)
	}
	if !status.ErrorCode.Valid || pipeline.Code(status.ErrorCode.Int64) != pipeline.CodeCannotAmendAmend {
		t.Fatalf("expected cannot-amend-amend error code, got %v", status.ErrorCode)
	}
}

func TestForgetIsIdempotentAndTracksForgottenBy(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()

	owner := "0xowner" + uuid()
	aggHash := "hash" + uuid()
	forgetHash1 := "hash" + uuid()
	forgetHash2 := "hash" + uuid()

	repos := database.NewRepositories(testClient)
	coord := New(testClient, noopStorageDeps)

	agg := message.AggregateContent{Key: "profile", Address: owner, Content: json.RawMessage(`{"name":"alice"}`)}
	rawAgg, _ := json.Marshal(agg)
	mustInsertStatus(t, repos, ctx, aggHash)
	if err := coord.Commit(ctx, Input{
		ItemHash: aggHash, Sender: owner, Chain: "ethereum",
		Type: database.MessageTypeAggregate, ItemType: database.ItemTypeInline,
		Time: time.Now(), Content: agg, RawContent: rawAgg,
	}); err != nil {
		t.Fatalf("commit aggregate: %v", err)
	}

	forget := message.ForgetContent{Address: owner, Hashes: []string{aggHash}}
	rawForget, _ := json.Marshal(forget)

	mustInsertStatus(t, repos, ctx, forgetHash1)
	if err := coord.Commit(ctx, Input{
		ItemHash: forgetHash1, Sender: owner, Chain: "ethereum",
		Type: database.MessageTypeForget, ItemType: database.ItemTypeInline,
		Time: time.Now(), Content: forget, RawContent: rawForget,
	}); err != nil {
		t.Fatalf("commit first forget: %v", err)
	}

	status, err := repos.Messages.GetStatus(ctx, aggHash)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Status != database.StatusForgotten {
		t.Fatalf("expected FORGOTTEN, got %s", status.Status)
	}
	if len(status.ForgottenBy) != 1 || status.ForgottenBy[0] != forgetHash1 {
		t.Fatalf("expected forgotten_by=[%s], got %v", forgetHash1, status.ForgottenBy)
	}

	msg, err := repos.Messages.Get(ctx, aggHash)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if msg.ItemContent != nil || string(msg.Content) != "null" {
		t.Fatalf("expected content erased, got item_content=%v content=%s", msg.ItemContent, msg.Content)
	}

	// A second forget of the same already-forgotten target must not
	// re-invoke AggregateHandler.ForgetMessage; it only appends to
	// forgotten_by.
	mustInsertStatus(t, repos, ctx, forgetHash2)
	if err := coord.Commit(ctx, Input{
		ItemHash: forgetHash2, Sender: owner, Chain: "ethereum",
		Type: database.MessageTypeForget, ItemType: database.ItemTypeInline,
		Time: time.Now(), Content: forget, RawContent: rawForget,
	}); err != nil {
		t.Fatalf("commit second forget: %v", err)
	}

	status, err = repos.Messages.GetStatus(ctx, aggHash)
	if err != nil {
		t.Fatalf("get status after second forget: %v", err)
	}
	if len(status.ForgottenBy) != 2 || status.ForgottenBy[1] != forgetHash2 {
		t.Fatalf("expected forgotten_by=[%s %s], got %v", forgetHash1, forgetHash2, status.ForgottenBy)
	}
}

func TestCommitRecordsCostRow(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}
	ctx := context.Background()

	address := "0xowner" + uuid()
	itemHash := "hash" + uuid()
	store := message.StoreContent{Address: address, ItemType: "storage", ItemHash: "file" + uuid(), Size: 1024}
	raw, _ := json.Marshal(store)

	repos := database.NewRepositories(testClient)
	mustInsertStatus(t, repos, ctx, itemHash)

	coord := New(testClient, noopStorageDeps)
	err := coord.Commit(ctx, Input{
		ItemHash: itemHash, Sender: address, Chain: "ethereum",
		Type: database.MessageTypeStore, ItemType: database.ItemTypeInline,
		Time: time.Now(), Content: store, RawContent: raw,
		Cost: &cost.Quote{Hold: 1.5, Stream: 0.25, Credit: 0},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	hold, stream, err := repos.Balances.SumCosts(ctx, address)
	if err != nil {
		t.Fatalf("sum costs: %v", err)
	}
	if hold != 1.5 || stream != 0.25 {
		t.Fatalf("expected hold=1.5 stream=0.25, got hold=%.2f stream=%.2f", hold, stream)
	}
}

func mustInsertStatus(t *testing.T, repos *database.Repositories, ctx context.Context, itemHash string) {
	t.Helper()
	if _, err := repos.Messages.InsertStatusIfAbsent(ctx, itemHash, time.Now()); err != nil {
		t.Fatalf("insert status: %v", err)
	}
}

func uuid() string {
	return time.Now().Format("20060102150405.000000000")
}
