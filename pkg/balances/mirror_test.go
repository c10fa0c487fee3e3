package balances

import (
	"context"
	"testing"
	"time"

	"github.com/alephnode/ccn/pkg/database"
)

func TestDisabledMirrorIsNoOp(t *testing.T) {
	m, err := New(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("new disabled mirror: %v", err)
	}
	if m.IsEnabled() {
		t.Fatal("expected disabled mirror")
	}

	err = m.Sync(context.Background(), &database.AccountBalance{
		Chain:     "ethereum",
		Dapp:      "alephnode",
		Address:   "0xabc",
		Balance:   10,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("expected disabled mirror sync to be a no-op, got: %v", err)
	}
}

func TestEnabledMirrorRequiresProjectID(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true})
	if err == nil {
		t.Fatal("expected error when enabling the mirror without a project id")
	}
}

func TestDocIDIsStableForSameBalance(t *testing.T) {
	b := &database.AccountBalance{Chain: "ethereum", Dapp: "alephnode", Address: "0xabc"}
	if docID(b) != docID(b) {
		t.Fatal("expected docID to be deterministic")
	}
	other := &database.AccountBalance{Chain: "ethereum", Dapp: "alephnode", Address: "0xdef"}
	if docID(b) == docID(other) {
		t.Fatal("expected different addresses to produce different doc ids")
	}
}
