package contentaddress

import (
	"testing"

	"github.com/alephnode/ccn/pkg/database"
)

func TestVerifyInlineMatch(t *testing.T) {
	content := []byte(`{"a":1}`)
	hash := SHA256Hex(content)

	if err := Verify(database.ItemTypeInline, hash, content); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}

func TestVerifyInlineMismatch(t *testing.T) {
	content := []byte(`{"a":1}`)
	hash := SHA256Hex([]byte(`{"a":2}`))

	if err := Verify(database.ItemTypeInline, hash, content); err != ErrHashMismatch {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
}

func TestVerifyIPFSShape(t *testing.T) {
	cid := "QmTkzDwWqPbnAh5YiV5VwcTLnGdwSNsNTn2aDxdXBFca7D"
	if err := Verify(database.ItemTypeIPFS, cid, nil); err != nil {
		t.Fatalf("expected valid ipfs cid shape, got %v", err)
	}

	if err := Verify(database.ItemTypeIPFS, "not-a-cid", nil); err != ErrUnknownFamily {
		t.Fatalf("expected ErrUnknownFamily, got %v", err)
	}
}
