package handlers

import (
	"encoding/json"
	"testing"
)

func TestShallowMergeOverlayWins(t *testing.T) {
	base := json.RawMessage(`{"a":1,"b":2}`)
	overlay := json.RawMessage(`{"b":3,"c":4}`)

	merged, err := shallowMerge(base, overlay)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	var out map[string]int
	if err := json.Unmarshal(merged, &out); err != nil {
		t.Fatalf("unmarshal merged: %v", err)
	}
	if out["a"] != 1 || out["b"] != 3 || out["c"] != 4 {
		t.Fatalf("unexpected merge result: %v", out)
	}
}

func TestShallowMergeEmptyBase(t *testing.T) {
	merged, err := shallowMerge(nil, json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	var out map[string]int
	if err := json.Unmarshal(merged, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["a"] != 1 {
		t.Fatalf("expected a=1, got %v", out)
	}
}
