// Copyright 2025 Alephnode Protocol
//
// shallowMerge implements the ⊕ operator from spec.md 4.5: a shallow,
// top-level key replace. Later values win; nested objects are not
// recursively merged, matching the original aggregate semantics.

package handlers

import "encoding/json"

func shallowMerge(base, overlay json.RawMessage) (json.RawMessage, error) {
	baseMap := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &baseMap); err != nil {
			return nil, err
		}
	}

	overlayMap := map[string]json.RawMessage{}
	if len(overlay) > 0 {
		if err := json.Unmarshal(overlay, &overlayMap); err != nil {
			return nil, err
		}
	}

	for k, v := range overlayMap {
		baseMap[k] = v
	}

	return json.Marshal(baseMap)
}
