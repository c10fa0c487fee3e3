// Copyright 2025 Alephnode Protocol
//
// Shared permission checking (spec.md 4.4's check_permissions). By
// default the sender must equal the content's declared address.
// Delegation is supported via an AGGREGATE under key
// "security.authorizations": {"authorizations": [{"address": "...",
// "chains": ["..."]}, ...]} lets a delegate act on the owner's behalf.

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/pipeline"
)

const securityAggregateKey = "security"

type securityContent struct {
	Authorizations []authorization `json:"authorizations"`
}

type authorization struct {
	Address string   `json:"address"`
	Chains  []string `json:"chains,omitempty"`
}

// CheckOwnerOrDelegate verifies sender is owner, or is authorized to act
// for owner on chain via owner's security.authorizations aggregate.
func CheckOwnerOrDelegate(ctx context.Context, repo *database.AggregateRepository, owner, sender, chain string) error {
	if strings.EqualFold(owner, sender) {
		return nil
	}

	agg, err := repo.Get(ctx, owner, securityAggregateKey)
	if err == database.ErrAggregateNotFound {
		return pipeline.ErrPermissionDenied
	}
	if err != nil {
		return fmt.Errorf("load security aggregate for %s: %w", owner, err)
	}

	var sec securityContent
	if err := json.Unmarshal(agg.Content, &sec); err != nil {
		return fmt.Errorf("decode security aggregate for %s: %w", owner, err)
	}

	for _, a := range sec.Authorizations {
		if !strings.EqualFold(a.Address, sender) {
			continue
		}
		if len(a.Chains) == 0 {
			return nil
		}
		for _, c := range a.Chains {
			if strings.EqualFold(c, chain) {
				return nil
			}
		}
	}
	return pipeline.ErrPermissionDenied
}
