// Copyright 2025 Alephnode Protocol
//
// Content schemas, one per message type (spec.md 3.6). The envelope
// carries type as a tag; ParseContent dispatches to the matching
// schema instead of relying on runtime introspection.

package message

import (
	"encoding/json"
	"fmt"

	"github.com/alephnode/ccn/pkg/database"
)

// AggregateContent is the parsed content of an AGGREGATE message.
type AggregateContent struct {
	Key     string          `json:"key"`
	Address string          `json:"address"`
	Content json.RawMessage `json:"content"`
}

// PostContent is the parsed content of a POST message.
type PostContent struct {
	Type    string          `json:"type"`
	Address string          `json:"address"`
	Ref     string          `json:"ref,omitempty"`
	Content json.RawMessage `json:"content"`
}

// StoreContent is the parsed content of a STORE message.
type StoreContent struct {
	Address  string `json:"address"`
	ItemType string `json:"item_type"` // storage|ipfs for the target file
	ItemHash string `json:"item_hash"`
	Size     int64  `json:"size,omitempty"`
}

// VmContent is the parsed content of a PROGRAM or INSTANCE message.
type VmContent struct {
	Address    string   `json:"address"`
	Replaces   string   `json:"replaces,omitempty"`
	AllowAmend bool     `json:"allow_amend"`
	CodeRef    string   `json:"code,omitempty"`
	RuntimeRef string   `json:"runtime,omitempty"`
	DataRef    string   `json:"data,omitempty"`
	ParentRef  string   `json:"parent,omitempty"` // INSTANCE rootfs parent
	Volumes    []string `json:"volumes,omitempty"`
	Immutable  bool     `json:"immutable,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// ForgetContent is the parsed content of a FORGET message.
type ForgetContent struct {
	Address    string   `json:"address"`
	Hashes     []string `json:"hashes,omitempty"`
	Aggregates []string `json:"aggregates,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Addresser is implemented by every content schema that carries an
// `address` field, which check_permissions compares against the sender.
type Addresser interface {
	OwnerAddress() string
}

func (c AggregateContent) OwnerAddress() string { return c.Address }
func (c PostContent) OwnerAddress() string       { return c.Address }
func (c StoreContent) OwnerAddress() string      { return c.Address }
func (c VmContent) OwnerAddress() string         { return c.Address }
func (c ForgetContent) OwnerAddress() string     { return c.Address }

// ParseContent dispatches on msgType to the matching content schema and
// returns it as an `any` holding the concrete typed value.
func ParseContent(msgType database.MessageType, raw json.RawMessage) (any, error) {
	switch msgType {
	case database.MessageTypeAggregate:
		var c AggregateContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode aggregate content: %w", err)
		}
		return c, nil
	case database.MessageTypePost:
		var c PostContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode post content: %w", err)
		}
		return c, nil
	case database.MessageTypeStore:
		var c StoreContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode store content: %w", err)
		}
		return c, nil
	case database.MessageTypeProgram, database.MessageTypeInstance:
		var c VmContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode vm content: %w", err)
		}
		return c, nil
	case database.MessageTypeForget:
		var c ForgetContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode forget content: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", msgType)
	}
}
