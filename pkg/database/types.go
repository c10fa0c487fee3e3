// Copyright 2025 Alephnode Protocol
//
// Database Types for the message-processing pipeline.
// These map directly to the PostgreSQL schema in migrations/0001_initial_schema.sql.

package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// MESSAGE TYPES
// ============================================================================

// MessageType is the closed set of content-handler dispatch tags.
type MessageType string

const (
	MessageTypeAggregate MessageType = "AGGREGATE"
	MessageTypePost      MessageType = "POST"
	MessageTypeStore     MessageType = "STORE"
	MessageTypeProgram   MessageType = "PROGRAM"
	MessageTypeInstance  MessageType = "INSTANCE"
	MessageTypeForget    MessageType = "FORGET"
)

// ItemType identifies where a message's content body lives.
type ItemType string

const (
	ItemTypeInline  ItemType = "inline"
	ItemTypeStorage ItemType = "storage"
	ItemTypeIPFS    ItemType = "ipfs"
)

// Status is the lifecycle state of a known item_hash (spec.md 3.2).
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusRejected  Status = "REJECTED"
	StatusForgotten Status = "FORGOTTEN"
	StatusRemoving  Status = "REMOVING"
	StatusRemoved   Status = "REMOVED"
)

// Origin identifies where a pending message came from.
type Origin string

const (
	OriginP2P        Origin = "p2p"
	OriginAPI        Origin = "api"
	OriginChainEvent Origin = "chain_event"
)

// Message is the canonical, immutable message record (spec.md 3.1).
type Message struct {
	ItemHash    string          `db:"item_hash" json:"item_hash"`
	Sender      string          `db:"sender" json:"sender"`
	Chain       string          `db:"chain" json:"chain"`
	Type        MessageType     `db:"type" json:"type"`
	ItemType    ItemType        `db:"item_type" json:"item_type"`
	ItemContent []byte          `db:"item_content" json:"item_content,omitempty"`
	Signature   sql.NullString  `db:"signature" json:"signature,omitempty"`
	Time        time.Time       `db:"msg_time" json:"time"`
	Channel     sql.NullString  `db:"channel" json:"channel,omitempty"`
	Content     json.RawMessage `db:"content" json:"content"`
	Size        int64           `db:"size_bytes" json:"size"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// MessageStatusRow is the single status row per known item_hash (spec.md 3.2).
type MessageStatusRow struct {
	ItemHash            string          `db:"item_hash" json:"item_hash"`
	Status              Status          `db:"status" json:"status"`
	ReceptionTime       time.Time       `db:"reception_time" json:"reception_time"`
	LastTransitionTime  sql.NullTime    `db:"last_transition_time" json:"last_transition_time,omitempty"`
	ErrorCode           sql.NullInt64   `db:"error_code" json:"error_code,omitempty"`
	ErrorDetails        json.RawMessage `db:"error_details" json:"error_details,omitempty"`
	ForgottenBy         []string        `db:"forgotten_by" json:"forgotten_by,omitempty"`
}

// PendingMessage is a durable queue row (spec.md 3.3).
type PendingMessage struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	ItemHash      string          `db:"item_hash" json:"item_hash"`
	Sender        string          `db:"sender" json:"sender"`
	Chain         string          `db:"chain" json:"chain"`
	Type          MessageType     `db:"type" json:"type"`
	ItemType      ItemType        `db:"item_type" json:"item_type"`
	ItemContent   []byte          `db:"item_content" json:"item_content,omitempty"`
	Signature     sql.NullString  `db:"signature" json:"signature,omitempty"`
	Time          time.Time       `db:"msg_time" json:"time"`
	Channel       sql.NullString  `db:"channel" json:"channel,omitempty"`
	Retries       int             `db:"retries" json:"retries"`
	NextAttempt   time.Time       `db:"next_attempt" json:"next_attempt"`
	CheckMessage  bool            `db:"check_message" json:"check_message"`
	Fetched       bool            `db:"fetched" json:"fetched"`
	ReceptionTime time.Time       `db:"reception_time" json:"reception_time"`
	Origin        Origin          `db:"origin" json:"origin"`
	TxHash        sql.NullString  `db:"tx_hash" json:"tx_hash,omitempty"`
}

// ChainTransaction carries either a batch pointer or a synthesized event (spec.md 3.4).
type ChainTransaction struct {
	Hash             string          `db:"hash" json:"hash"`
	Chain            string          `db:"chain" json:"chain"`
	Height           int64           `db:"height" json:"height"`
	Datetime         time.Time       `db:"tx_datetime" json:"datetime"`
	Publisher        string          `db:"publisher" json:"publisher"`
	Protocol         string          `db:"protocol" json:"protocol"`
	ProtocolVersion  int             `db:"protocol_version" json:"protocol_version"`
	Content          json.RawMessage `db:"content" json:"content"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// Confirmation links a message to a transaction that contains it (spec.md 3.5).
type Confirmation struct {
	ItemHash string `db:"item_hash" json:"item_hash"`
	TxHash   string `db:"tx_hash" json:"tx_hash"`
}

// ============================================================================
// AGGREGATE TYPES
// ============================================================================

// Aggregate is the merged key-value document owned by an address (spec.md 3.6).
type Aggregate struct {
	Owner       string          `db:"owner" json:"owner"`
	Key         string          `db:"key" json:"key"`
	Content     json.RawMessage `db:"content" json:"content"`
	Created     time.Time       `db:"created" json:"created"`
	LastRevHash sql.NullString  `db:"last_rev_hash" json:"last_rev_hash,omitempty"`
	LastRevTime time.Time       `db:"last_rev_time" json:"last_rev_time"`
	Dirty       bool            `db:"dirty" json:"dirty"`
}

// AggregateElement is one contribution to an aggregate (spec.md 3.6).
type AggregateElement struct {
	ItemHash         string          `db:"item_hash" json:"item_hash"`
	Owner            string          `db:"owner" json:"owner"`
	Key              string          `db:"key" json:"key"`
	CreationDatetime time.Time       `db:"creation_datetime" json:"creation_datetime"`
	Content          json.RawMessage `db:"content" json:"content"`
	Forgotten        bool            `db:"forgotten" json:"forgotten"`
}

// ============================================================================
// POST TYPES
// ============================================================================

// Post is an original or amend document (spec.md 3.6).
type Post struct {
	ItemHash         string          `db:"item_hash" json:"item_hash"`
	Owner            string          `db:"owner" json:"owner"`
	Type             string          `db:"post_type" json:"type"`
	Ref              sql.NullString  `db:"ref" json:"ref,omitempty"`
	Amends           sql.NullString  `db:"amends" json:"amends,omitempty"`
	Channel          sql.NullString  `db:"channel" json:"channel,omitempty"`
	Content          json.RawMessage `db:"content" json:"content"`
	CreationDatetime time.Time       `db:"creation_datetime" json:"creation_datetime"`
	LatestAmend      sql.NullString  `db:"latest_amend" json:"latest_amend,omitempty"`
}

// ============================================================================
// STORED FILE TYPES
// ============================================================================

// FileType distinguishes a STORE target's shape.
type FileType string

const (
	FileTypeFile      FileType = "FILE"
	FileTypeDirectory FileType = "DIRECTORY"
)

// StoredFile is a content-addressed blob tracked for pin-based GC (spec.md 3.6).
type StoredFile struct {
	Hash string   `db:"hash" json:"hash"`
	Size int64    `db:"size_bytes" json:"size"`
	Type FileType `db:"file_type" json:"type"`
}

// PinType is the reason a StoredFile is kept alive.
type PinType string

const (
	PinTypeMessage      PinType = "message"
	PinTypeTx           PinType = "tx"
	PinTypeGracePeriod  PinType = "grace_period"
)

// FilePin is one reason a StoredFile cannot yet be garbage collected.
type FilePin struct {
	ID        int64          `db:"id" json:"id"`
	FileHash  string         `db:"file_hash" json:"file_hash"`
	Type      PinType        `db:"pin_type" json:"type"`
	Owner     sql.NullString `db:"owner" json:"owner,omitempty"`
	ItemHash  sql.NullString `db:"item_hash" json:"item_hash,omitempty"`
	TxHash    sql.NullString `db:"tx_hash" json:"tx_hash,omitempty"`
	DeleteBy  sql.NullTime   `db:"delete_by" json:"delete_by,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// ============================================================================
// VM DESCRIPTOR TYPES
// ============================================================================

// VmDescriptor is a PROGRAM or INSTANCE message's persisted side effect (spec.md 3.6).
type VmDescriptor struct {
	ItemHash   string          `db:"item_hash" json:"item_hash"`
	Owner      string          `db:"owner" json:"owner"`
	Type       MessageType     `db:"vm_type" json:"type"`
	Replaces   sql.NullString  `db:"replaces" json:"replaces,omitempty"`
	AllowAmend bool            `db:"allow_amend" json:"allow_amend"`
	CodeRef    sql.NullString  `db:"code_ref" json:"code_ref,omitempty"`
	RuntimeRef sql.NullString  `db:"runtime_ref" json:"runtime_ref,omitempty"`
	DataRef    sql.NullString  `db:"data_ref" json:"data_ref,omitempty"`
	ParentRef  sql.NullString  `db:"parent_ref" json:"parent_ref,omitempty"`
	Content    json.RawMessage `db:"content" json:"content"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// VmVersion tracks the current head of an amend chain for a VM (spec.md 4.8).
type VmVersion struct {
	Owner           string    `db:"owner" json:"owner"`
	RefKey          string    `db:"ref_key" json:"ref_key"`
	CurrentVersion  string    `db:"current_version" json:"current_version"`
	LastUpdated     time.Time `db:"last_updated" json:"last_updated"`
}

// ============================================================================
// COST & BALANCE TYPES
// ============================================================================

// AccountBalance is a per-(chain,dapp,address) current balance (spec.md 3.7).
type AccountBalance struct {
	Chain     string    `db:"chain" json:"chain"`
	Dapp      string    `db:"dapp" json:"dapp"`
	Address   string    `db:"address" json:"address"`
	Balance   float64   `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AccountCost is the computed cost of one resource-bearing message (spec.md 3.7).
type AccountCost struct {
	ItemHash   string    `db:"item_hash" json:"item_hash"`
	Address    string    `db:"address" json:"address"`
	CostHold   float64   `db:"cost_hold" json:"cost_hold"`
	CostStream float64   `db:"cost_stream" json:"cost_stream"`
	CostCredit float64   `db:"cost_credit" json:"cost_credit"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
