// Copyright 2025 Alephnode Protocol
//
// Balance mirror: pushes every account balance the POST handler's
// oracle special case writes (spec.md 4.6) into Firestore as a
// secondary, low-latency read cache for the cost-and-balance gate
// (spec.md 4.10). Adapted from the teacher's pkg/firestore client: a
// disabled mirror is a silent no-op so local development never needs
// real Firebase credentials.

package balances

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/alephnode/ccn/pkg/database"
)

// Config configures the Firestore balance mirror.
type Config struct {
	Enabled bool

	// ProjectID is the Firebase/GCP project ID. Required when Enabled.
	ProjectID string

	// CredentialsFile is a service account JSON path. Empty defers to
	// GOOGLE_APPLICATION_CREDENTIALS or application default credentials.
	CredentialsFile string

	// Collection is the Firestore collection balances are written to.
	Collection string

	Logger *log.Logger
}

// DefaultConfig reads mirror settings from the environment, mirroring
// the teacher's DefaultConfig helper.
func DefaultConfig() Config {
	return Config{
		Enabled:         os.Getenv("BALANCE_MIRROR_ENABLED") == "true",
		ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		Collection:      "account_balances",
		Logger:          log.New(os.Stdout, "[BalanceMirror] ", log.LstdFlags),
	}
}

// Mirror pushes account balance writes into Firestore. The zero value
// is not usable; construct with New.
type Mirror struct {
	app        *firebase.App
	firestore  *gcpfirestore.Client
	collection string
	logger     *log.Logger
	enabled    bool
	mu         sync.RWMutex
}

// New constructs a Mirror. When cfg.Enabled is false, it returns
// immediately with a client that no-ops every Sync call.
func New(ctx context.Context, cfg Config) (*Mirror, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[BalanceMirror] ", log.LstdFlags)
	}
	if cfg.Collection == "" {
		cfg.Collection = "account_balances"
	}

	m := &Mirror{collection: cfg.Collection, logger: cfg.Logger, enabled: cfg.Enabled}
	if !cfg.Enabled {
		cfg.Logger.Println("balance mirror disabled - running in no-op mode")
		return m, nil
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("FIREBASE_PROJECT_ID is required when the balance mirror is enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	m.app = app
	m.firestore = fsClient
	cfg.Logger.Printf("balance mirror initialized for project %s, collection %s", cfg.ProjectID, cfg.Collection)
	return m, nil
}

// IsEnabled reports whether this mirror actually talks to Firestore.
func (m *Mirror) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Close releases the underlying Firestore client, a no-op if disabled.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.firestore != nil {
		return m.firestore.Close()
	}
	return nil
}

// docID keys a balance document by (chain, dapp, address), matching
// account_balances' composite primary key.
func docID(b *database.AccountBalance) string {
	return fmt.Sprintf("%s_%s_%s", b.Chain, b.Dapp, b.Address)
}

// Sync implements handlers.BalanceMirror. It writes b as a Firestore
// document. A failed write is logged and also returned, wrapped; a
// disabled mirror logs the skip and returns nil.
func (m *Mirror) Sync(ctx context.Context, b *database.AccountBalance) error {
	if !m.IsEnabled() {
		m.logger.Printf("mirror disabled - skipping balance sync for %s/%s/%s", b.Chain, b.Dapp, b.Address)
		return nil
	}
	if m.firestore == nil {
		return fmt.Errorf("balance mirror: firestore client not initialized")
	}

	doc := map[string]any{
		"chain":      b.Chain,
		"dapp":       b.Dapp,
		"address":    b.Address,
		"balance":    b.Balance,
		"updated_at": b.UpdatedAt,
	}

	_, err := m.firestore.Collection(m.collection).Doc(docID(b)).Set(ctx, doc)
	if err != nil {
		m.logger.Printf("failed to sync balance %s/%s/%s: %v", b.Chain, b.Dapp, b.Address, err)
		return fmt.Errorf("sync balance %s: %w", docID(b), err)
	}
	return nil
}
