// Copyright 2025 Alephnode Protocol
//
// Repositories aggregates the per-domain repositories sharing one client.

package database

// Repositories bundles every domain repository behind a single handle so
// callers only need to thread one value through the pipeline.
type Repositories struct {
	Messages      *MessageRepository
	Pending       *PendingRepository
	ChainTx       *ChainTxRepository
	Aggregates    *AggregateRepository
	Posts         *PostRepository
	Files         *FileRepository
	Vms           *VmRepository
	Balances      *BalanceRepository
}

// NewRepositories constructs every domain repository against the same client.
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Messages:   NewMessageRepository(client),
		Pending:    NewPendingRepository(client),
		ChainTx:    NewChainTxRepository(client),
		Aggregates: NewAggregateRepository(client),
		Posts:      NewPostRepository(client),
		Files:      NewFileRepository(client),
		Vms:        NewVmRepository(client),
		Balances:   NewBalanceRepository(client),
	}
}
