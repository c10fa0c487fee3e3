// Copyright 2025 Alephnode Protocol
//
// Worker Pool (spec.md 4.11): N goroutines draining the pending-message
// queue, each running fetch, signature verification, balance gating,
// then handing off to the Commit Coordinator. A message that fails
// retryably is rescheduled with backoff; exhausting its retry budget
// is itself a terminal rejection.

package worker

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/alephnode/ccn/pkg/commit"
	"github.com/alephnode/ccn/pkg/config"
	"github.com/alephnode/ccn/pkg/cost"
	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/fetch"
	"github.com/alephnode/ccn/pkg/message"
	"github.com/alephnode/ccn/pkg/metrics"
	"github.com/alephnode/ccn/pkg/pipeline"
	"github.com/alephnode/ccn/pkg/signing"
)

// State is the pool's run/stop lifecycle; there is no paused state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// resourceBearingTypes are the message types spec.md 4.4 subjects to
// balance gating; AGGREGATE, POST, and FORGET are not resource-bearing.
var resourceBearingTypes = map[database.MessageType]bool{
	database.MessageTypeStore:    true,
	database.MessageTypeProgram:  true,
	database.MessageTypeInstance: true,
}

// Pool runs cfg.PoolSize worker goroutines against the pending queue.
type Pool struct {
	mu sync.Mutex

	pending     *database.PendingRepository
	fetcher     *fetch.Fetcher
	verifiers   *signing.Registry
	costGate    CostGate
	coordinator *commit.Coordinator

	cfg     config.WorkerSettings
	logger  *log.Logger
	metrics *metrics.Registry

	state  State
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// WithMetrics attaches a metrics registry the pool reports pending-queue
// depth, fetch/commit latency, retries, and rejections to. Optional —
// a pool with no registry attached simply skips every recording call.
func (p *Pool) WithMetrics(m *metrics.Registry) *Pool {
	p.metrics = m
	return p
}

// CostGate is the subset of *cost.Gate the pool depends on.
type CostGate interface {
	Check(ctx context.Context, chain, dapp, address string, msgType database.MessageType, sizeBytes int64, msgTime time.Time) (cost.Quote, error)
}

// New constructs a Pool. costGate may be nil to disable balance gating
// (config.Cost.Enabled == false).
func New(pending *database.PendingRepository, fetcher *fetch.Fetcher, verifiers *signing.Registry, costGate CostGate, coordinator *commit.Coordinator, cfg config.WorkerSettings, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.New(log.Writer(), "[WorkerPool] ", log.LstdFlags)
	}
	return &Pool{
		pending:     pending,
		fetcher:     fetcher,
		verifiers:   verifiers,
		costGate:    costGate,
		coordinator: coordinator,
		cfg:         cfg,
		logger:      logger,
		state:       StateStopped,
	}
}

// Start launches the pool's worker goroutines. Safe to call once; a
// second call while already running is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.state == StateRunning {
		p.mu.Unlock()
		return
	}
	p.state = StateRunning
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	for i := 0; i < p.poolSize(); i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
	p.logger.Printf("worker pool started (workers=%d, claim_batch=%d)", p.poolSize(), p.cfg.ClaimBatch)
}

// Stop signals every worker goroutine to exit and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	p.state = StateStopped
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Println("worker pool stopped")
}

func (p *Pool) poolSize() int {
	if p.cfg.PoolSize <= 0 {
		return 1
	}
	return p.cfg.PoolSize
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain claims one batch and processes it sequentially within this
// worker; multiple workers make progress concurrently via SKIP LOCKED.
func (p *Pool) drain(ctx context.Context) {
	if p.metrics != nil {
		if depth, err := p.pending.Count(ctx); err == nil {
			p.metrics.PendingQueueDepth.Set(float64(depth))
		}
	}

	claimed, err := p.pending.ClaimBatch(ctx, p.cfg.ClaimBatch)
	if err != nil {
		p.logger.Printf("claim batch: %v", err)
		return
	}
	for _, pend := range claimed {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.processOne(ctx, pend)
	}
}

// processOne runs one pending message through verification and
// dispatch, rescheduling or rejecting it on failure.
func (p *Pool) processOne(ctx context.Context, pend *database.PendingMessage) {
	if pend.CheckMessage {
		if err := p.verifySignature(pend); err != nil {
			p.rejectOrLog(ctx, pend, pipeline.WithDetails(pipeline.ErrInvalidSignature, map[string]any{
				"item_hash": pend.ItemHash,
				"cause":     err.Error(),
			}))
			return
		}
	}

	fetchStart := time.Now()
	result, err := p.fetcher.Fetch(ctx, pend, pend.Type, pend.ItemType)
	if p.metrics != nil {
		p.metrics.FetchLatency.Observe(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		p.handleFailure(ctx, pend, err)
		return
	}

	var quote *cost.Quote
	if p.costGate != nil && resourceBearingTypes[pend.Type] {
		q, err := p.costGate.Check(ctx, pend.Chain, "", pend.Sender, pend.Type, int64(len(result.Raw)), pend.Time)
		if err != nil {
			p.handleFailure(ctx, pend, err)
			return
		}
		quote = &q
	}

	in := commit.Input{
		Pending:     pend,
		ItemHash:    pend.ItemHash,
		Sender:      pend.Sender,
		Chain:       pend.Chain,
		Type:        pend.Type,
		ItemType:    pend.ItemType,
		ItemContent: pend.ItemContent,
		Time:        pend.Time,
		Content:     result.Content,
		RawContent:  result.Raw,
		Cost:        quote,
	}
	if pend.Signature.Valid {
		in.Signature = pend.Signature.String
	}
	if pend.Channel.Valid {
		in.Channel = pend.Channel.String
	}
	if pend.TxHash.Valid {
		in.ConfirmTxHash = pend.TxHash.String
	}

	commitStart := time.Now()
	err = p.coordinator.Commit(ctx, in)
	if p.metrics != nil {
		p.metrics.CommitLatency.Observe(time.Since(commitStart).Seconds())
	}
	if err != nil {
		p.handleFailure(ctx, pend, err)
	}
}

func (p *Pool) verifySignature(pend *database.PendingMessage) error {
	env := &message.Envelope{
		ItemHash: pend.ItemHash,
		Sender:   pend.Sender,
		Chain:    pend.Chain,
		Type:     pend.Type,
		ItemType: pend.ItemType,
		Time:     pend.Time,
	}
	payload, err := env.CanonicalForSigning()
	if err != nil {
		return err
	}
	ok, err := p.verifiers.Verify(pend.Chain, pend.Sender, payload, pend.Signature.String)
	if err != nil {
		return err
	}
	if !ok {
		return errSignatureMismatch
	}
	return nil
}

// handleFailure classifies err and either reschedules (retryable),
// rejects (terminal), or — conservatively — reschedules any error this
// pipeline didn't explicitly classify, so an unexpected bug fails open
// toward retrying rather than silently dropping a message.
func (p *Pool) handleFailure(ctx context.Context, pend *database.PendingMessage, err error) {
	pipeErr, ok := pipeline.AsPipelineError(err)
	if ok && pipeErr.Kind == pipeline.KindTerminal {
		p.rejectOrLog(ctx, pend, pipeErr)
		return
	}
	p.reschedule(ctx, pend, err)
}

func (p *Pool) rejectOrLog(ctx context.Context, pend *database.PendingMessage, pipeErr *pipeline.Error) {
	in := commit.Input{
		Pending:     pend,
		ItemHash:    pend.ItemHash,
		Sender:      pend.Sender,
		Chain:       pend.Chain,
		Type:        pend.Type,
		ItemType:    pend.ItemType,
		ItemContent: pend.ItemContent,
		Time:        pend.Time,
		RawContent:  pend.ItemContent,
	}
	if err := p.coordinator.Reject(ctx, in, pipeErr); err != nil {
		p.logger.Printf("reject %s: %v", pend.ItemHash, err)
		return
	}
	if p.metrics != nil {
		p.metrics.RejectionsTotal.WithLabelValues(string(pend.Type), strconv.Itoa(int(pipeErr.Code))).Inc()
	}
}

func (p *Pool) reschedule(ctx context.Context, pend *database.PendingMessage, cause error) {
	maxRetries := p.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}
	if pend.Retries >= maxRetries {
		p.rejectOrLog(ctx, pend, pipeline.WithDetails(pipeline.ErrMaxRetriesExceeded, map[string]any{
			"item_hash": pend.ItemHash,
			"retries":   pend.Retries,
			"cause":     cause.Error(),
		}))
		return
	}

	backoff := p.cfg.RetryBackoff.Duration() * time.Duration(1<<uint(pend.Retries))
	if backoff <= 0 || backoff > time.Hour {
		backoff = time.Hour
	}
	if err := p.pending.Reschedule(ctx, pend.ID, backoff); err != nil {
		p.logger.Printf("reschedule %s: %v", pend.ItemHash, err)
		return
	}
	if p.metrics != nil {
		p.metrics.RetriesTotal.Inc()
	}
}

var errSignatureMismatch = pipeline.ErrInvalidSignature
