// Package batch groups protected transactions into batches and settles them.
//
// A Coordinator owns the single pending batch. Membership, the derived
// count/value, the deadline timer and the pending->processing transition
// all change under one mutex, so size and time triggers cannot both seal
// the same batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"swap-guard/internal/domain"
	"swap-guard/internal/idhash"
	"swap-guard/internal/notify"
	"swap-guard/internal/observability"
	"swap-guard/internal/storage"
)

// MaxBatchSize is the upper bound for the size threshold.
const MaxBatchSize = 10

// persistTimeout bounds store writes made outside a caller's context.
const persistTimeout = 5 * time.Second

var (
	// ErrBatchNotPending is returned when cancelling a batch that is not the open pending batch.
	ErrBatchNotPending = errors.New("batch is not pending")
	// ErrClosed is returned by Admit after Close.
	ErrClosed = errors.New("batch coordinator closed")
	// ErrInvalidConfig is returned for out-of-range thresholds.
	ErrInvalidConfig = errors.New("invalid batch config")
)

// Committer settles a sealed batch. It is called at most once per batch.
type Committer interface {
	Commit(ctx context.Context, batchID string, txIDs []string) (*domain.CommitResult, error)
}

// Config holds seal and commit thresholds.
type Config struct {
	// SizeThreshold seals the batch when its member count reaches it (1..MaxBatchSize).
	SizeThreshold int
	// TimeThreshold seals a non-empty batch this long after its first admission.
	TimeThreshold time.Duration
	// CommitTimeout bounds a single settlement attempt.
	CommitTimeout time.Duration
}

// DefaultConfig returns default thresholds.
func DefaultConfig() Config {
	return Config{
		SizeThreshold: 5,
		TimeThreshold: 30 * time.Second,
		CommitTimeout: 10 * time.Second,
	}
}

// Validate checks threshold ranges.
func (c Config) Validate() error {
	if c.SizeThreshold < 1 || c.SizeThreshold > MaxBatchSize {
		return fmt.Errorf("%w: size threshold %d not in [1, %d]", ErrInvalidConfig, c.SizeThreshold, MaxBatchSize)
	}
	if c.TimeThreshold <= 0 {
		return fmt.Errorf("%w: time threshold must be positive", ErrInvalidConfig)
	}
	if c.CommitTimeout <= 0 {
		return fmt.Errorf("%w: commit timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Options configures a Coordinator.
type Options struct {
	Config    Config
	Store     storage.BatchStore
	Committer Committer
	Publisher notify.Publisher // optional
	Logger    *log.Logger      // optional

	// Now and NewID are overridable in tests.
	Now   func() time.Time
	NewID func() string
}

// Coordinator admits transactions into the pending batch, seals it on the
// size or time trigger and commits each sealed batch exactly once.
type Coordinator struct {
	cfg       Config
	store     storage.BatchStore
	committer Committer
	publisher notify.Publisher
	logger    *log.Logger
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	current *domain.Batch
	timer   *time.Timer
	closed  bool

	inflight sync.WaitGroup
}

// NewCoordinator creates a coordinator. There is no pending batch until the first Admit.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("batch store is required")
	}
	if opts.Committer == nil {
		return nil, fmt.Errorf("committer is required")
	}

	c := &Coordinator{
		cfg:       opts.Config,
		store:     opts.Store,
		committer: opts.Committer,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.New().String() }
	}
	return c, nil
}

// Admit adds m to the pending batch, opening one if needed, and returns
// the batch id. Reaching the size threshold seals the batch before Admit
// returns. Admitting a transaction already in the pending batch is a no-op.
func (c *Coordinator) Admit(ctx context.Context, m domain.BatchMember) (string, error) {
	if m.TransactionID == "" || m.Identity == "" {
		return "", fmt.Errorf("%w: batch member requires transaction id and identity", storage.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}

	if c.current == nil {
		if err := c.openLocked(ctx); err != nil {
			return "", err
		}
	}
	b := c.current

	if b.HasMember(m.TransactionID) {
		return b.ID, nil
	}

	b.Members = append(b.Members, m)
	if err := c.store.Update(ctx, b.Clone()); err != nil {
		b.Members = b.Members[:len(b.Members)-1]
		return "", fmt.Errorf("persist admission to batch %s: %w", b.ID, err)
	}
	observability.UpdatePendingBatchSize(b.Count())

	if c.timer == nil {
		id := b.ID
		c.timer = time.AfterFunc(c.cfg.TimeThreshold, func() { c.onDeadline(id) })
	}

	if b.Count() >= c.cfg.SizeThreshold {
		c.sealLocked(domain.SealTriggerSize)
	}

	return b.ID, nil
}

// openLocked creates and persists a new pending batch. Caller holds c.mu.
func (c *Coordinator) openLocked(ctx context.Context) error {
	createdAt := c.now().UnixMilli()
	id := c.newID()
	b := &domain.Batch{
		ID:        id,
		Status:    domain.BatchStatusPending,
		BatchHash: idhash.ComputeBatchHash(id, createdAt),
		CreatedAt: createdAt,
	}
	if err := c.store.Insert(ctx, b.Clone()); err != nil {
		return fmt.Errorf("persist new batch: %w", err)
	}
	c.current = b
	observability.RecordBatchCreated()
	c.logger.Printf("opened batch %s", id)
	return nil
}

// onDeadline runs on the timer goroutine.
func (c *Coordinator) onDeadline(batchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Sealed, cancelled or replaced since the timer was armed
	if c.current == nil || c.current.ID != batchID {
		return
	}
	if c.current.Count() == 0 {
		c.timer = nil
		return
	}
	c.sealLocked(domain.SealTriggerTime)
}

// sealLocked moves the current batch to processing, vacates the slot and
// launches the commit. Caller holds c.mu and c.current is non-nil.
// The processing write is detached from any request context; if it still
// fails the commit goroutine's terminal write supersedes the pending row.
func (c *Coordinator) sealLocked(trigger domain.SealTrigger) {
	b := c.current
	c.current = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	executedAt := c.now().UnixMilli()
	b.Status = domain.BatchStatusProcessing
	b.SealTrigger = &trigger
	b.ExecutedAt = &executedAt
	b.BatchHash = idhash.ComputeBatchHash(b.ID, executedAt)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	err := c.store.Update(ctx, b.Clone())
	cancel()
	if err != nil {
		c.logger.Printf("persist sealed batch %s: %v", b.ID, err)
	}

	observability.RecordBatchSealed(string(trigger), b.Count())
	observability.UpdatePendingBatchSize(0)
	c.logger.Printf("sealed batch %s (%s, %d members, value %d)", b.ID, trigger, b.Count(), b.TotalValue())

	c.inflight.Add(1)
	go c.commit(b.Clone())
}

type commitOutcome struct {
	result *domain.CommitResult
	err    error
}

// commit settles b once and records the terminal status.
func (c *Coordinator) commit(b *domain.Batch) {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommitTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan commitOutcome, 1)
	go func() {
		res, err := c.committer.Commit(ctx, b.ID, b.TransactionIDs())
		done <- commitOutcome{result: res, err: err}
	}()

	var failure string
	var res *domain.CommitResult
	// Returns on timeout even if the committer ignores ctx
	select {
	case out := <-done:
		switch {
		case out.err != nil:
			failure = out.err.Error()
		case out.result == nil || !out.result.Success:
			failure = "settlement reported failure"
		default:
			res = out.result
		}
	case <-ctx.Done():
		failure = fmt.Sprintf("commit timed out after %v", c.cfg.CommitTimeout)
	}

	completedAt := c.now().UnixMilli()
	b.CompletedAt = &completedAt
	if b.ExecutedAt != nil {
		elapsed := completedAt - *b.ExecutedAt
		b.ExecutionTimeMs = &elapsed
	}

	observability.RecordCommit(time.Since(start).Seconds(), failure == "", time.Now().Unix())

	eventType := domain.EventBatchExecuted
	if failure == "" {
		b.Status = domain.BatchStatusCompleted
		b.CommitSignature = res.Signature
		b.Outcomes = res.Outcomes
		c.logger.Printf("batch %s completed in %dms (signature %s)", b.ID, *b.ExecutionTimeMs, res.Signature)
	} else {
		b.Status = domain.BatchStatusFailed
		b.FailureReason = failure
		eventType = domain.EventBatchFailed
		c.logger.Printf("batch %s failed: %s", b.ID, failure)
	}
	observability.RecordBatchFinished(string(b.Status))

	pctx, pcancel := context.WithTimeout(context.Background(), persistTimeout)
	defer pcancel()
	if err := c.store.Update(pctx, b.Clone()); err != nil {
		c.logger.Printf("persist batch %s result: %v", b.ID, err)
	}

	c.notifyMembers(b, eventType, failure)
}

func (c *Coordinator) notifyMembers(b *domain.Batch, eventType domain.EventType, reason string) {
	if c.publisher == nil {
		return
	}
	for _, m := range b.Members {
		c.publisher.Publish(m.Identity, domain.Event{
			Type:          eventType,
			BatchID:       b.ID,
			TransactionID: m.TransactionID,
			Reason:        reason,
		})
	}
}

// Cancel fails the pending batch batchID without committing it.
// Members keep their batch assignment. Returns storage.ErrNotFound for an
// unknown batch and ErrBatchNotPending if it is no longer pending.
func (c *Coordinator) Cancel(ctx context.Context, batchID string) (*domain.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.ID != batchID {
		if _, err := c.store.GetByID(ctx, batchID); err != nil {
			return nil, err
		}
		return nil, ErrBatchNotPending
	}

	// The slot and timer stay untouched until the cancellation is stored,
	// so a failed write leaves the batch pending and cancellable.
	b := c.current.Clone()
	trigger := domain.SealTriggerCancel
	completedAt := c.now().UnixMilli()
	b.Status = domain.BatchStatusFailed
	b.SealTrigger = &trigger
	b.FailureReason = "cancelled"
	b.CompletedAt = &completedAt

	if err := c.store.Update(ctx, b.Clone()); err != nil {
		return nil, fmt.Errorf("persist cancelled batch %s: %w", b.ID, err)
	}

	c.current = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	observability.RecordBatchFinished(string(b.Status))
	observability.UpdatePendingBatchSize(0)
	c.logger.Printf("cancelled batch %s (%d members)", b.ID, b.Count())

	c.notifyMembers(b, domain.EventBatchFailed, b.FailureReason)
	return b.Clone(), nil
}

// Flush seals the pending batch now if it has members.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Coordinator) flushLocked() {
	if c.current != nil && c.current.Count() > 0 {
		c.sealLocked(domain.SealTriggerFlush)
	}
}

// Close stops admissions, flushes the pending batch and waits for
// in-flight commits or ctx.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.flushLocked()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight commits: %w", ctx.Err())
	}
}

// Current returns a copy of the pending batch, or nil.
func (c *Coordinator) Current() *domain.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.Clone()
}
