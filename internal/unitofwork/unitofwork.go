// Package unitofwork scopes a transaction over repositories: buffered
// domain events, nested savepoints with stack discipline, and a
// transactional() decorator that retries transient failures
// (spec.md §4.6, grounded on the Python EnhancedUnitOfWork reference).
package unitofwork

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/eventbus"
	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
	"github.com/northcloud/vulcan-scheduler/internal/logger"
	"github.com/northcloud/vulcan-scheduler/internal/repository"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/retry"
)

// TransactionState mirrors the Python reference's state machine for a UoW
// instance.
type TransactionState string

const (
	StateActive     TransactionState = "ACTIVE"
	StateCommitted  TransactionState = "COMMITTED"
	StateRolledBack TransactionState = "ROLLED_BACK"
	StateFailed     TransactionState = "FAILED"
)

// TxController abstracts the underlying storage transaction (real nested
// SQL savepoints in internal/postgres, a no-op in memstore-backed tests).
type TxController interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Savepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
}

// NoopTxController is a TxController with no real backing store; used
// when the unit of work only needs to buffer domain events and does not
// need ACID guarantees (in-memory repositories, unit tests).
type NoopTxController struct{}

func (NoopTxController) Begin(context.Context) error                        { return nil }
func (NoopTxController) Commit(context.Context) error                       { return nil }
func (NoopTxController) Rollback(context.Context) error                    { return nil }
func (NoopTxController) Savepoint(context.Context, string) error           { return nil }
func (NoopTxController) RollbackToSavepoint(context.Context, string) error { return nil }
func (NoopTxController) ReleaseSavepoint(context.Context, string) error    { return nil }

// Metrics records diagnostics about one unit of work's lifetime
// (spec.md §4.6).
type Metrics struct {
	Duration        time.Duration
	FlushedCount    int
	SavepointCount  int
}

// UnitOfWork scopes one transaction. It is not safe for concurrent use;
// callers must serialize operations on a given instance (spec.md §4.6).
type UnitOfWork struct {
	mu           sync.Mutex
	tx           TxController
	repos        repository.Repositories
	bus          *eventbus.Bus
	log          logger.Logger
	slowThreshold time.Duration

	state          TransactionState
	startedAt      time.Time
	flushedCount   int
	bufferedEvents []domain.DomainEvent
	savepointStack []string
}

// Option configures a UnitOfWork.
type Option func(*UnitOfWork)

// WithSlowTransactionThreshold sets the duration above which Commit logs a
// WARN (spec.md §4.6).
func WithSlowTransactionThreshold(d time.Duration) Option {
	return func(u *UnitOfWork) { u.slowThreshold = d }
}

// WithLogger attaches a logger.
func WithLogger(l logger.Logger) Option {
	return func(u *UnitOfWork) { u.log = l }
}

// New constructs a UnitOfWork over repos, publishing committed events to
// bus. tx may be NoopTxController{} when no real transactional backend is
// needed.
func New(tx TxController, repos repository.Repositories, bus *eventbus.Bus, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{
		tx:            tx,
		repos:         repos,
		bus:           bus,
		log:           logger.NewNop(),
		slowThreshold: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Repositories exposes the repositories scoped to this unit of work.
func (u *UnitOfWork) Repositories() repository.Repositories { return u.repos }

// Begin starts the transaction. Calling Begin on an already-active
// UnitOfWork fails (spec.md §4.6: nested __enter__ on an active UoW fails).
func (u *UnitOfWork) Begin(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state == StateActive {
		return infraerrors.New(infraerrors.KindBusinessRuleViolation, "unit of work is already active")
	}
	if err := u.tx.Begin(ctx); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "begin transaction", err)
	}

	u.state = StateActive
	u.startedAt = time.Now()
	u.flushedCount = 0
	u.bufferedEvents = nil
	u.savepointStack = nil
	return nil
}

// Publish buffers a domain event; it is only delivered to the event bus
// once Commit succeeds (spec.md §3, §4.6).
func (u *UnitOfWork) Publish(event domain.DomainEvent) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bufferedEvents = append(u.bufferedEvents, event)
}

// Flush marks one unit of storage work as applied. Repositories do not call
// it themselves; callers invoke it after each repository write so
// Metrics.FlushedCount counts those writes.
func (u *UnitOfWork) Flush() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.flushedCount++
}

// CreateSavepoint pushes a named savepoint onto the stack.
func (u *UnitOfWork) CreateSavepoint(ctx context.Context, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != StateActive {
		return infraerrors.New(infraerrors.KindBusinessRuleViolation, "unit of work is not active")
	}
	if err := u.tx.Savepoint(ctx, name); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "create savepoint", err)
	}
	u.savepointStack = append(u.savepointStack, name)
	return nil
}

// RollbackToSavepoint rolls back to name, popping everything pushed after
// it off the stack; name itself stays on the stack and can be rolled back
// to again (stack discipline, spec.md §4.6).
func (u *UnitOfWork) RollbackToSavepoint(ctx context.Context, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	idx := -1
	for i := len(u.savepointStack) - 1; i >= 0; i-- {
		if u.savepointStack[i] == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return infraerrors.New(infraerrors.KindValidation, fmt.Sprintf("unknown savepoint %q", name))
	}

	if err := u.tx.RollbackToSavepoint(ctx, name); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "rollback to savepoint", err)
	}
	u.savepointStack = u.savepointStack[:idx+1]
	return nil
}

// Commit commits the transaction, transitions to COMMITTED, and publishes
// every buffered event (spec.md §4.6). On failure, it rolls back instead.
func (u *UnitOfWork) Commit(ctx context.Context) (Metrics, error) {
	u.mu.Lock()
	if u.state != StateActive {
		u.mu.Unlock()
		return Metrics{}, infraerrors.New(infraerrors.KindBusinessRuleViolation, "unit of work is not active")
	}

	if err := u.tx.Commit(ctx); err != nil {
		_ = u.tx.Rollback(ctx)
		u.state = StateFailed
		events := u.bufferedEvents
		u.bufferedEvents = nil
		u.mu.Unlock()
		_ = events // dropped per spec.md §4.6 on commit failure
		return Metrics{}, infraerrors.Wrap(infraerrors.KindDatabaseError, "commit transaction", err)
	}

	u.state = StateCommitted
	duration := time.Since(u.startedAt)
	metrics := Metrics{Duration: duration, FlushedCount: u.flushedCount, SavepointCount: len(u.savepointStack)}
	toPublish := u.bufferedEvents
	u.bufferedEvents = nil
	u.mu.Unlock()

	if duration > u.slowThreshold {
		u.log.Warn("slow transaction", logger.Duration("duration", duration), logger.Int("flushed", metrics.FlushedCount))
	}

	for _, event := range toPublish {
		u.bus.Publish(ctx, event)
	}

	return metrics, nil
}

// Rollback rolls back the transaction and drops all buffered events
// (spec.md §4.6).
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != StateActive {
		return infraerrors.New(infraerrors.KindBusinessRuleViolation, "unit of work is not active")
	}

	err := u.tx.Rollback(ctx)
	u.state = StateRolledBack
	u.bufferedEvents = nil

	if err != nil {
		u.state = StateFailed
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "rollback transaction", err)
	}
	return nil
}

// State returns the unit of work's current TransactionState.
func (u *UnitOfWork) State() TransactionState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// RunConfig configures the transactional() decorator (spec.md §4.6).
type RunConfig struct {
	MaxAttempts int
	Retry       retry.Config
}

// Run opens a UnitOfWork, invokes fn, and commits on success or rolls
// back on error, retrying transient database errors with backoff
// (spec.md §4.6, the `transactional()` decorator form).
func Run(ctx context.Context, tx TxController, repos repository.Repositories, bus *eventbus.Bus, cfg RunConfig, fn func(ctx context.Context, uow *UnitOfWork) error, opts ...Option) (Metrics, error) {
	var metrics Metrics

	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts <= 0 {
		retryCfg.MaxAttempts = cfg.MaxAttempts
	}
	if retryCfg.IsRetryable == nil {
		retryCfg.IsRetryable = retry.IsTransient
	}

	err := retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		uow := New(tx, repos, bus, opts...)
		if err := uow.Begin(ctx); err != nil {
			return err
		}

		if err := fn(ctx, uow); err != nil {
			_ = uow.Rollback(ctx)
			return err
		}

		m, err := uow.Commit(ctx)
		if err != nil {
			return err
		}
		metrics = m
		return nil
	}, nil)

	return metrics, err
}
