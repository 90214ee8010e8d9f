package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gaborage/txrouter/logger"
)

// Processor implements Manager on top of a Strategy: propagation, rollback-only
// handling, deadlines and synchronization callbacks are common to every resource kind.
// Concrete managers embed *Processor and implement Strategy.
type Processor struct {
	strategy Strategy
	owner    any
	mode     atomic.Int32
	log      logger.Logger
	now      func() time.Time
}

// NewProcessor creates a processor driving strategy. The strategy value also
// identifies the manager in contexts (see WithStatus) and in Status.Owner.
func NewProcessor(strategy Strategy) *Processor {
	p := &Processor{
		strategy: strategy,
		owner:    strategy,
		log:      logger.Nop(),
		now:      time.Now,
	}
	p.mode.Store(int32(SyncAlways))
	return p
}

// SetLogger replaces the processor logger.
func (p *Processor) SetLogger(log logger.Logger) {
	if log != nil {
		p.log = log
	}
}

// Logger returns the processor logger.
func (p *Processor) Logger() logger.Logger { return p.log }

// SetSynchronization implements SynchronizationConfigurer.
func (p *Processor) SetSynchronization(mode SyncMode) { p.mode.Store(int32(mode)) }

// Synchronization implements SynchronizationConfigurer.
func (p *Processor) Synchronization() SyncMode { return SyncMode(p.mode.Load()) }

// Begin implements Manager.
func (p *Processor) Begin(ctx context.Context, def *Definition) (*Status, error) {
	if def == nil {
		def = DefaultDefinition()
	}

	if existing, ok := StatusFrom(ctx, p.owner); ok && existing.HasTransaction() && !existing.IsCompleted() {
		return p.participate(existing, def)
	}

	switch def.Propagation {
	case PropagationMandatory:
		return nil, fmt.Errorf("%w: no existing transaction found for propagation '%s'",
			ErrIllegalTransactionState, def.Propagation)
	case PropagationSupports, PropagationNever:
		return p.emptyStatus(def), nil
	}

	resource, err := p.strategy.DoBegin(ctx, def)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotCreateTransaction, err)
	}

	h := NewHolder(resource)
	if def.Timeout > 0 {
		h.deadline = p.now().Add(def.Timeout)
	}
	status := NewStatus(p.owner, h, true, def)
	if p.Synchronization() != SyncNever {
		h.activateSynchronization()
		status.newSync = true
	}

	p.log.Debug().
		Str("tx_id", status.ID()).
		Str("tx_name", def.Name).
		Str("propagation", def.Propagation.String()).
		Msg("Began new transaction")
	return status, nil
}

func (p *Processor) participate(existing *Status, def *Definition) (*Status, error) {
	if def.Propagation == PropagationNever {
		return nil, fmt.Errorf("%w: existing transaction found for propagation '%s'",
			ErrIllegalTransactionState, def.Propagation)
	}
	status := NewStatus(p.owner, existing.holder, false, def)
	p.log.Debug().
		Str("tx_id", status.ID()).
		Str("outer_tx_id", existing.ID()).
		Msg("Participating in existing transaction")
	return status, nil
}

// emptyStatus creates a scope without an actual transaction. Only SyncAlways
// activates callbacks for it.
func (p *Processor) emptyStatus(def *Definition) *Status {
	if p.Synchronization() != SyncAlways {
		return NewStatus(p.owner, nil, false, def)
	}
	h := NewHolder(nil)
	h.activateSynchronization()
	status := NewStatus(p.owner, h, false, def)
	status.newSync = true
	return status
}

// Commit implements Manager.
func (p *Processor) Commit(ctx context.Context, status *Status) error {
	if status == nil {
		return ErrNilStatus
	}
	if status.IsCompleted() {
		return fmt.Errorf("%w: transaction is already completed - do not call commit or rollback more than once per transaction",
			ErrIllegalTransactionState)
	}

	if status.IsLocalRollbackOnly() {
		p.log.Debug().Str("tx_id", status.ID()).Msg("Transactional code has requested rollback")
		return p.processRollback(ctx, status, false)
	}

	if status.IsGlobalRollbackOnly() {
		p.log.Debug().Str("tx_id", status.ID()).Msg("Global transaction is marked as rollback-only but transactional code requested commit")
		return p.processRollback(ctx, status, true)
	}

	if status.IsNewTransaction() && status.holder.expired(p.now()) {
		if err := p.processRollback(ctx, status, false); err != nil {
			return err
		}
		return fmt.Errorf("%w: deadline exceeded before commit", ErrTransactionTimedOut)
	}

	return p.processCommit(ctx, status)
}

func (p *Processor) processCommit(ctx context.Context, status *Status) error {
	if err := p.triggerBeforeCommit(ctx, status); err != nil {
		if rbErr := p.processRollback(ctx, status, false); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	p.triggerBeforeCompletion(ctx, status)

	if status.IsNewTransaction() {
		if err := p.strategy.DoCommit(ctx, status); err != nil {
			outcome := StateUnknown
			if errors.Is(err, ErrUnexpectedRollback) {
				outcome = StateRolledBack
			}
			p.finish(ctx, status, outcome)
			p.log.Debug().Err(err).Str("tx_id", status.ID()).Msg("Transaction commit failed")
			return err
		}
	}

	p.triggerAfterCommit(ctx, status)
	p.finish(ctx, status, StateCommitted)
	return nil
}

// Rollback implements Manager.
func (p *Processor) Rollback(ctx context.Context, status *Status) error {
	if status == nil {
		return ErrNilStatus
	}
	if status.IsCompleted() {
		return fmt.Errorf("%w: transaction is already completed - do not call commit or rollback more than once per transaction",
			ErrIllegalTransactionState)
	}
	return p.processRollback(ctx, status, false)
}

func (p *Processor) processRollback(ctx context.Context, status *Status, unexpected bool) error {
	p.triggerBeforeCompletion(ctx, status)

	var err error
	switch {
	case status.IsNewTransaction():
		err = p.strategy.DoRollback(ctx, status)
	case status.HasTransaction():
		status.holder.SetRollbackOnly()
		if setter, ok := p.strategy.(RollbackOnlySetter); ok {
			err = setter.DoSetRollbackOnly(ctx, status)
		}
	}

	if err != nil {
		p.finish(ctx, status, StateUnknown)
		return err
	}
	p.finish(ctx, status, StateRolledBack)

	if unexpected && status.IsNewTransaction() {
		return fmt.Errorf("%w: transaction rolled back because it has been marked as rollback-only",
			ErrUnexpectedRollback)
	}
	return nil
}

// State implements Manager.
func (p *Processor) State(_ context.Context, status *Status) (State, error) {
	if status == nil {
		return StateUnknown, ErrNilStatus
	}
	return status.state(), nil
}

func (p *Processor) finish(ctx context.Context, status *Status, outcome State) {
	p.triggerAfterCompletion(ctx, status, outcome)
	status.complete(outcome)
	if status.IsNewTransaction() {
		if cleaner, ok := p.strategy.(Cleaner); ok {
			cleaner.DoCleanup(ctx, status)
		}
	}
}

func (p *Processor) triggerBeforeCommit(ctx context.Context, status *Status) error {
	if !status.newSync {
		return nil
	}
	for _, s := range status.holder.synchronizations() {
		if err := s.BeforeCommit(ctx, status.IsReadOnly()); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) triggerBeforeCompletion(ctx context.Context, status *Status) {
	if !status.newSync {
		return
	}
	for _, s := range status.holder.synchronizations() {
		s.BeforeCompletion(ctx)
	}
}

func (p *Processor) triggerAfterCommit(ctx context.Context, status *Status) {
	if !status.newSync {
		return
	}
	for _, s := range status.holder.synchronizations() {
		s.AfterCommit(ctx)
	}
}

func (p *Processor) triggerAfterCompletion(ctx context.Context, status *Status, outcome State) {
	if !status.newSync {
		return
	}
	for _, s := range status.holder.drainSynchronizations() {
		s.AfterCompletion(ctx, outcome)
	}
}
