package transaction

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the observable state of a transaction, as reported by Manager.State.
type State int

const (
	StateUnknown State = iota
	StateActive
	StateMarkedRollback
	StateCommitted
	StateRolledBack
	StateNoTransaction
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateMarkedRollback:
		return "marked_rollback"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	case StateNoTransaction:
		return "no_transaction"
	default:
		return "unknown"
	}
}

// Holder is shared by the status that started a physical transaction and by every
// status participating in it. Marking the holder rollback-only is how a participant
// tells the outermost scope that the global transaction must not commit.
type Holder struct {
	resource     any
	deadline     time.Time
	rollbackOnly atomic.Bool

	mu        sync.Mutex
	syncs     []Synchronization
	syncAlive bool
}

// NewHolder creates a holder around the driver-level transaction object.
// resource may be nil for empty (non-transactional) scopes.
func NewHolder(resource any) *Holder {
	return &Holder{resource: resource}
}

// Resource returns the driver-level transaction object (*sql.Tx, pgx.Tx, ...).
func (h *Holder) Resource() any {
	if h == nil {
		return nil
	}
	return h.resource
}

// SetRollbackOnly marks the whole transaction rollback-only.
func (h *Holder) SetRollbackOnly() {
	if h != nil {
		h.rollbackOnly.Store(true)
	}
}

// IsRollbackOnly reports whether any participant marked the transaction rollback-only.
func (h *Holder) IsRollbackOnly() bool {
	return h != nil && h.rollbackOnly.Load()
}

// Deadline returns the transaction deadline and whether one is set.
func (h *Holder) Deadline() (time.Time, bool) {
	if h == nil || h.deadline.IsZero() {
		return time.Time{}, false
	}
	return h.deadline, true
}

func (h *Holder) expired(now time.Time) bool {
	d, ok := h.Deadline()
	return ok && now.After(d)
}

func (h *Holder) activateSynchronization() {
	h.mu.Lock()
	h.syncAlive = true
	h.mu.Unlock()
}

func (h *Holder) register(s Synchronization) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.syncAlive {
		return ErrSynchronizationInactive
	}
	h.syncs = append(h.syncs, s)
	return nil
}

// drainSynchronizations returns the registered callbacks and deactivates the holder.
func (h *Holder) drainSynchronizations() []Synchronization {
	h.mu.Lock()
	defer h.mu.Unlock()
	syncs := h.syncs
	h.syncs = nil
	h.syncAlive = false
	return syncs
}

func (h *Holder) synchronizations() []Synchronization {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Synchronization(nil), h.syncs...)
}

// Status is the handle returned by Begin and passed back to Commit, Rollback and State.
// A Status is owned by the goroutine that began it; only the shared Holder is safe
// for concurrent use.
type Status struct {
	id             string
	name           string
	owner          any
	holder         *Holder
	newTransaction bool
	newSync        bool
	readOnly       bool

	rollbackOnly bool
	completed    bool
	outcome      State
}

// NewStatus creates a status for owner. newTransaction is true for the scope that
// started the physical transaction held by h; participants pass false.
// Manager implementations outside this package use it to build their statuses.
func NewStatus(owner any, h *Holder, newTransaction bool, def *Definition) *Status {
	if def == nil {
		def = DefaultDefinition()
	}
	return &Status{
		id:             uuid.NewString(),
		name:           def.Name,
		owner:          owner,
		holder:         h,
		newTransaction: newTransaction,
		readOnly:       def.ReadOnly,
		outcome:        StateActive,
	}
}

// ID returns a unique identifier for this status.
func (s *Status) ID() string { return s.id }

// Name returns the definition name the transaction was started with.
func (s *Status) Name() string { return s.name }

// Owner returns the manager that created the status.
func (s *Status) Owner() any { return s.owner }

// Holder returns the shared transaction holder, nil for empty scopes.
func (s *Status) Holder() *Holder { return s.holder }

// Transaction returns the driver-level transaction object or nil.
func (s *Status) Transaction() any { return s.holder.Resource() }

// HasTransaction reports whether the status is backed by an actual transaction.
func (s *Status) HasTransaction() bool { return s.holder.Resource() != nil }

// IsNewTransaction reports whether this status started the physical transaction.
func (s *Status) IsNewTransaction() bool { return s.HasTransaction() && s.newTransaction }

// IsNewSynchronization reports whether this status drives synchronization callbacks.
func (s *Status) IsNewSynchronization() bool { return s.newSync }

// IsReadOnly reports whether the transaction was requested read-only.
func (s *Status) IsReadOnly() bool { return s.readOnly }

// SetRollbackOnly marks this scope rollback-only. Commit then rolls back silently.
func (s *Status) SetRollbackOnly() { s.rollbackOnly = true }

// IsLocalRollbackOnly reports whether this scope was marked via SetRollbackOnly.
func (s *Status) IsLocalRollbackOnly() bool { return s.rollbackOnly }

// IsGlobalRollbackOnly reports whether a participant marked the shared transaction rollback-only.
func (s *Status) IsGlobalRollbackOnly() bool { return s.holder.IsRollbackOnly() }

// IsRollbackOnly reports whether the transaction is rollback-only locally or globally.
func (s *Status) IsRollbackOnly() bool {
	return s.IsLocalRollbackOnly() || s.IsGlobalRollbackOnly()
}

// IsCompleted reports whether Commit or Rollback already ran for this status.
func (s *Status) IsCompleted() bool { return s.completed }

// RegisterSynchronization adds a callback to the transaction the status belongs to.
func (s *Status) RegisterSynchronization(sync Synchronization) error {
	if s.holder == nil || s.completed {
		return ErrSynchronizationInactive
	}
	return s.holder.register(sync)
}

func (s *Status) complete(outcome State) {
	s.completed = true
	s.outcome = outcome
}

// state derives the observable state from the status flags.
func (s *Status) state() State {
	switch {
	case s.completed:
		return s.outcome
	case !s.HasTransaction():
		return StateNoTransaction
	case s.IsRollbackOnly():
		return StateMarkedRollback
	default:
		return StateActive
	}
}
