package transaction

import (
	"database/sql"
	"fmt"
	"time"
)

// Propagation controls how Begin behaves when a transaction of the same manager
// is already bound to the context.
type Propagation int

const (
	// PropagationRequired joins the current transaction or starts a new one.
	PropagationRequired Propagation = iota
	// PropagationSupports joins the current transaction or runs without one.
	PropagationSupports
	// PropagationMandatory joins the current transaction and fails without one.
	PropagationMandatory
	// PropagationNever runs without a transaction and fails if one exists.
	PropagationNever
)

func (p Propagation) String() string {
	switch p {
	case PropagationRequired:
		return "required"
	case PropagationSupports:
		return "supports"
	case PropagationMandatory:
		return "mandatory"
	case PropagationNever:
		return "never"
	default:
		return fmt.Sprintf("propagation(%d)", int(p))
	}
}

// Definition describes the transaction requested from Begin.
// The zero value is a read-write transaction with PropagationRequired and the
// driver's default isolation.
type Definition struct {
	Name        string
	Propagation Propagation
	Isolation   sql.IsolationLevel
	ReadOnly    bool
	// Timeout bounds the transaction from Begin to Commit. Zero disables it.
	Timeout time.Duration
}

// DefaultDefinition returns the definition used when Begin receives nil.
func DefaultDefinition() *Definition {
	return &Definition{Propagation: PropagationRequired, Isolation: sql.LevelDefault}
}

// TxOptions converts the definition to database/sql options.
func (d *Definition) TxOptions() *sql.TxOptions {
	if d == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: d.Isolation, ReadOnly: d.ReadOnly}
}
