// Package mongotx provides the connector transaction manager for MongoDB clients,
// using one session per transaction.
package mongotx

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/transaction"
)

// Manager runs transactions on a *mongo.Client.
type Manager struct {
	*transaction.Processor
	client *mongo.Client
}

var (
	_ transaction.ResourceManager           = (*Manager)(nil)
	_ transaction.SynchronizationConfigurer = (*Manager)(nil)
	_ transaction.Strategy                  = (*Manager)(nil)
	_ transaction.Cleaner                   = (*Manager)(nil)
)

// NewManager creates a connector manager for client.
func NewManager(client *mongo.Client, log logger.Logger) *Manager {
	m := &Manager{client: client}
	m.Processor = transaction.NewProcessor(m)
	m.SetLogger(log)
	return m
}

// Client returns the managed client.
func (m *Manager) Client() *mongo.Client { return m.client }

// ResourceFactory implements transaction.ResourceManager.
func (m *Manager) ResourceFactory() any { return m.client }

// DoBegin implements transaction.Strategy. Isolation and read-only settings have no
// MongoDB equivalent and are ignored.
func (m *Manager) DoBegin(ctx context.Context, _ *transaction.Definition) (any, error) {
	sess, err := m.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start mongodb session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("start mongodb transaction: %w", err)
	}
	return sess, nil
}

// DoCommit implements transaction.Strategy.
func (m *Manager) DoCommit(ctx context.Context, status *transaction.Status) error {
	sess, err := sessionOf(status)
	if err != nil {
		return err
	}
	if err := sess.CommitTransaction(mongo.NewSessionContext(ctx, sess)); err != nil {
		if isAborted(err) {
			return fmt.Errorf("%w: %w", transaction.ErrUnexpectedRollback, err)
		}
		return fmt.Errorf("commit mongodb transaction: %w", err)
	}
	return nil
}

// DoRollback implements transaction.Strategy.
func (m *Manager) DoRollback(ctx context.Context, status *transaction.Status) error {
	sess, err := sessionOf(status)
	if err != nil {
		return err
	}
	if err := sess.AbortTransaction(mongo.NewSessionContext(ctx, sess)); err != nil {
		return fmt.Errorf("abort mongodb transaction: %w", err)
	}
	return nil
}

// DoCleanup implements transaction.Cleaner by ending the session.
func (m *Manager) DoCleanup(ctx context.Context, status *transaction.Status) {
	if sess, err := sessionOf(status); err == nil {
		sess.EndSession(ctx)
	}
}

// noSuchTransaction is the server error code for a transaction that was already aborted.
const noSuchTransaction = 251

func isAborted(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(noSuchTransaction) || se.HasErrorLabel("TransientTransactionError")
}

func sessionOf(status *transaction.Status) (*mongo.Session, error) {
	sess, ok := status.Transaction().(*mongo.Session)
	if !ok || sess == nil {
		return nil, fmt.Errorf("%w: status does not carry a *mongo.Session", transaction.ErrIllegalTransactionState)
	}
	return sess, nil
}

// SessionContext returns ctx bound to the session of the most recently bound status,
// so collection operations run inside the transaction. ctx is returned unchanged when
// no MongoDB transaction is bound.
func SessionContext(ctx context.Context) context.Context {
	status, ok := transaction.Current(ctx)
	if !ok {
		return ctx
	}
	sess, ok := status.Transaction().(*mongo.Session)
	if !ok || sess == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, sess)
}
