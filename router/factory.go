package router

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/transaction"
	"github.com/gaborage/txrouter/transaction/jta"
	"github.com/gaborage/txrouter/transaction/mongotx"
	"github.com/gaborage/txrouter/transaction/pgxtx"
	"github.com/gaborage/txrouter/transaction/sqltx"
)

var (
	// ErrUnsupportedResourceKind is matched by every *UnsupportedResourceKindError.
	ErrUnsupportedResourceKind = errors.New("unsupported resource kind")
	// ErrNilResource is returned when a nil handle reaches the factory.
	ErrNilResource = errors.New("resource handle is nil")
	// ErrIncomparableResource is returned for handles that cannot serve as registry keys.
	ErrIncomparableResource = errors.New("resource handle is not comparable")
)

// Kind is the classification of a resource handle.
type Kind string

const (
	KindRelational      Kind = "relational"
	KindConnector       Kind = "connector"
	KindUserTransaction Kind = "user_transaction"
	KindCoordinator     Kind = "coordinator"
	KindManager         Kind = "manager"
	KindUnknown         Kind = "unknown"
)

// supportedKinds lists the recognized kinds in classification order.
var supportedKinds = []string{
	"relational datasource (sqltx.DataSource, e.g. *sql.DB)",
	"connector factory (pgxtx.ConnectionFactory, e.g. *pgxpool.Pool; *mongo.Client)",
	"user transaction (jta.UserTransaction)",
	"transaction coordinator (jta.Coordinator)",
	"transaction manager (transaction.Manager)",
}

// UnsupportedResourceKindError reports a handle that matches no recognized kind.
type UnsupportedResourceKindError struct {
	Type string
}

func (e *UnsupportedResourceKindError) Error() string {
	return fmt.Sprintf("unsupported resource kind %s: supported kinds are %s",
		e.Type, strings.Join(supportedKinds, ", "))
}

// Is makes errors.Is(err, ErrUnsupportedResourceKind) hold.
func (e *UnsupportedResourceKindError) Is(target error) bool {
	return target == ErrUnsupportedResourceKind
}

// Factory builds the canonical manager for a normalized resource handle.
type Factory func(resource any) (transaction.Manager, error)

// KindOf classifies resource. The first matching kind wins.
func KindOf(resource any) Kind {
	switch resource.(type) {
	case nil:
		return KindUnknown
	case sqltx.DataSource:
		return KindRelational
	case pgxtx.ConnectionFactory, *mongo.Client:
		return KindConnector
	case jta.UserTransaction:
		return KindUserTransaction
	case jta.Coordinator:
		return KindCoordinator
	case transaction.Manager:
		return KindManager
	default:
		return KindUnknown
	}
}

// NewFactory returns a Factory whose managers log through log. Managers that accept
// a synchronization mode are switched to transaction.SyncOnActualTransaction.
func NewFactory(log logger.Logger) Factory {
	if log == nil {
		log = logger.Nop()
	}
	return func(resource any) (transaction.Manager, error) {
		m, err := construct(resource, log)
		if err != nil {
			return nil, err
		}
		if sc, ok := m.(transaction.SynchronizationConfigurer); ok {
			sc.SetSynchronization(transaction.SyncOnActualTransaction)
		}
		return m, nil
	}
}

// Classify builds the manager for resource with a silent logger.
func Classify(resource any) (transaction.Manager, error) {
	return NewFactory(nil)(resource)
}

func construct(resource any, log logger.Logger) (transaction.Manager, error) {
	switch r := resource.(type) {
	case nil:
		return nil, ErrNilResource
	case sqltx.DataSource:
		return sqltx.NewManager(r, log), nil
	case pgxtx.ConnectionFactory:
		return pgxtx.NewManager(r, log), nil
	case *mongo.Client:
		return mongotx.NewManager(r, log), nil
	case jta.UserTransaction:
		return jtaManager(jta.WithUserTransaction(r), jta.WithLogger(log))
	case jta.Coordinator:
		return jtaManager(jta.WithCoordinator(r), jta.WithLogger(log))
	case transaction.Manager:
		return r, nil
	default:
		return nil, &UnsupportedResourceKindError{Type: fmt.Sprintf("%T", resource)}
	}
}

// jtaManager keeps a failed construction from surfacing as a typed-nil Manager.
func jtaManager(opts ...jta.Option) (transaction.Manager, error) {
	m, err := jta.NewManager(opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// maxUnwrapDepth bounds Normalize on delegating chains.
const maxUnwrapDepth = 8

// Normalize unwraps transaction.Delegating handles to their target. It stops at the
// first non-delegating handle, at a nil or self target, or after maxUnwrapDepth steps.
// A nil handle, including a typed nil such as (*sql.DB)(nil), normalizes to nil.
func Normalize(resource any) any {
	if isNilHandle(resource) {
		return nil
	}
	for range maxUnwrapDepth {
		d, ok := resource.(transaction.Delegating)
		if !ok {
			return resource
		}
		target := d.Target()
		if isNilHandle(target) || sameHandle(target, resource) {
			return resource
		}
		resource = target
	}
	return resource
}

// isNilHandle reports whether resource is nil or an interface holding a nil
// pointer, map, slice, channel or func.
func isNilHandle(resource any) bool {
	if resource == nil {
		return true
	}
	v := reflect.ValueOf(resource)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return v.IsNil()
	default:
		return false
	}
}

func isComparable(resource any) bool {
	return resource != nil && reflect.ValueOf(resource).Comparable()
}

func sameHandle(a, b any) bool {
	return isComparable(a) && isComparable(b) && a == b
}
