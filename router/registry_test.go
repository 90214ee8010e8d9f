package router_test

import (
	"bytes"
	"context"
	"database/sql"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/gaborage/txrouter/logger"
	obtest "github.com/gaborage/txrouter/observability/testing"
	"github.com/gaborage/txrouter/router"
	"github.com/gaborage/txrouter/testing/mocks"
	"github.com/gaborage/txrouter/transaction"
	"github.com/gaborage/txrouter/transaction/jta"
	"github.com/gaborage/txrouter/transaction/sqltx"
	txtesting "github.com/gaborage/txrouter/transaction/testing"
)

// countingFactory wraps router.Classify and counts constructions.
type countingFactory struct {
	calls atomic.Int64
}

func (f *countingFactory) build(resource any) (transaction.Manager, error) {
	f.calls.Add(1)
	return router.Classify(resource)
}

func TestGetOrCreateConstructsOncePerResource(t *testing.T) {
	f := &countingFactory{}
	reg := router.NewRegistry(router.WithFactory(f.build))
	ctx := context.Background()

	ut := txtesting.NewFakeUserTransaction()
	const callers = 64
	results := make([]transaction.Manager, callers)

	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			m, err := reg.GetOrCreate(ctx, ut)
			results[i] = m
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, f.calls.Load())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestGetOrCreateDistinctResources(t *testing.T) {
	reg := router.NewRegistry()
	ctx := context.Background()

	ut1, ut2 := txtesting.NewFakeUserTransaction(), txtesting.NewFakeUserTransaction()
	m1, err := reg.GetOrCreate(ctx, ut1)
	require.NoError(t, err)
	m2, err := reg.GetOrCreate(ctx, ut2)
	require.NoError(t, err)

	assert.NotSame(t, m1, m2)
	again, err := reg.GetOrCreate(ctx, ut1)
	require.NoError(t, err)
	assert.Same(t, m1, again)
	assert.Equal(t, 2, reg.Len())
}

func TestGetOrCreateUnsupportedLeavesNoEntry(t *testing.T) {
	f := &countingFactory{}
	reg := router.NewRegistry(router.WithFactory(f.build))
	resource := &struct{ id int }{id: 7}

	for range 2 {
		_, err := reg.GetOrCreate(context.Background(), resource)
		require.ErrorIs(t, err, router.ErrUnsupportedResourceKind)
	}
	assert.Equal(t, 0, reg.Len())
	_, ok := reg.Lookup(resource)
	assert.False(t, ok)
	assert.EqualValues(t, 2, f.calls.Load(), "failed constructions are retried")
}

func TestGetOrCreateRecoversFactoryPanic(t *testing.T) {
	calls := 0
	reg := router.NewRegistry(router.WithFactory(func(any) (transaction.Manager, error) {
		calls++
		if calls == 1 {
			panic("driver exploded")
		}
		return &mocks.MockManager{}, nil
	}))
	ut := txtesting.NewFakeUserTransaction()

	_, err := reg.GetOrCreate(context.Background(), ut)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver exploded")
	assert.Equal(t, 0, reg.Len())

	m, err := reg.GetOrCreate(context.Background(), ut)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestGetOrCreateRejectsInvalidHandles(t *testing.T) {
	reg := router.NewRegistry()

	_, err := reg.GetOrCreate(context.Background(), nil)
	assert.ErrorIs(t, err, router.ErrNilResource)

	_, err = reg.GetOrCreate(context.Background(), map[string]int{"a": 1})
	assert.ErrorIs(t, err, router.ErrIncomparableResource)
	assert.Equal(t, 0, reg.Len())
}

func TestGetOrCreateNormalizesDelegatingHandle(t *testing.T) {
	f := &countingFactory{}
	reg := router.NewRegistry(router.WithFactory(f.build))
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	direct, err := reg.GetOrCreate(ctx, db)
	require.NoError(t, err)
	wrapped, err := reg.GetOrCreate(ctx, sqltx.NewDelegatingDataSource(db))
	require.NoError(t, err)

	assert.Same(t, direct, wrapped)
	assert.Same(t, db, wrapped.(*sqltx.Manager).DataSource())
	assert.EqualValues(t, 1, f.calls.Load())
	assert.Equal(t, 1, reg.Len())
}

func TestGetOrCreateRejectsTypedNil(t *testing.T) {
	f := &countingFactory{}
	reg := router.NewRegistry(router.WithFactory(f.build))

	_, err := reg.GetOrCreate(context.Background(), (*sql.DB)(nil))
	assert.ErrorIs(t, err, router.ErrNilResource)
	_, err = reg.GetOrCreate(context.Background(), sqltx.NewDelegatingDataSource((*sql.DB)(nil)))
	assert.ErrorIs(t, err, router.ErrNilResource)
	assert.Zero(t, f.calls.Load())
	assert.Equal(t, 0, reg.Len())
}

func TestRegisterThenGetOrCreate(t *testing.T) {
	f := &countingFactory{}
	reg := router.NewRegistry(router.WithFactory(f.build))
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	explicit := &mocks.MockResourceManager{Resource: db}
	assert.True(t, reg.Register(explicit))

	m, err := reg.GetOrCreate(context.Background(), db)
	require.NoError(t, err)
	assert.Same(t, explicit, m)
	assert.EqualValues(t, 0, f.calls.Load())
}

func TestRegisterDoesNotOverwrite(t *testing.T) {
	reg := router.NewRegistry()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created, err := reg.GetOrCreate(context.Background(), db)
	require.NoError(t, err)

	late := &mocks.MockResourceManager{Resource: db}
	assert.False(t, reg.Register(late))

	m, ok := reg.Lookup(db)
	require.True(t, ok)
	assert.Same(t, created, m)
}

func TestRegisterRacesGetOrCreate(t *testing.T) {
	for range 20 {
		reg := router.NewRegistry()
		ut := txtesting.NewFakeUserTransaction()
		explicit, err := jta.NewManager(jta.WithUserTransaction(ut))
		require.NoError(t, err)

		var g errgroup.Group
		var registered atomic.Bool
		results := make([]transaction.Manager, 8)
		g.Go(func() error {
			registered.Store(reg.Register(explicit))
			return nil
		})
		for i := range results {
			g.Go(func() error {
				m, err := reg.GetOrCreate(context.Background(), ut)
				results[i] = m
				return err
			})
		}
		require.NoError(t, g.Wait())

		winner, ok := reg.Lookup(ut)
		require.True(t, ok)
		if registered.Load() {
			assert.Same(t, explicit, winner)
		}
		for _, m := range results {
			assert.Same(t, winner, m)
		}
	}
}

func TestRegisterCoordinatorBackedIndexesBothHandles(t *testing.T) {
	reg := router.NewRegistry()
	ut := txtesting.NewFakeUserTransaction()
	coord := txtesting.NewFakeCoordinator()
	m, err := jta.NewManager(jta.WithUserTransaction(ut), jta.WithCoordinator(coord))
	require.NoError(t, err)

	assert.True(t, reg.Register(m))
	assert.Equal(t, 2, reg.Len())

	byUT, ok := reg.Lookup(ut)
	require.True(t, ok)
	byCoord, ok := reg.Lookup(coord)
	require.True(t, ok)
	assert.Same(t, m, byUT)
	assert.Same(t, m, byCoord)

	viaCoord, err := reg.GetOrCreate(context.Background(), coord)
	require.NoError(t, err)
	assert.Same(t, m, viaCoord)
}

func TestRegisterCoordinatorOnly(t *testing.T) {
	reg := router.NewRegistry()
	coord := txtesting.NewFakeCoordinator()
	m, err := jta.NewManager(jta.WithCoordinator(coord))
	require.NoError(t, err)

	assert.True(t, reg.Register(m))
	got, ok := reg.Lookup(coord)
	require.True(t, ok)
	assert.Same(t, m, got)
}

func TestRegisterNormalizesDelegatingResource(t *testing.T) {
	reg := router.NewRegistry()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	explicit := &mocks.MockResourceManager{Resource: &wrapper{target: db}}
	assert.True(t, reg.Register(explicit))

	got, ok := reg.Lookup(db)
	require.True(t, ok)
	assert.Same(t, explicit, got)
}

func TestRegisterUnresolvableWarns(t *testing.T) {
	var buf bytes.Buffer
	reg := router.NewRegistry(router.WithLogger(logger.NewWithWriter(&buf, "debug", false)))

	assert.NotPanics(t, func() {
		assert.False(t, reg.Register(&mocks.MockManager{}))
		assert.False(t, reg.Register(&mocks.MockResourceManager{}))
		assert.False(t, reg.Register(nil))
	})
	assert.Equal(t, 0, reg.Len())
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "Cannot determine resource of transaction manager")
	assert.Contains(t, buf.String(), "*mocks.MockManager")
}

func TestRegistryCountsCreatedManagers(t *testing.T) {
	mp := obtest.NewTestMeterProvider()
	reg := router.NewRegistry(router.WithMeterProvider(mp))
	ctx := context.Background()

	ut := txtesting.NewFakeUserTransaction()
	for range 3 {
		_, err := reg.GetOrCreate(ctx, ut)
		require.NoError(t, err)
	}
	_, err := reg.GetOrCreate(ctx, txtesting.NewFakeCoordinator())
	require.NoError(t, err)
	_, err = reg.GetOrCreate(ctx, &struct{ id int }{})
	require.Error(t, err)

	rm := mp.Collect(t)
	assert.EqualValues(t, 2, obtest.SumInt64(t, rm, "txrouter.managers.created"))
	assert.EqualValues(t, 1, obtest.SumInt64(t, rm, "txrouter.managers.created",
		attribute.String("txrouter.resource.kind", "user_transaction")))
}

func TestLookupMissing(t *testing.T) {
	reg := router.NewRegistry()
	_, ok := reg.Lookup(txtesting.NewFakeCoordinator())
	assert.False(t, ok)
	_, ok = reg.Lookup([]int{1})
	assert.False(t, ok)
}
