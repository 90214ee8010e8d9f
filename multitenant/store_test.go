package multitenant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	testconsts "github.com/gaborage/txrouter/testing"
)

type handle struct{ name string }

// countingStore serves a fixed handle per tenant and counts upstream calls.
type countingStore struct {
	calls   atomic.Int32
	mu      sync.Mutex
	handles map[string]*handle
	err     error
	delay   time.Duration
}

func newCountingStore(tenants ...string) *countingStore {
	s := &countingStore{handles: map[string]*handle{}}
	for _, id := range tenants {
		s.handles[id] = &handle{name: id}
	}
	return s
}

func (s *countingStore) Resource(_ context.Context, tenantID string) (any, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	h, ok := s.handles[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return h, nil
}

func (s *countingStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func TestStaticStore(t *testing.T) {
	acme := &handle{name: testconsts.TestTenantAcme}
	store := StaticStore{testconsts.TestTenantAcme: acme}

	r, err := store.Resource(context.Background(), testconsts.TestTenantAcme)
	require.NoError(t, err)
	assert.Same(t, acme, r)

	_, err = store.Resource(context.Background(), testconsts.TestTenantGlobex)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestStoreFunc(t *testing.T) {
	store := StoreFunc(func(_ context.Context, tenantID string) (any, error) { return tenantID, nil })
	r, err := store.Resource(context.Background(), testconsts.TestTenantAcme)
	require.NoError(t, err)
	assert.Equal(t, testconsts.TestTenantAcme, r)
}

func TestCachedStoreServesFromCache(t *testing.T) {
	upstream := newCountingStore(testconsts.TestTenantAcme)
	store := NewCachedStore(upstream)
	ctx := context.Background()

	first, err := store.Resource(ctx, testconsts.TestTenantAcme)
	require.NoError(t, err)
	second, err := store.Resource(ctx, testconsts.TestTenantAcme)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), upstream.calls.Load())
	assert.Equal(t, 1, store.Len())
}

func TestCachedStoreSharesConcurrentMisses(t *testing.T) {
	upstream := newCountingStore(testconsts.TestTenantAcme)
	upstream.delay = 20 * time.Millisecond
	store := NewCachedStore(upstream)

	var g errgroup.Group
	results := make([]any, 16)
	for i := range results {
		g.Go(func() error {
			r, err := store.Resource(context.Background(), testconsts.TestTenantAcme)
			results[i] = r
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.LessOrEqual(t, upstream.calls.Load(), int32(len(results)))
	assert.Equal(t, 1, store.Len())
}

func TestCachedStoreServesStaleOnUpstreamFailure(t *testing.T) {
	upstream := newCountingStore(testconsts.TestTenantAcme)
	store := NewCachedStore(upstream, WithTTL(time.Nanosecond), WithStaleGracePeriod(time.Hour))
	ctx := context.Background()

	cached, err := store.Resource(ctx, testconsts.TestTenantAcme)
	require.NoError(t, err)

	upstream.fail(errors.New("tenant directory unavailable"))
	time.Sleep(time.Millisecond)

	r, err := store.Resource(ctx, testconsts.TestTenantAcme)
	require.NoError(t, err)
	assert.Same(t, cached, r)
}

func TestCachedStoreReturnsErrorWithoutCache(t *testing.T) {
	upstream := newCountingStore()
	store := NewCachedStore(upstream)

	_, err := store.Resource(context.Background(), testconsts.TestTenantAcme)
	assert.ErrorIs(t, err, ErrTenantNotFound)
	assert.Zero(t, store.Len())
}

func TestCachedStoreEvictsLeastRecentlyUsed(t *testing.T) {
	upstream := newCountingStore(testconsts.TestTenantAcme, testconsts.TestTenantGlobex, "initech")
	store := NewCachedStore(upstream, WithMaxSize(2))
	ctx := context.Background()

	_, err := store.Resource(ctx, testconsts.TestTenantAcme)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = store.Resource(ctx, testconsts.TestTenantGlobex)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = store.Resource(ctx, "initech")
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())

	// acme was evicted and is fetched again.
	_, err = store.Resource(ctx, testconsts.TestTenantAcme)
	require.NoError(t, err)
	assert.Equal(t, int32(4), upstream.calls.Load())
}

func TestCachedStoreInvalidate(t *testing.T) {
	upstream := newCountingStore(testconsts.TestTenantAcme)
	store := NewCachedStore(upstream)
	ctx := context.Background()

	_, err := store.Resource(ctx, testconsts.TestTenantAcme)
	require.NoError(t, err)
	store.Invalidate(testconsts.TestTenantAcme)
	_, err = store.Resource(ctx, testconsts.TestTenantAcme)
	require.NoError(t, err)

	assert.Equal(t, int32(2), upstream.calls.Load())
}

func TestCachedStoreNil(t *testing.T) {
	var store *CachedStore
	_, err := store.Resource(context.Background(), testconsts.TestTenantAcme)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}
