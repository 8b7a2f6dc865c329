package tenancy

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestCachedStore_L1(t *testing.T) {
	ctx := context.Background()
	flags := newMapFlags()
	flags.flags["T1/money-loan"] = true
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	cache := NewCachedStore(flags, nil, CacheConfig{TTL: time.Minute}, metrics, quietLogger())

	for i := 0; i < 5; i++ {
		enabled, err := cache.IsEnabled(ctx, "T1", "money-loan")
		require.NoError(t, err)
		assert.True(t, enabled)
	}

	assert.Equal(t, 1, flags.lookups())
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.FeatureLookupsTotal.WithLabelValues("l1", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FeatureLookupsTotal.WithLabelValues("store", "miss")))
}

func TestCachedStore_CachesAbsence(t *testing.T) {
	ctx := context.Background()
	flags := newMapFlags()
	cache := NewCachedStore(flags, nil, CacheConfig{}, nil, quietLogger())

	for i := 0; i < 3; i++ {
		enabled, err := cache.IsEnabled(ctx, "T2", "money-loan")
		require.NoError(t, err)
		assert.False(t, enabled)
	}
	assert.Equal(t, 1, flags.lookups())
}

func TestCachedStore_Redis(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)

	flags := newMapFlags()
	flags.flags["T1/money-loan"] = true

	first := NewCachedStore(flags, client, CacheConfig{TTL: time.Minute}, nil, quietLogger())
	enabled, err := first.IsEnabled(ctx, "T1", "money-loan")
	require.NoError(t, err)
	assert.True(t, enabled)

	val, err := mr.Get("tenantgate:feature:T1:money-loan")
	require.NoError(t, err)
	assert.Equal(t, "1", val)

	// A second instance (another replica) is served from redis
	second := NewCachedStore(flags, client, CacheConfig{TTL: time.Minute}, nil, quietLogger())
	enabled, err = second.IsEnabled(ctx, "T1", "money-loan")
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, 1, flags.lookups())
}

func TestCachedStore_RedisDownFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	mr.Close()

	flags := newMapFlags()
	flags.flags["T1/money-loan"] = true
	cache := NewCachedStore(flags, client, CacheConfig{}, nil, quietLogger())

	enabled, err := cache.IsEnabled(ctx, "T1", "money-loan")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestCachedStore_SetEnabledInvalidates(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)

	flags := newMapFlags()
	cache := NewCachedStore(flags, client, CacheConfig{TTL: time.Hour}, nil, quietLogger())

	enabled, err := cache.IsEnabled(ctx, "T1", "reports")
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.True(t, mr.Exists("tenantgate:feature:T1:reports"))

	require.NoError(t, cache.SetEnabled(ctx, "T1", "reports", true))
	assert.False(t, mr.Exists("tenantgate:feature:T1:reports"))

	enabled, err = cache.IsEnabled(ctx, "T1", "reports")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestCachedStore_StoreErrorNotCached(t *testing.T) {
	ctx := context.Background()
	flags := newMapFlags()
	flags.err = errors.New("db down")
	cache := NewCachedStore(flags, nil, CacheConfig{}, nil, quietLogger())

	_, err := cache.IsEnabled(ctx, "T1", "money-loan")
	assert.Error(t, err)

	flags.mu.Lock()
	flags.err = nil
	flags.flags["T1/money-loan"] = true
	flags.mu.Unlock()

	enabled, err := cache.IsEnabled(ctx, "T1", "money-loan")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestCachedStore_ConcurrentReads(t *testing.T) {
	ctx := context.Background()
	flags := newMapFlags()
	flags.flags["T1/money-loan"] = true
	cache := NewCachedStore(flags, nil, CacheConfig{}, nil, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enabled, err := cache.IsEnabled(ctx, "T1", "money-loan")
			assert.NoError(t, err)
			assert.True(t, enabled)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, flags.lookups(), 50)
	assert.GreaterOrEqual(t, flags.lookups(), 1)
}

// slowFlags reads the flag, then holds the lookup until release is closed
// or the lookup context ends
type slowFlags struct {
	mu      sync.Mutex
	flags   map[string]bool
	started chan struct{}
	release chan struct{}
}

func newSlowFlags() *slowFlags {
	return &slowFlags{
		flags:   make(map[string]bool),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *slowFlags) IsEnabled(ctx context.Context, tenantID, module string) (bool, error) {
	s.mu.Lock()
	enabled := s.flags[tenantID+"/"+module]
	s.mu.Unlock()

	select {
	case s.started <- struct{}{}:
	default:
	}

	select {
	case <-s.release:
		return enabled, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *slowFlags) SetEnabled(ctx context.Context, tenantID, module string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[tenantID+"/"+module] = enabled
	return nil
}

func TestCachedStore_CancelledCallerDoesNotFailOthers(t *testing.T) {
	flags := newSlowFlags()
	flags.flags["T1/money-loan"] = true
	cache := NewCachedStore(flags, nil, CacheConfig{}, nil, quietLogger())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.IsEnabled(ctxA, "T1", "money-loan")
		errA <- err
	}()
	<-flags.started

	type result struct {
		enabled bool
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		enabled, err := cache.IsEnabled(context.Background(), "T1", "money-loan")
		resB <- result{enabled, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(flags.release)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.True(t, res.enabled)
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
}

func TestCachedStore_LookupTimeout(t *testing.T) {
	flags := newSlowFlags()
	cache := NewCachedStore(flags, nil, CacheConfig{LookupTimeout: 20 * time.Millisecond}, nil, quietLogger())

	_, err := cache.IsEnabled(context.Background(), "T1", "money-loan")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCachedStore_WriteDuringLoadIsNotCached(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	flags := newSlowFlags()
	cache := NewCachedStore(flags, client, CacheConfig{TTL: time.Hour}, nil, quietLogger())

	stale := make(chan bool, 1)
	go func() {
		enabled, err := cache.IsEnabled(ctx, "T1", "reports")
		assert.NoError(t, err)
		stale <- enabled
	}()
	<-flags.started

	// The load above already read "disabled"
	require.NoError(t, cache.SetEnabled(ctx, "T1", "reports", true))
	close(flags.release)
	assert.False(t, <-stale)

	assert.False(t, mr.Exists("tenantgate:feature:T1:reports"))
	enabled, err := cache.IsEnabled(ctx, "T1", "reports")
	require.NoError(t, err)
	assert.True(t, enabled)
}
