package dbgclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient answers every metadata request with fixed data.
type stubClient struct {
	fieldDelay time.Duration
	fieldErr   error
	memory     atomic.Uint64

	// fieldGate, when set, holds FieldOffset until closed or until the
	// request context ends. fieldStarted is signalled on entry.
	fieldGate    chan struct{}
	fieldStarted chan struct{}
}

func (s *stubClient) PointerSize(context.Context) (int, error) { return 8, nil }

func (s *stubClient) TypeSize(context.Context, string, string) (int64, error) { return 16, nil }

func (s *stubClient) FieldOffset(ctx context.Context, module, typ, field string) (FieldInfo, error) {
	if s.fieldDelay > 0 {
		time.Sleep(s.fieldDelay)
	}
	if s.fieldGate != nil {
		select {
		case s.fieldStarted <- struct{}{}:
		default:
		}
		select {
		case <-s.fieldGate:
		case <-ctx.Done():
			return FieldInfo{}, ctx.Err()
		}
	}
	if s.fieldErr != nil {
		return FieldInfo{}, s.fieldErr
	}
	return FieldInfo{Module: module, Type: "int", Offset: 4, Size: 4}, nil
}

func (s *stubClient) TypeFields(context.Context, string, string, bool) ([]TypeField, error) {
	return []TypeField{{Name: "x", FieldInfo: FieldInfo{Type: "int", Size: 4}}}, nil
}

func (s *stubClient) BaseTypes(context.Context, string, string) ([]BaseType, error) {
	return []BaseType{{Module: "app", Type: "Base", Offset: 0}}, nil
}

func (s *stubClient) IsEnum(context.Context, string, string) (bool, error) { return false, nil }

func (s *stubClient) ConstantName(context.Context, string, string, uint64) ([]string, error) {
	return []string{"Red"}, nil
}

func (s *stubClient) ConstantValue(context.Context, string, string, string) (uint64, error) {
	return 1, nil
}

func (s *stubClient) SymbolName(context.Context, uint64) (SymbolInfo, error) {
	return SymbolInfo{Module: "app", Name: "g_root"}, nil
}

func (s *stubClient) GlobalSymbol(context.Context, string, string) (GlobalInfo, error) {
	return GlobalInfo{Module: "app", Type: "Node", Pointer: 0x3000}, nil
}

func (s *stubClient) ReadNumber(context.Context, uint64, int) (uint64, error) {
	return s.memory.Load(), nil
}

func (s *stubClient) ReadArray(_ context.Context, _ uint64, _ int, count int) ([]uint64, error) {
	return make([]uint64, count), nil
}

func newCachingForTest(stub *stubClient) (*CachingClient, *CountingClient) {
	counting := NewCountingClient(stub)
	return NewCachingClient(counting, nil), counting
}

func TestCachingClient_MemoizesMetadata(t *testing.T) {
	ctx := context.Background()
	cache, counting := newCachingForTest(&stubClient{})

	for range 3 {
		info, err := cache.FieldOffset(ctx, "app", "Point", "y")
		require.NoError(t, err)
		assert.Equal(t, int64(4), info.Offset)
	}
	assert.Equal(t, 1, counting.Count(OpFieldOffset))

	_, err := cache.FieldOffset(ctx, "app", "Point", "x")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.Count(OpFieldOffset), "different parameters are different keys")
	assert.Equal(t, 2, cache.Len())
}

func TestCachingClient_Purge(t *testing.T) {
	ctx := context.Background()
	cache, counting := newCachingForTest(&stubClient{})

	_, err := cache.TypeSize(ctx, "app", "Point")
	require.NoError(t, err)
	cache.Purge()
	assert.Zero(t, cache.Len())

	_, err = cache.TypeSize(ctx, "app", "Point")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.Count(OpTypeSize))
}

func TestCachingClient_EntriesGaugeSumsClients(t *testing.T) {
	ctx := context.Background()
	gauge := NewCacheMetrics().Entries
	before := testutil.ToFloat64(gauge)

	a, _ := newCachingForTest(&stubClient{})
	b, _ := newCachingForTest(&stubClient{})
	_, err := a.TypeSize(ctx, "app", "Point")
	require.NoError(t, err)
	_, err = a.TypeSize(ctx, "app", "Point")
	require.NoError(t, err)
	_, err = b.TypeSize(ctx, "app", "Point")
	require.NoError(t, err)
	_, err = b.TypeSize(ctx, "app", "Node")
	require.NoError(t, err)
	assert.Equal(t, before+3, testutil.ToFloat64(gauge))

	a.Purge()
	assert.Equal(t, before+2, testutil.ToFloat64(gauge), "purging one cache keeps the other's entries")
	b.Purge()
	assert.Equal(t, before, testutil.ToFloat64(gauge))
}

func TestCachingClient_MemoryIsNeverCached(t *testing.T) {
	ctx := context.Background()
	stub := &stubClient{}
	cache, counting := newCachingForTest(stub)

	stub.memory.Store(1)
	v, err := cache.ReadNumber(ctx, 0x1000, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	stub.memory.Store(2)
	v, err = cache.ReadNumber(ctx, 0x1000, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	_, err = cache.ReadArray(ctx, 0x1000, 4, 2)
	require.NoError(t, err)
	_, err = cache.ReadArray(ctx, 0x1000, 4, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, counting.Count(OpReadNumber))
	assert.Equal(t, 2, counting.Count(OpReadArray))
	assert.Equal(t, 0, cache.Len())
}

func TestCachingClient_CachesServiceErrors(t *testing.T) {
	ctx := context.Background()
	cache, counting := newCachingForTest(&stubClient{fieldErr: Errorf(OpFieldOffset, "no such field")})

	_, err := cache.FieldOffset(ctx, "app", "Point", "nope")
	require.Error(t, err)
	_, err = cache.FieldOffset(ctx, "app", "Point", "nope")
	require.Error(t, err)
	assert.Equal(t, 1, counting.Count(OpFieldOffset))
}

func TestCachingClient_DoesNotCacheTransportErrors(t *testing.T) {
	ctx := context.Background()
	stub := &stubClient{fieldErr: &RemoteError{Op: OpFieldOffset, Payload: "down", Err: ErrTransport}}
	cache, counting := newCachingForTest(stub)

	_, err := cache.FieldOffset(ctx, "app", "Point", "y")
	require.True(t, IsTransport(err))
	_, err = cache.FieldOffset(ctx, "app", "Point", "y")
	require.True(t, IsTransport(err))
	assert.Equal(t, 2, counting.Count(OpFieldOffset))
	assert.Equal(t, 0, cache.Len())
}

func TestCachingClient_DoesNotCacheCancellation(t *testing.T) {
	stub := &stubClient{fieldErr: context.Canceled}
	cache, counting := newCachingForTest(stub)

	_, err := cache.FieldOffset(context.Background(), "app", "Point", "y")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 1, counting.Count(OpFieldOffset))
}

func TestCachingClient_CoalescesConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	cache, counting := newCachingForTest(&stubClient{fieldDelay: 50 * time.Millisecond})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.FieldOffset(ctx, "app", "Point", "y")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, counting.Count(OpFieldOffset))
}

func TestCachingClient_CanceledCallerDoesNotFailOthers(t *testing.T) {
	stub := &stubClient{fieldGate: make(chan struct{}), fieldStarted: make(chan struct{}, 1)}
	cache, counting := newCachingForTest(stub)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.FieldOffset(first, "app", "Point", "y")
		firstErr <- err
	}()
	<-stub.fieldStarted

	type result struct {
		info FieldInfo
		err  error
	}
	second := make(chan result, 1)
	go func() {
		info, err := cache.FieldOffset(context.Background(), "app", "Point", "y")
		second <- result{info, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(stub.fieldGate)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, int64(4), got.info.Offset)
	assert.Equal(t, 1, counting.Count(OpFieldOffset))
	assert.Equal(t, 1, cache.Len())
}

func TestCachingClient_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCachingForTest(&stubClient{})

	bases, err := cache.BaseTypes(ctx, "app", "Derived")
	require.NoError(t, err)
	bases[0].Type = "mutated"

	again, err := cache.BaseTypes(ctx, "app", "Derived")
	require.NoError(t, err)
	assert.Equal(t, "Base", again[0].Type)
}

func TestCountingClient_Reset(t *testing.T) {
	counting := NewCountingClient(&stubClient{})
	_, _ = counting.PointerSize(context.Background())
	_, _ = counting.TypeSize(context.Background(), "app", "Point")
	assert.Equal(t, 2, counting.Total())
	assert.Equal(t, map[string]int{OpPointerSize: 1, OpTypeSize: 1}, counting.Counts())

	counting.Reset()
	assert.Equal(t, 0, counting.Total())
}
