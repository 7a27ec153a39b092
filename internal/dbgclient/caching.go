package dbgclient

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CachingClient memoizes metadata responses of an inner Client for the life
// of the process. Keys are the exact request parameters. Concurrent identical
// requests are coalesced into one. Memory reads pass straight through.
//
// Service errors are cached like results since metadata is static; transport
// errors are not.
type CachingClient struct {
	inner   Client
	logger  *zap.Logger
	metrics *CacheMetrics

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	val any
	err error
}

var _ Client = (*CachingClient)(nil)

// NewCachingClient wraps inner.
func NewCachingClient(inner Client, logger *zap.Logger) *CachingClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingClient{
		inner:   inner,
		logger:  logger.Named("metadata-cache"),
		metrics: NewCacheMetrics(),
		entries: make(map[string]cacheEntry),
	}
}

// Len returns the number of memoized responses.
func (c *CachingClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops every memoized response. It is used when the debuggee's
// metadata itself changes, as when a snapshot file is replaced.
func (c *CachingClient) Purge() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	c.metrics.Entries.Sub(float64(n))
	c.logger.Debug("metadata cache purged")
}

// Inner returns the wrapped client.
func (c *CachingClient) Inner() Client {
	return c.inner
}

func (c *CachingClient) lookup(key string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *CachingClient) store(key string, e cacheEntry) {
	c.mu.Lock()
	_, existed := c.entries[key]
	c.entries[key] = e
	c.mu.Unlock()
	if !existed {
		c.metrics.Entries.Inc()
	}
}

func cacheKey(op string, params ...string) string {
	var b strings.Builder
	b.WriteString(op)
	for _, p := range params {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(p))
	}
	return b.String()
}

// cached returns the memoized response for key, fetching it at most once
// across concurrent callers. The shared fetch is not canceled with the
// caller that started it; each caller stops waiting when its own ctx ends.
func cached[T any](ctx context.Context, c *CachingClient, op, key string, fetch func(context.Context) (T, error)) (T, error) {
	if e, ok := c.lookup(key); ok {
		c.metrics.HitsTotal.WithLabelValues(op).Inc()
		return unpack[T](e)
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if e, ok := c.lookup(key); ok {
			return e, nil
		}
		c.metrics.MissesTotal.WithLabelValues(op).Inc()

		val, err := fetch(fetchCtx)
		e := cacheEntry{val: val, err: err}
		if !cacheable(err) {
			c.logger.Debug("not caching failure", zap.String("key", key), zap.Error(err))
			return e, nil
		}
		c.store(key, e)
		return e, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.CoalescedTotal.WithLabelValues(op).Inc()
		}
		return unpack[T](res.Val.(cacheEntry))
	}
}

// cacheable reports whether a response with err describes the debuggee
// rather than the conditions of the request.
func cacheable(err error) bool {
	if err == nil {
		return true
	}
	return !IsTransport(err) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func unpack[T any](e cacheEntry) (T, error) {
	if e.err != nil {
		var zero T
		return zero, e.err
	}
	return e.val.(T), nil
}

// PointerSize implements Client.
func (c *CachingClient) PointerSize(ctx context.Context) (int, error) {
	return cached(ctx, c, OpPointerSize, cacheKey(OpPointerSize), c.inner.PointerSize)
}

// TypeSize implements Client.
func (c *CachingClient) TypeSize(ctx context.Context, module, typ string) (int64, error) {
	return cached(ctx, c, OpTypeSize, cacheKey(OpTypeSize, module, typ), func(ctx context.Context) (int64, error) {
		return c.inner.TypeSize(ctx, module, typ)
	})
}

// FieldOffset implements Client.
func (c *CachingClient) FieldOffset(ctx context.Context, module, typ, field string) (FieldInfo, error) {
	return cached(ctx, c, OpFieldOffset, cacheKey(OpFieldOffset, module, typ, field), func(ctx context.Context) (FieldInfo, error) {
		return c.inner.FieldOffset(ctx, module, typ, field)
	})
}

// TypeFields implements Client.
func (c *CachingClient) TypeFields(ctx context.Context, module, typ string, includeBaseTypes bool) ([]TypeField, error) {
	key := cacheKey(OpTypeFields, module, typ, strconv.FormatBool(includeBaseTypes))
	fields, err := cached(ctx, c, OpTypeFields, key, func(ctx context.Context) ([]TypeField, error) {
		return c.inner.TypeFields(ctx, module, typ, includeBaseTypes)
	})
	return slices.Clone(fields), err
}

// BaseTypes implements Client.
func (c *CachingClient) BaseTypes(ctx context.Context, module, typ string) ([]BaseType, error) {
	bases, err := cached(ctx, c, OpBaseTypes, cacheKey(OpBaseTypes, module, typ), func(ctx context.Context) ([]BaseType, error) {
		return c.inner.BaseTypes(ctx, module, typ)
	})
	return slices.Clone(bases), err
}

// IsEnum implements Client.
func (c *CachingClient) IsEnum(ctx context.Context, module, typ string) (bool, error) {
	return cached(ctx, c, OpIsEnum, cacheKey(OpIsEnum, module, typ), func(ctx context.Context) (bool, error) {
		return c.inner.IsEnum(ctx, module, typ)
	})
}

// ConstantName implements Client.
func (c *CachingClient) ConstantName(ctx context.Context, module, typ string, value uint64) ([]string, error) {
	key := cacheKey(OpConstantName, module, typ, strconv.FormatUint(value, 10))
	names, err := cached(ctx, c, OpConstantName, key, func(ctx context.Context) ([]string, error) {
		return c.inner.ConstantName(ctx, module, typ, value)
	})
	return slices.Clone(names), err
}

// ConstantValue implements Client.
func (c *CachingClient) ConstantValue(ctx context.Context, module, typ, name string) (uint64, error) {
	return cached(ctx, c, OpConstantValue, cacheKey(OpConstantValue, module, typ, name), func(ctx context.Context) (uint64, error) {
		return c.inner.ConstantValue(ctx, module, typ, name)
	})
}

// SymbolName implements Client.
func (c *CachingClient) SymbolName(ctx context.Context, addr uint64) (SymbolInfo, error) {
	key := cacheKey(OpSymbolName, strconv.FormatUint(addr, 10))
	return cached(ctx, c, OpSymbolName, key, func(ctx context.Context) (SymbolInfo, error) {
		return c.inner.SymbolName(ctx, addr)
	})
}

// GlobalSymbol implements Client.
func (c *CachingClient) GlobalSymbol(ctx context.Context, module, symbol string) (GlobalInfo, error) {
	return cached(ctx, c, OpGlobalSymbol, cacheKey(OpGlobalSymbol, module, symbol), func(ctx context.Context) (GlobalInfo, error) {
		return c.inner.GlobalSymbol(ctx, module, symbol)
	})
}

// ReadNumber implements Client. It is never cached.
func (c *CachingClient) ReadNumber(ctx context.Context, addr uint64, width int) (uint64, error) {
	return c.inner.ReadNumber(ctx, addr, width)
}

// ReadArray implements Client. It is never cached.
func (c *CachingClient) ReadArray(ctx context.Context, addr uint64, width int, count int) ([]uint64, error) {
	return c.inner.ReadArray(ctx, addr, width, count)
}
