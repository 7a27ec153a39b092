package dbgclient

import (
	"context"
	"maps"
	"sync"
)

// CountingClient counts the requests that reach an inner Client, by
// operation. It sits below a CachingClient to measure what actually goes
// over the wire.
type CountingClient struct {
	inner Client

	mu     sync.Mutex
	counts map[string]int
}

var _ Client = (*CountingClient)(nil)

// NewCountingClient wraps inner.
func NewCountingClient(inner Client) *CountingClient {
	return &CountingClient{inner: inner, counts: make(map[string]int)}
}

func (c *CountingClient) record(op string) {
	c.mu.Lock()
	c.counts[op]++
	c.mu.Unlock()
}

// Count returns the number of requests issued for op.
func (c *CountingClient) Count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[op]
}

// Total returns the number of requests issued for all operations.
func (c *CountingClient) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Counts returns a copy of the per-operation counts.
func (c *CountingClient) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.counts)
}

// Reset zeroes every count.
func (c *CountingClient) Reset() {
	c.mu.Lock()
	clear(c.counts)
	c.mu.Unlock()
}

func (c *CountingClient) PointerSize(ctx context.Context) (int, error) {
	c.record(OpPointerSize)
	return c.inner.PointerSize(ctx)
}

func (c *CountingClient) TypeSize(ctx context.Context, module, typ string) (int64, error) {
	c.record(OpTypeSize)
	return c.inner.TypeSize(ctx, module, typ)
}

func (c *CountingClient) FieldOffset(ctx context.Context, module, typ, field string) (FieldInfo, error) {
	c.record(OpFieldOffset)
	return c.inner.FieldOffset(ctx, module, typ, field)
}

func (c *CountingClient) TypeFields(ctx context.Context, module, typ string, includeBaseTypes bool) ([]TypeField, error) {
	c.record(OpTypeFields)
	return c.inner.TypeFields(ctx, module, typ, includeBaseTypes)
}

func (c *CountingClient) BaseTypes(ctx context.Context, module, typ string) ([]BaseType, error) {
	c.record(OpBaseTypes)
	return c.inner.BaseTypes(ctx, module, typ)
}

func (c *CountingClient) IsEnum(ctx context.Context, module, typ string) (bool, error) {
	c.record(OpIsEnum)
	return c.inner.IsEnum(ctx, module, typ)
}

func (c *CountingClient) ConstantName(ctx context.Context, module, typ string, value uint64) ([]string, error) {
	c.record(OpConstantName)
	return c.inner.ConstantName(ctx, module, typ, value)
}

func (c *CountingClient) ConstantValue(ctx context.Context, module, typ, name string) (uint64, error) {
	c.record(OpConstantValue)
	return c.inner.ConstantValue(ctx, module, typ, name)
}

func (c *CountingClient) SymbolName(ctx context.Context, addr uint64) (SymbolInfo, error) {
	c.record(OpSymbolName)
	return c.inner.SymbolName(ctx, addr)
}

func (c *CountingClient) GlobalSymbol(ctx context.Context, module, symbol string) (GlobalInfo, error) {
	c.record(OpGlobalSymbol)
	return c.inner.GlobalSymbol(ctx, module, symbol)
}

func (c *CountingClient) ReadNumber(ctx context.Context, addr uint64, width int) (uint64, error) {
	c.record(OpReadNumber)
	return c.inner.ReadNumber(ctx, addr, width)
}

func (c *CountingClient) ReadArray(ctx context.Context, addr uint64, width int, count int) ([]uint64, error) {
	c.record(OpReadArray)
	return c.inner.ReadArray(ctx, addr, width, count)
}
