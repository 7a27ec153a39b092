package snapshot

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
)

// Store holds the current Snapshot and swaps it atomically. It implements
// dbgclient.Client by delegating every call to the snapshot current at the
// time of the call.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu        sync.Mutex
	listeners []func(*Snapshot)
}

var _ dbgclient.Client = (*Store)(nil)

// NewStore returns a store serving s.
func NewStore(s *Snapshot) *Store {
	st := &Store{}
	st.current.Store(s)
	return st
}

// Current returns the snapshot being served.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// Replace swaps in s and notifies every listener.
func (st *Store) Replace(s *Snapshot) {
	st.current.Store(s)

	st.mu.Lock()
	listeners := append([]func(*Snapshot){}, st.listeners...)
	st.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// OnReplace registers fn to run after every Replace.
func (st *Store) OnReplace(fn func(*Snapshot)) {
	st.mu.Lock()
	st.listeners = append(st.listeners, fn)
	st.mu.Unlock()
}

func (st *Store) PointerSize(ctx context.Context) (int, error) {
	return st.Current().PointerSize(ctx)
}

func (st *Store) TypeSize(ctx context.Context, module, typ string) (int64, error) {
	return st.Current().TypeSize(ctx, module, typ)
}

func (st *Store) FieldOffset(ctx context.Context, module, typ, field string) (dbgclient.FieldInfo, error) {
	return st.Current().FieldOffset(ctx, module, typ, field)
}

func (st *Store) TypeFields(ctx context.Context, module, typ string, includeBaseTypes bool) ([]dbgclient.TypeField, error) {
	return st.Current().TypeFields(ctx, module, typ, includeBaseTypes)
}

func (st *Store) BaseTypes(ctx context.Context, module, typ string) ([]dbgclient.BaseType, error) {
	return st.Current().BaseTypes(ctx, module, typ)
}

func (st *Store) IsEnum(ctx context.Context, module, typ string) (bool, error) {
	return st.Current().IsEnum(ctx, module, typ)
}

func (st *Store) ConstantName(ctx context.Context, module, typ string, value uint64) ([]string, error) {
	return st.Current().ConstantName(ctx, module, typ, value)
}

func (st *Store) ConstantValue(ctx context.Context, module, typ, name string) (uint64, error) {
	return st.Current().ConstantValue(ctx, module, typ, name)
}

func (st *Store) SymbolName(ctx context.Context, addr uint64) (dbgclient.SymbolInfo, error) {
	return st.Current().SymbolName(ctx, addr)
}

func (st *Store) GlobalSymbol(ctx context.Context, module, symbol string) (dbgclient.GlobalInfo, error) {
	return st.Current().GlobalSymbol(ctx, module, symbol)
}

func (st *Store) ReadNumber(ctx context.Context, addr uint64, width int) (uint64, error) {
	return st.Current().ReadNumber(ctx, addr, width)
}

func (st *Store) ReadArray(ctx context.Context, addr uint64, width int, count int) ([]uint64, error) {
	return st.Current().ReadArray(ctx, addr, width, count)
}
